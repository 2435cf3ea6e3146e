package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coderoom_ws_connections",
		Help: "Current number of active websocket connections",
	})
	GatewayEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coderoom_gateway_events_total",
		Help: "Total number of gateway events handled",
	}, []string{"event", "result"})
	BroadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coderoom_broadcasts_total",
		Help: "Total number of events fanned out by the hub",
	}, []string{"event"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(WsConnections, GatewayEvents, BroadcastsTotal, HttpRequestsTotal, HttpRequestDuration)
}

// EventHandled 按事件类型与处理结果计数。
func EventHandled(event string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	GatewayEvents.WithLabelValues(event, result).Inc()
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
