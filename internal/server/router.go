package server

import (
	"net/http"
	"time"

	"github.com/Jatin1234-kumar/CoLLabCode/internal/auth"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/config"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/metrics"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/mw"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/service"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, hub *ws.Hub) *gin.Engine {
	userSvc := service.NewUserService(db, cfg)
	roomSvc := service.NewRoomService(db)
	verSvc := service.NewVersionService(db)
	gateway := ws.NewGateway(hub, roomSvc, verSvc)
	h := NewHandler(userSvc, roomSvc, verSvc, hub)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	// 控制单个 IP+路由的速率，避免教学环境被刷爆。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))
	r.Use(mw.CORS(cfg.Env))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, db))

	authed.POST("/rooms", h.CreateRoom)
	authed.GET("/rooms", h.ListRooms)
	authed.GET("/rooms/:id", h.GetRoom)
	authed.DELETE("/rooms/:id", h.DeleteRoom)
	authed.POST("/rooms/:id/leave", h.LeaveRoom)
	authed.POST("/rooms/:id/join-requests", h.CreateJoinRequest)
	authed.POST("/rooms/:id/join-requests/:requestID/approve", h.ApproveJoinRequest)
	authed.POST("/rooms/:id/join-requests/:requestID/reject", h.RejectJoinRequest)
	authed.PATCH("/rooms/:id/participants/:userID/role", h.UpdateParticipantRole)
	authed.POST("/rooms/:id/transfer-ownership", h.TransferOwnership)
	authed.GET("/rooms/:id/versions", h.ListVersions)

	r.GET("/ws", ws.Serve(gateway, db, cfg))

	return r
}
