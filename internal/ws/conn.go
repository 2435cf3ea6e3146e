package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 1 << 20 // 1MB
)

var errConnClosed = errors.New("connection closed")

// Client 代表一条已认证的 websocket 连接。出站消息经由带缓冲的 send
// 通道串行写出；缓冲写满说明客户端过慢，直接断开以限制背压。
// room 只会在连接自己的读循环里读写，不需要加锁。
type Client struct {
	ID          string
	UserID      uint
	Username    string
	DisplayName string

	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}

	room *RoomSession
}

func NewClient(conn *websocket.Conn, userID uint, username, displayName string) *Client {
	return &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		Username:    username,
		DisplayName: displayName,
		conn:        conn,
		send:        make(chan []byte, 256),
		closed:      make(chan struct{}),
	}
}

// Send 把消息排入写队列。缓冲已满时关闭连接并返回错误。
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	case c.send <- payload:
		return nil
	default:
		c.Close()
		return errors.New("send buffer full")
	}
}

// Close 关闭底层连接，可安全重复调用。
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-c.closed:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop 逐条读取事件交给 handle 处理，连接断开时返回。
func (c *Client) readLoop(handle func(*Client, []byte)) {
	defer c.Close()
	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		handle(c, data)
	}
}
