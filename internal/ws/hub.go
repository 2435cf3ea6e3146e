package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Jatin1234-kumar/CoLLabCode/internal/metrics"
)

// Hub 是房间寻址与用户寻址共用的广播设施：连接注册表、按用户分组的
// 投递表，以及按需创建的 RoomSession。HTTP handler 与网关都通过它发布。
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Client          // connID -> client
	users    map[uint]map[string]*Client // userID -> connID -> client
	rooms    map[uint]*RoomSession
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Client),
		users:    make(map[uint]map[string]*Client),
		rooms:    make(map[uint]*RoomSession),
	}
}

// Register 在任何事件被处理之前登记连接身份。
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.sessions[c.ID] = c
	conns := h.users[c.UserID]
	if conns == nil {
		conns = make(map[string]*Client)
		h.users[c.UserID] = conns
	}
	conns[c.ID] = c
	h.mu.Unlock()
	metrics.WsConnections.Inc()
}

// Unregister 抹掉连接记录并退出其所在房间。
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.sessions[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, c.ID)
	if conns, ok := h.users[c.UserID]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.users, c.UserID)
		}
	}
	h.mu.Unlock()
	if c.room != nil {
		c.room.remove(c)
		c.room = nil
	}
	metrics.WsConnections.Dec()
}

// Session 返回房间的会话，不存在则用给定内容惰性创建。
// 已存在的会话保留自己的内存文档，不会被种子值覆盖。
func (h *Hub) Session(roomID uint, seedCode string, seedModified time.Time) *RoomSession {
	h.mu.RLock()
	s := h.rooms[roomID]
	h.mu.RUnlock()
	if s != nil {
		return s
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s = h.rooms[roomID]; s != nil {
		return s
	}
	s = newRoomSession(roomID, seedCode, seedModified)
	h.rooms[roomID] = s
	return s
}

// Peek 返回房间会话，不存在时返回 nil。
func (h *Hub) Peek(roomID uint) *RoomSession {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID]
}

// DropSession 在房间被删除后丢弃其会话。
func (h *Hub) DropSession(roomID uint) {
	h.mu.Lock()
	delete(h.rooms, roomID)
	h.mu.Unlock()
}

// JoinRoom 把连接挂进房间会话；一条连接同时只属于一个房间，
// 加入新房间会隐式退出旧房间。
func (h *Hub) JoinRoom(c *Client, s *RoomSession) {
	if c.room == s {
		return
	}
	if c.room != nil {
		c.room.remove(c)
	}
	s.add(c)
	c.room = s
}

// LeaveRoom 把连接从当前房间摘出，返回离开的会话。
func (h *Hub) LeaveRoom(c *Client) *RoomSession {
	s := c.room
	if s == nil {
		return nil
	}
	s.remove(c)
	c.room = nil
	return s
}

// Online 返回房间在线连接数。
func (h *Hub) Online(roomID uint) int {
	s := h.Peek(roomID)
	if s == nil {
		return 0
	}
	return s.Online()
}

// BroadcastRoom 向房间内所有连接发布事件。
func (h *Hub) BroadcastRoom(roomID uint, event string, payload interface{}) {
	if s := h.Peek(roomID); s != nil {
		s.Broadcast(event, payload, "")
	}
}

// NotifyUser 向某个用户的所有在线连接发布事件，无论其身处哪个房间。
func (h *Hub) NotifyUser(userID uint, event string, payload interface{}) {
	b, err := encodePush(event, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.users[userID]))
	for _, c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		_ = c.Send(b)
	}
	if len(targets) > 0 {
		metrics.BroadcastsTotal.WithLabelValues(event).Inc()
	}
}

// BroadcastAll 向所有在线连接发布事件（如 room:created）。
func (h *Hub) BroadcastAll(event string, payload interface{}) {
	b, err := encodePush(event, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.sessions))
	for _, c := range h.sessions {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		_ = c.Send(b)
	}
	metrics.BroadcastsTotal.WithLabelValues(event).Inc()
}

func encodePush(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(Push{Type: event, Payload: payload})
}
