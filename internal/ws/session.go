package ws

import (
	"sync"
	"time"

	"github.com/Jatin1234-kumar/CoLLabCode/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	// saveDebounce 是高频 code:update 合并为一次落盘的等待窗口。
	saveDebounce = 500 * time.Millisecond
	// cursorThrottle 内重复到达的光标更新会被丢弃（仍然 ack 成功）。
	cursorThrottle = 100 * time.Millisecond
)

// PersistFunc 把文档内容写入持久层。
type PersistFunc func(code string, modified time.Time) error

// RoomSession 持有一个活跃房间的全部易变状态：订阅者集合、内存中的
// 最新文档、唯一的 debounce 定时器、光标节流时间戳和 typing 集合。
// 任意时刻每个房间至多存在一个待触发的落盘定时器。
type RoomSession struct {
	roomID uint

	mu           sync.Mutex
	clients      map[string]*Client
	code         string
	lastModified time.Time
	saveTimer    *time.Timer
	dirty        bool
	lastCursor   map[uint]time.Time
	typing       map[uint]struct{}
}

func newRoomSession(roomID uint, code string, modified time.Time) *RoomSession {
	return &RoomSession{
		roomID:       roomID,
		clients:      make(map[string]*Client),
		code:         code,
		lastModified: modified,
		lastCursor:   make(map[uint]time.Time),
		typing:       make(map[uint]struct{}),
	}
}

func (s *RoomSession) add(c *Client) {
	s.mu.Lock()
	s.clients[c.ID] = c
	s.mu.Unlock()
}

func (s *RoomSession) remove(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.ID)
	s.mu.Unlock()
}

// Online 返回房间当前的连接数，供 REST 接口复用。
func (s *RoomSession) Online() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Document 返回内存中最新的文档内容与修改时间。
func (s *RoomSession) Document() (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.lastModified
}

// SetDocument 无条件覆盖内存文档（last-writer-wins），并标记待落盘。
func (s *RoomSession) SetDocument(code string, modified time.Time) {
	s.mu.Lock()
	s.code = code
	s.lastModified = modified
	s.dirty = true
	s.mu.Unlock()
}

// ScheduleSave 重置 debounce 定时器：已有定时器先取消再替换，
// 到期后把当时的内存文档落盘一次。
func (s *RoomSession) ScheduleSave(persist PersistFunc) {
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(saveDebounce, func() {
		s.mu.Lock()
		if !s.dirty {
			s.saveTimer = nil
			s.mu.Unlock()
			return
		}
		code, modified := s.code, s.lastModified
		s.dirty = false
		s.saveTimer = nil
		s.mu.Unlock()
		if err := persist(code, modified); err != nil {
			log.Error().Err(err).Uint("room_id", s.roomID).Msg("debounced save")
		}
	})
	s.mu.Unlock()
}

// Flush 取消待触发的 debounce 并同步落盘当前文档。所有需要读到
// 保证已持久化内容的操作（建快照、恢复、删房间）必须先走这里。
func (s *RoomSession) Flush(persist PersistFunc) error {
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	code, modified := s.code, s.lastModified
	s.dirty = false
	s.mu.Unlock()
	return persist(code, modified)
}

// AllowCursor 判断该用户的光标更新是否落在节流窗口之外。
// 竞争的代价至多是多放行或多丢弃一次更新，可以容忍。
func (s *RoomSession) AllowCursor(userID uint, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastCursor[userID]) < cursorThrottle {
		return false
	}
	s.lastCursor[userID] = now
	return true
}

// SetTyping 记录用户的输入状态；过期清理由接收端自行负责。
func (s *RoomSession) SetTyping(userID uint, on bool) {
	s.mu.Lock()
	if on {
		s.typing[userID] = struct{}{}
	} else {
		delete(s.typing, userID)
	}
	s.mu.Unlock()
}

// ClearPresence 在断连时清掉该用户的节流与 typing 记录。
func (s *RoomSession) ClearPresence(userID uint) {
	s.mu.Lock()
	delete(s.lastCursor, userID)
	delete(s.typing, userID)
	s.mu.Unlock()
}

// Broadcast 把事件按连接 FIFO 推给房间内除 excludeConnID 外的所有连接。
// 慢客户端在 Send 里自行断开，不会阻塞其他人。
func (s *RoomSession) Broadcast(event string, payload interface{}, excludeConnID string) {
	b, err := encodePush(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encode push")
		return
	}
	s.mu.Lock()
	targets := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.ID == excludeConnID {
			continue
		}
		targets = append(targets, c)
	}
	s.mu.Unlock()
	for _, c := range targets {
		_ = c.Send(b)
	}
	metrics.BroadcastsTotal.WithLabelValues(event).Inc()
}
