package ws

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Jatin1234-kumar/CoLLabCode/internal/metrics"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/models"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/rbac"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/service"
	"github.com/rs/zerolog/log"
)

// Gateway 是连接级的事件路由器：每个入站事件按「查房间 → 查成员身份 →
// 校验角色下限 → 执行 → ack → 广播」的顺序处理。任何失败都落在 ack 里，
// 单个畸形事件不会影响连接本身或其他房间。
type Gateway struct {
	hub      *Hub
	rooms    *service.RoomService
	versions *service.VersionService
}

func NewGateway(hub *Hub, rooms *service.RoomService, versions *service.VersionService) *Gateway {
	return &Gateway{hub: hub, rooms: rooms, versions: versions}
}

func (g *Gateway) Hub() *Hub { return g.hub }

// HandleMessage 解析一条入站事件并把 ack 写回发起方。
func (g *Gateway) HandleMessage(c *Client, data []byte) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil || evt.Type == "" {
		g.reply(c, errAck(0, CodeValidation, "malformed event"))
		return
	}
	ack := g.dispatch(c, evt)
	metrics.EventHandled(evt.Type, ack.Success)
	g.reply(c, ack)
}

func (g *Gateway) reply(c *Client, ack Ack) {
	b, err := json.Marshal(ack)
	if err != nil {
		log.Error().Err(err).Msg("encode ack")
		return
	}
	_ = c.Send(b)
}

func (g *Gateway) dispatch(c *Client, evt Event) (ack Ack) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event", evt.Type).Msg("gateway handler")
			ack = errAck(evt.ID, CodeInternal, "internal error")
		}
	}()
	switch evt.Type {
	case EvtRoomJoin:
		return g.handleJoin(c, evt)
	case EvtRoomLeave:
		return g.handleLeave(c, evt)
	case EvtCodeUpdate:
		return g.handleCodeUpdate(c, evt)
	case EvtCursorUpdate:
		return g.handleCursor(c, evt)
	case EvtTypingStart:
		return g.handleTyping(c, evt, true)
	case EvtTypingStop:
		return g.handleTyping(c, evt, false)
	case EvtVersionSave:
		return g.handleVersionSave(c, evt)
	case EvtVersionRestore:
		return g.handleVersionRestore(c, evt)
	case EvtVersionDelete:
		return g.handleVersionDelete(c, evt)
	case EvtRoleChanged:
		return g.handleRoleChange(c, evt)
	default:
		return errAck(evt.ID, CodeValidation, "unknown event type")
	}
}

// Disconnect 处理传输层断开：尽力向所在房间广播一条下线通知并清理
// 该用户的 presence 记录，接收端的过期清理才是最终兜底。
func (g *Gateway) Disconnect(c *Client) {
	if s := c.room; s != nil {
		s.Broadcast(PushDisconnected, map[string]interface{}{
			"userId":   c.UserID,
			"username": c.Username,
		}, c.ID)
		s.ClearPresence(c.UserID)
	}
	g.hub.Unregister(c)
}

// resolve 加载房间并确认调用者是成员，失败时返回对应的 ack。
func (g *Gateway) resolve(id int64, roomID, userID uint) (*models.Room, rbac.Role, Ack, bool) {
	if roomID == 0 {
		return nil, "", errAck(id, CodeValidation, "roomId is required"), false
	}
	room, err := g.rooms.Get(roomID)
	if err != nil {
		return nil, "", g.serviceAck(id, err), false
	}
	role, ok := g.rooms.RoleOf(room, userID)
	if !ok {
		return nil, "", errAck(id, CodeAccessDenied, "not a participant"), false
	}
	return room, role, Ack{}, true
}

func (g *Gateway) persist(roomID uint) PersistFunc {
	return func(code string, modified time.Time) error {
		return g.rooms.SaveDocument(roomID, code, modified)
	}
}

/* ===== 房间事件 ===== */

type joinPayload struct {
	RoomID uint `json:"roomId"`
}

func (g *Gateway) handleJoin(c *Client, evt Event) Ack {
	var p joinPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return errAck(evt.ID, CodeValidation, "invalid payload")
	}
	room, role, ack, ok := g.resolve(evt.ID, p.RoomID, c.UserID)
	if !ok {
		return ack
	}

	roster, err := g.rooms.Roster(room)
	if err != nil {
		return errAck(evt.ID, CodeInternal, "join failed")
	}

	// 加入新房间会隐式退出旧房间。
	if prev := c.room; prev != nil && prev.roomID != room.ID {
		prev.Broadcast(PushUserLeft, map[string]interface{}{
			"userId":   c.UserID,
			"username": c.Username,
		}, c.ID)
	}
	sess := g.hub.Session(room.ID, room.Code, room.LastModified)
	g.hub.JoinRoom(c, sess)
	g.rooms.TouchLastSeen(room.ID, c.UserID)

	sess.Broadcast(PushUserJoined, map[string]interface{}{
		"user": map[string]interface{}{
			"id":          c.UserID,
			"username":    c.Username,
			"displayName": c.DisplayName,
		},
		"role": string(role),
	}, "")

	code, _ := sess.Document()
	return okAckData(evt.ID, map[string]interface{}{
		"room": map[string]interface{}{
			"id":           room.ID,
			"name":         room.Name,
			"language":     room.Language,
			"code":         code,
			"owner":        room.OwnerID,
			"participants": roster,
		},
	})
}

func (g *Gateway) handleLeave(c *Client, evt Event) Ack {
	sess := g.hub.LeaveRoom(c)
	if sess == nil {
		return errAck(evt.ID, CodeValidation, "not in a room")
	}
	sess.ClearPresence(c.UserID)
	sess.Broadcast(PushUserLeft, map[string]interface{}{
		"userId":   c.UserID,
		"username": c.Username,
	}, "")
	return okAck(evt.ID)
}

/* ===== 文档同步 ===== */

type codeUpdatePayload struct {
	RoomID uint    `json:"roomId"`
	Code   *string `json:"code"`
	// 客户端时间戳只做透传参考，排序一律以服务端时间为准。
	Timestamp int64 `json:"timestamp"`
}

func (g *Gateway) handleCodeUpdate(c *Client, evt Event) Ack {
	var p codeUpdatePayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil || p.Code == nil {
		return errAck(evt.ID, CodeValidation, "invalid payload")
	}
	room, role, ack, ok := g.resolve(evt.ID, p.RoomID, c.UserID)
	if !ok {
		return ack
	}
	if !role.AtLeast(rbac.RoleEditor) {
		return errAck(evt.ID, CodeInsufficientPerm, "viewers cannot edit")
	}

	// 无条件覆盖：事件到达粒度的 last-writer-wins，由服务端打时间戳。
	now := time.Now()
	sess := g.hub.Session(room.ID, room.Code, room.LastModified)
	sess.SetDocument(*p.Code, now)
	sess.ScheduleSave(g.persist(room.ID))

	sess.Broadcast(PushCodeUpdated, map[string]interface{}{
		"code":      *p.Code,
		"userId":    c.UserID,
		"username":  c.Username,
		"timestamp": now.UnixMilli(),
	}, c.ID)

	// ack 只代表内存更新与广播已完成，落盘由 debounce 异步兜底。
	return okAck(evt.ID)
}

/* ===== presence ===== */

type cursorPayload struct {
	RoomID   uint `json:"roomId"`
	Position *int `json:"position"`
	Line     *int `json:"line"`
}

func (g *Gateway) handleCursor(c *Client, evt Event) Ack {
	var p cursorPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil || p.Position == nil || p.Line == nil {
		return errAck(evt.ID, CodeValidation, "invalid payload")
	}
	room, _, ack, ok := g.resolve(evt.ID, p.RoomID, c.UserID)
	if !ok {
		return ack
	}
	sess := g.hub.Session(room.ID, room.Code, room.LastModified)
	// 节流窗口内直接 ack 成功但不广播，不惩罚发送方。
	if !sess.AllowCursor(c.UserID, time.Now()) {
		return okAck(evt.ID)
	}
	sess.Broadcast(PushCursorUpdated, map[string]interface{}{
		"userId":   c.UserID,
		"username": c.Username,
		"position": *p.Position,
		"line":     *p.Line,
	}, c.ID)
	return okAck(evt.ID)
}

type typingPayload struct {
	RoomID uint `json:"roomId"`
}

func (g *Gateway) handleTyping(c *Client, evt Event, start bool) Ack {
	var p typingPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return errAck(evt.ID, CodeValidation, "invalid payload")
	}
	room, _, ack, ok := g.resolve(evt.ID, p.RoomID, c.UserID)
	if !ok {
		return ack
	}
	sess := g.hub.Session(room.ID, room.Code, room.LastModified)
	sess.SetTyping(c.UserID, start)
	event := PushTypingStarted
	if !start {
		event = PushTypingStopped
	}
	sess.Broadcast(event, map[string]interface{}{
		"userId":   c.UserID,
		"username": c.Username,
	}, c.ID)
	return okAck(evt.ID)
}

/* ===== 版本快照 ===== */

type versionSavePayload struct {
	RoomID uint   `json:"roomId"`
	Label  string `json:"label"`
}

func (g *Gateway) handleVersionSave(c *Client, evt Event) Ack {
	var p versionSavePayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return errAck(evt.ID, CodeValidation, "invalid payload")
	}
	room, role, ack, ok := g.resolve(evt.ID, p.RoomID, c.UserID)
	if !ok {
		return ack
	}
	if !role.AtLeast(rbac.RoleEditor) {
		return errAck(evt.ID, CodeInsufficientPerm, "cannot save version")
	}

	// 先 flush 掉待触发的 debounce。快照文本在落盘回调里取，
	// 与刚持久化的内容逐字一致。
	sess := g.hub.Session(room.ID, room.Code, room.LastModified)
	var code string
	err := sess.Flush(func(c string, modified time.Time) error {
		code = c
		return g.rooms.SaveDocument(room.ID, c, modified)
	})
	if err != nil {
		log.Error().Err(err).Uint("room_id", room.ID).Msg("version save flush")
		return errAck(evt.ID, CodeInternal, "save failed")
	}
	v, err := g.versions.Create(room.ID, c.UserID, code, p.Label)
	if err != nil {
		return errAck(evt.ID, CodeInternal, "save failed")
	}

	sess.Broadcast(PushVersionSaved, map[string]interface{}{
		"versionId": v.ID,
		"label":     v.Label,
		"timestamp": v.CreatedAt,
	}, "")
	return okAckData(evt.ID, map[string]interface{}{"versionId": v.ID})
}

type versionIDPayload struct {
	RoomID    uint `json:"roomId"`
	VersionID uint `json:"versionId"`
}

func (g *Gateway) handleVersionRestore(c *Client, evt Event) Ack {
	var p versionIDPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return errAck(evt.ID, CodeValidation, "invalid payload")
	}
	if p.VersionID == 0 {
		return errAck(evt.ID, CodeValidation, "invalid version id")
	}
	room, role, ack, ok := g.resolve(evt.ID, p.RoomID, c.UserID)
	if !ok {
		return ack
	}
	if !role.AtLeast(rbac.RoleEditor) {
		return errAck(evt.ID, CodeInsufficientPerm, "cannot restore")
	}
	v, err := g.versions.Get(p.VersionID, room.ID)
	if err != nil {
		return g.serviceAck(evt.ID, err)
	}

	// 恢复必须在 ack 之前同步落盘，不走 debounce。
	now := time.Now()
	sess := g.hub.Session(room.ID, room.Code, room.LastModified)
	sess.SetDocument(v.Code, now)
	if err := sess.Flush(g.persist(room.ID)); err != nil {
		log.Error().Err(err).Uint("room_id", room.ID).Msg("version restore persist")
		return errAck(evt.ID, CodeInternal, "restore failed")
	}

	sess.Broadcast(PushCodeRestored, map[string]interface{}{
		"code":      v.Code,
		"versionId": v.ID,
	}, "")
	return okAck(evt.ID)
}

func (g *Gateway) handleVersionDelete(c *Client, evt Event) Ack {
	var p versionIDPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return errAck(evt.ID, CodeValidation, "invalid payload")
	}
	if p.VersionID == 0 {
		return errAck(evt.ID, CodeValidation, "invalid version id")
	}
	room, role, ack, ok := g.resolve(evt.ID, p.RoomID, c.UserID)
	if !ok {
		return ack
	}
	if !role.AtLeast(rbac.RoleEditor) {
		return errAck(evt.ID, CodeInsufficientPerm, "cannot delete")
	}
	if err := g.versions.Delete(p.VersionID, room.ID); err != nil {
		return g.serviceAck(evt.ID, err)
	}
	sess := g.hub.Session(room.ID, room.Code, room.LastModified)
	sess.Broadcast(PushVersionDeleted, map[string]interface{}{
		"versionId": p.VersionID,
	}, "")
	return okAck(evt.ID)
}

/* ===== 角色变更 ===== */

type roleChangePayload struct {
	RoomID  uint   `json:"roomId"`
	UserID  uint   `json:"userId"`
	NewRole string `json:"newRole"`
}

func (g *Gateway) handleRoleChange(c *Client, evt Event) Ack {
	var p roleChangePayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil || p.UserID == 0 {
		return errAck(evt.ID, CodeValidation, "invalid payload")
	}
	if _, _, ack, ok := g.resolve(evt.ID, p.RoomID, c.UserID); !ok {
		return ack
	}
	err := g.rooms.UpdateParticipantRole(p.RoomID, c.UserID, p.UserID, rbac.Role(p.NewRole))
	if err != nil {
		return g.serviceAck(evt.ID, err)
	}

	g.hub.BroadcastRoom(p.RoomID, PushRoleUpdated, map[string]interface{}{
		"userId":  p.UserID,
		"newRole": p.NewRole,
	})
	g.hub.NotifyUser(p.UserID, PushMyRoleChanged, map[string]interface{}{
		"roomId":  p.RoomID,
		"newRole": p.NewRole,
	})
	return okAck(evt.ID)
}

// serviceAck 把业务层错误映射为 ack 错误码。
func (g *Gateway) serviceAck(id int64, err error) Ack {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		return errAck(id, CodeRoomNotFound, "room not found")
	case errors.Is(err, service.ErrVersionNotFound):
		return errAck(id, CodeNotFound, "version not found")
	case errors.Is(err, service.ErrNotParticipant), errors.Is(err, service.ErrNotOwner),
		errors.Is(err, service.ErrCannotDemoteOwner):
		return errAck(id, CodeAccessDenied, "not authorized")
	case errors.Is(err, service.ErrOwnerMustTransfer):
		return errAck(id, CodeInsufficientPerm, err.Error())
	case errors.Is(err, service.ErrInvalidRole), errors.Is(err, service.ErrTargetNotInRoom),
		errors.Is(err, service.ErrRequestNotPending):
		return errAck(id, CodeValidation, err.Error())
	default:
		log.Error().Err(err).Msg("gateway store call")
		return errAck(id, CodeInternal, "internal error")
	}
}
