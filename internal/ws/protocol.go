package ws

import "encoding/json"

// 客户端事件类型。
const (
	EvtRoomJoin       = "room:join"
	EvtRoomLeave      = "room:leave"
	EvtCodeUpdate     = "code:update"
	EvtCursorUpdate   = "cursor:update"
	EvtTypingStart    = "typing:start"
	EvtTypingStop     = "typing:stop"
	EvtVersionSave    = "version:save"
	EvtVersionRestore = "version:restore"
	EvtVersionDelete  = "version:delete"
	EvtRoleChanged    = "participant:role-changed"
)

// 服务端广播类型。
const (
	PushUserJoined      = "user:joined"
	PushUserLeft        = "user:left"
	PushDisconnected    = "user:disconnected"
	PushCodeUpdated     = "code:updated"
	PushCodeRestored    = "code:restored"
	PushCursorUpdated   = "cursor:updated"
	PushTypingStarted   = "user:typing:started"
	PushTypingStopped   = "user:typing:stopped"
	PushVersionSaved    = "version:saved"
	PushVersionDeleted  = "version:deleted"
	PushJoinRequest     = "join:request"
	PushJoinApproved    = "join:approved"
	PushParticipantLeft = "participant:left"
	PushRoleUpdated     = "participant:role-updated"
	PushMyRoleChanged   = "my:role-changed"
	PushRoomDeleted     = "room:deleted"
	PushRoomCreated     = "room:created"
)

// ack 错误码。广播永远不携带错误，错误只会出现在 ack 里。
const (
	CodeRoomNotFound     = "ROOM_NOT_FOUND"
	CodeNotFound         = "NOT_FOUND"
	CodeAccessDenied     = "ACCESS_DENIED"
	CodeInsufficientPerm = "INSUFFICIENT_PERMISSIONS"
	CodeValidation       = "VALIDATION_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

// Event 是客户端发来的事件信封；ID 由客户端自增，用于匹配 ack。
type Event struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ack 是对单个事件的应答，成功与否都通过它返回给发起方。
type Ack struct {
	Type      string      `json:"type"`
	ID        int64       `json:"id,omitempty"`
	Success   bool        `json:"success"`
	ErrorCode string      `json:"errorCode,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Push 是服务端主动下发的事件信封。
type Push struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

func okAck(id int64) Ack {
	return Ack{Type: "ack", ID: id, Success: true}
}

func okAckData(id int64, data interface{}) Ack {
	return Ack{Type: "ack", ID: id, Success: true, Data: data}
}

func errAck(id int64, code, msg string) Ack {
	return Ack{Type: "ack", ID: id, Success: false, ErrorCode: code, Message: msg}
}
