package service

import "errors"

// 业务层通用错误，handler 和网关根据错误类型映射到 HTTP 状态码或 ack 错误码。
var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrRoomNotFound    = errors.New("room not found")
	ErrVersionNotFound = errors.New("version not found")
	ErrRequestNotFound = errors.New("join request not found")

	ErrNotParticipant    = errors.New("not a participant")
	ErrNotOwner          = errors.New("not the room owner")
	ErrOwnerMustTransfer = errors.New("owner must transfer ownership before leaving")

	ErrAlreadyInRoom     = errors.New("user is already in this room")
	ErrRequestExists     = errors.New("pending join request already exists")
	ErrRequestNotPending = errors.New("join request is not pending")
	ErrInvalidRole       = errors.New("invalid role")
	ErrCannotDemoteOwner = errors.New("cannot change the owner's role")
	ErrTargetNotInRoom   = errors.New("target user is not a participant")
)
