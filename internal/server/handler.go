package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Jatin1234-kumar/CoLLabCode/internal/auth"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/rbac"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/service"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层与广播 Hub。
type Handler struct {
	userSvc *service.UserService
	roomSvc *service.RoomService
	verSvc  *service.VersionService
	hub     *ws.Hub
}

func NewHandler(userSvc *service.UserService, roomSvc *service.RoomService, verSvc *service.VersionService, hub *ws.Hub) *Handler {
	return &Handler{userSvc: userSvc, roomSvc: roomSvc, verSvc: verSvc, hub: hub}
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
		Password    string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Username) < 2 || len(req.Username) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	result, err := h.userSvc.Register(req.Username, req.DisplayName, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": result.ID, "username": result.Username, "displayName": result.DisplayName})
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user": gin.H{
			"id":          result.User.ID,
			"username":    result.User.Username,
			"displayName": result.User.DisplayName,
		},
	})
}

// RefreshToken 处理 token 刷新请求。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": result.AccessToken, "refresh_token": result.RefreshToken})
}

// CreateRoom 创建房间并向全部在线连接广播 room:created。
func (h *Handler) CreateRoom(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Language string `json:"language"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room name"})
		return
	}
	ownerID := auth.GetUserID(c)
	room, err := h.roomSvc.Create(req.Name, req.Language, ownerID)
	if err != nil {
		log.Error().Err(err).Uint("owner_id", ownerID).Str("name", req.Name).Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}
	h.hub.BroadcastAll(ws.PushRoomCreated, gin.H{
		"roomId":   room.ID,
		"name":     room.Name,
		"language": room.Language,
		"owner":    room.OwnerID,
	})
	c.JSON(http.StatusCreated, gin.H{"room": gin.H{
		"id":       room.ID,
		"name":     room.Name,
		"language": room.Language,
		"owner":    room.OwnerID,
	}})
}

// ListRooms 返回房间列表，附带各房间的在线人数。
func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.roomSvc.List(100)
	if err != nil {
		log.Error().Err(err).Msg("list rooms")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	out := make([]gin.H, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, gin.H{
			"id":           r.ID,
			"name":         r.Name,
			"language":     r.Language,
			"owner":        r.OwnerID,
			"participants": len(r.Participants),
			"online":       h.hub.Online(r.ID),
		})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

// GetRoom 返回房间详情、成员列表与加入申请。
func (h *Handler) GetRoom(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	room, err := h.roomSvc.Get(roomID)
	if err != nil {
		h.fail(c, err, "get room")
		return
	}
	roster, err := h.roomSvc.Roster(room)
	if err != nil {
		h.fail(c, err, "get room roster")
		return
	}
	requests, err := h.roomSvc.Requests(room)
	if err != nil {
		h.fail(c, err, "get room requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": gin.H{
		"id":           room.ID,
		"name":         room.Name,
		"language":     room.Language,
		"code":         room.Code,
		"owner":        room.OwnerID,
		"lastModified": room.LastModified,
		"maxVersions":  room.MaxVersions,
		"participants": roster,
		"joinRequests": requests,
	}})
}

// DeleteRoom 由房主删除房间：先 flush 掉待落盘的 debounce，
// 再级联删除并通知房间内所有连接。
func (h *Handler) DeleteRoom(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	callerID := auth.GetUserID(c)
	// 先同步落盘并取消挂起的定时器：删除被拒绝时文档依然是持久的，
	// 删除成功时也不会有定时器在级联之后再写库。
	if sess := h.hub.Peek(roomID); sess != nil {
		err := sess.Flush(func(code string, modified time.Time) error {
			return h.roomSvc.SaveDocument(roomID, code, modified)
		})
		if err != nil {
			log.Warn().Err(err).Uint("room_id", roomID).Msg("delete room flush")
		}
	}
	if err := h.roomSvc.Delete(roomID, callerID); err != nil {
		h.fail(c, err, "delete room")
		return
	}
	h.hub.BroadcastRoom(roomID, ws.PushRoomDeleted, gin.H{"roomId": roomID})
	h.hub.DropSession(roomID)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// LeaveRoom 退出房间并通知房主。
func (h *Handler) LeaveRoom(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	user := auth.GetUser(c)
	room, err := h.roomSvc.Get(roomID)
	if err != nil {
		h.fail(c, err, "leave room")
		return
	}
	if err := h.roomSvc.Leave(roomID, user.ID); err != nil {
		h.fail(c, err, "leave room")
		return
	}
	h.hub.NotifyUser(room.OwnerID, ws.PushParticipantLeft, gin.H{
		"roomId":   roomID,
		"userId":   user.ID,
		"username": user.Username,
	})
	c.JSON(http.StatusOK, gin.H{"left": true})
}

// CreateJoinRequest 由非成员发起加入申请，并把申请推送给房主。
func (h *Handler) CreateJoinRequest(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		RequestedRole string `json:"requestedRole"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user := auth.GetUser(c)
	jr, err := h.roomSvc.CreateJoinRequest(roomID, user.ID, rbac.Role(req.RequestedRole))
	if err != nil {
		h.fail(c, err, "create join request")
		return
	}
	room, err := h.roomSvc.Get(roomID)
	if err == nil {
		h.hub.NotifyUser(room.OwnerID, ws.PushJoinRequest, gin.H{
			"roomId": roomID,
			"request": gin.H{
				"id":            jr.ID,
				"userId":        jr.UserID,
				"username":      user.Username,
				"displayName":   user.DisplayName,
				"requestedRole": jr.RequestedRole,
				"requestedAt":   jr.RequestedAt,
			},
		})
	}
	c.JSON(http.StatusCreated, gin.H{"request": gin.H{
		"id":            jr.ID,
		"requestedRole": jr.RequestedRole,
		"status":        jr.Status,
	}})
}

// ApproveJoinRequest 由房主批准申请并直接通知申请人。
func (h *Handler) ApproveJoinRequest(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	requestID, ok := pathID(c, "requestID")
	if !ok {
		return
	}
	var req struct {
		OverrideRole string `json:"overrideRole"`
	}
	// body 可以为空，override 为可选。
	_ = c.ShouldBindJSON(&req)

	callerID := auth.GetUserID(c)
	jr, err := h.roomSvc.ApproveJoinRequest(roomID, requestID, callerID, rbac.Role(req.OverrideRole))
	if err != nil {
		h.fail(c, err, "approve join request")
		return
	}
	room, err := h.roomSvc.Get(roomID)
	if err == nil {
		h.hub.NotifyUser(jr.UserID, ws.PushJoinApproved, gin.H{
			"roomId":   roomID,
			"roomName": room.Name,
			"role":     jr.RequestedRole,
		})
	}
	c.JSON(http.StatusOK, gin.H{"request": gin.H{"id": jr.ID, "status": jr.Status}})
}

// RejectJoinRequest 由房主拒绝申请，不改动成员列表。
func (h *Handler) RejectJoinRequest(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	requestID, ok := pathID(c, "requestID")
	if !ok {
		return
	}
	if err := h.roomSvc.RejectJoinRequest(roomID, requestID, auth.GetUserID(c)); err != nil {
		h.fail(c, err, "reject join request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"rejected": true})
}

// UpdateParticipantRole 由房主调整成员角色，并同步广播给房间与目标用户。
func (h *Handler) UpdateParticipantRole(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userID")
	if !ok {
		return
	}
	var req struct {
		NewRole string `json:"newRole"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.roomSvc.UpdateParticipantRole(roomID, auth.GetUserID(c), targetID, rbac.Role(req.NewRole)); err != nil {
		h.fail(c, err, "update participant role")
		return
	}
	h.hub.BroadcastRoom(roomID, ws.PushRoleUpdated, gin.H{"userId": targetID, "newRole": req.NewRole})
	h.hub.NotifyUser(targetID, ws.PushMyRoleChanged, gin.H{"roomId": roomID, "newRole": req.NewRole})
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// TransferOwnership 把房间移交给已有成员。
func (h *Handler) TransferOwnership(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		NewOwnerID uint `json:"newOwnerId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.NewOwnerID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.roomSvc.TransferOwnership(roomID, auth.GetUserID(c), req.NewOwnerID); err != nil {
		h.fail(c, err, "transfer ownership")
		return
	}
	h.hub.BroadcastRoom(roomID, ws.PushRoleUpdated, gin.H{"userId": req.NewOwnerID, "newRole": string(rbac.RoleOwner)})
	h.hub.NotifyUser(req.NewOwnerID, ws.PushMyRoleChanged, gin.H{"roomId": roomID, "newRole": string(rbac.RoleOwner)})
	c.JSON(http.StatusOK, gin.H{"transferred": true})
}

// ListVersions 返回房间的快照列表，仅成员可见，数量受 MaxVersions 限制。
func (h *Handler) ListVersions(c *gin.Context) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	room, err := h.roomSvc.Get(roomID)
	if err != nil {
		h.fail(c, err, "list versions")
		return
	}
	if _, ok := h.roomSvc.RoleOf(room, auth.GetUserID(c)); !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant", "code": "ACCESS_DENIED"})
		return
	}
	versions, err := h.verSvc.List(room.ID, room.MaxVersions)
	if err != nil {
		h.fail(c, err, "list versions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func pathID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(v), true
}

// fail 把业务层错误映射为 HTTP 状态码与错误码。
func (h *Handler) fail(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found", "code": "ROOM_NOT_FOUND"})
	case errors.Is(err, service.ErrVersionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "version not found", "code": "NOT_FOUND"})
	case errors.Is(err, service.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "join request not found", "code": "REQUEST_NOT_FOUND"})
	case errors.Is(err, service.ErrNotParticipant), errors.Is(err, service.ErrNotOwner),
		errors.Is(err, service.ErrCannotDemoteOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "ACCESS_DENIED"})
	case errors.Is(err, service.ErrOwnerMustTransfer):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "INSUFFICIENT_PERMISSIONS"})
	case errors.Is(err, service.ErrAlreadyInRoom):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "ALREADY_IN_ROOM"})
	case errors.Is(err, service.ErrRequestExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "REQUEST_ALREADY_EXISTS"})
	case errors.Is(err, service.ErrRequestNotPending), errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrTargetNotInRoom):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "VALIDATION_ERROR"})
	default:
		log.Error().Err(err).Str("op", op).Msg("http handler")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "INTERNAL_ERROR"})
	}
}
