package service

import (
	"errors"
	"time"

	"github.com/Jatin1234-kumar/CoLLabCode/internal/models"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/rbac"

	"gorm.io/gorm"
)

// RoomService 封装房间、成员与加入申请相关的业务逻辑。
type RoomService struct {
	db *gorm.DB
}

func NewRoomService(db *gorm.DB) *RoomService {
	return &RoomService{db: db}
}

// Create 创建房间并把创建者写入为 owner 参与者，两步在同一事务内完成。
func (s *RoomService) Create(name, language string, ownerID uint) (*models.Room, error) {
	if language == "" {
		language = "javascript"
	}
	now := time.Now()
	room := models.Room{Name: name, Language: language, OwnerID: ownerID, LastModified: now, MaxVersions: 50}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		p := models.Participant{RoomID: room.ID, UserID: ownerID, Role: string(rbac.RoleOwner), JoinedAt: now, LastSeen: now}
		return tx.Create(&p).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Get 返回房间及其成员与加入申请。
func (s *RoomService) Get(roomID uint) (*models.Room, error) {
	var room models.Room
	err := s.db.Preload("Participants").Preload("JoinRequests").First(&room, roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// List 返回最近更新的房间列表。
func (s *RoomService) List(limit int) ([]models.Room, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var rooms []models.Room
	if err := s.db.Preload("Participants").Order("updated_at desc").Limit(limit).Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

// Delete 由房主删除房间，级联删除快照、成员与加入申请。
func (s *RoomService) Delete(roomID, callerID uint) error {
	room, err := s.Get(roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != callerID {
		return ErrNotOwner
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&models.Version{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", roomID).Delete(&models.Participant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", roomID).Delete(&models.JoinRequest{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Room{}, roomID).Error
	})
}

// Leave 让成员退出房间；房主必须先转移所有权。
func (s *RoomService) Leave(roomID, userID uint) error {
	room, err := s.Get(roomID)
	if err != nil {
		return err
	}
	role, ok := s.RoleOf(room, userID)
	if !ok {
		return ErrNotParticipant
	}
	if role == rbac.RoleOwner {
		return ErrOwnerMustTransfer
	}
	return s.db.Where("room_id = ? AND user_id = ?", roomID, userID).Delete(&models.Participant{}).Error
}

// RoleOf 返回用户在房间内的角色；room 需已预加载 Participants。
func (s *RoomService) RoleOf(room *models.Room, userID uint) (rbac.Role, bool) {
	for _, p := range room.Participants {
		if p.UserID == userID {
			return rbac.Normalize(p.Role), true
		}
	}
	return "", false
}

// SaveDocument 把当前文档内容落盘，debounce 到期或同步 flush 时调用。
func (s *RoomService) SaveDocument(roomID uint, code string, modified time.Time) error {
	return s.db.Model(&models.Room{}).Where("id = ?", roomID).
		Updates(map[string]interface{}{"code": code, "last_modified": modified}).Error
}

// TouchLastSeen 更新成员的最后在线时间，尽力而为。
func (s *RoomService) TouchLastSeen(roomID, userID uint) {
	s.db.Model(&models.Participant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("last_seen", time.Now())
}

// CreateJoinRequest 由非成员发起加入申请；同一用户同一房间至多一条 pending。
func (s *RoomService) CreateJoinRequest(roomID, userID uint, requested rbac.Role) (*models.JoinRequest, error) {
	room, err := s.Get(roomID)
	if err != nil {
		return nil, err
	}
	if _, ok := s.RoleOf(room, userID); ok {
		return nil, ErrAlreadyInRoom
	}
	for _, r := range room.JoinRequests {
		if r.UserID == userID && r.Status == "pending" {
			return nil, ErrRequestExists
		}
	}
	if !rbac.Assignable(requested) {
		return nil, ErrInvalidRole
	}
	req := models.JoinRequest{
		RoomID:        roomID,
		UserID:        userID,
		RequestedRole: string(requested),
		Status:        "pending",
		RequestedAt:   time.Now(),
	}
	if err := s.db.Create(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// ApproveJoinRequest 由房主批准申请：写入成员并把申请置为 approved，原子完成。
// override 非空时覆盖申请角色，必须是 editor 或 viewer。
func (s *RoomService) ApproveJoinRequest(roomID, requestID, callerID uint, override rbac.Role) (*models.JoinRequest, error) {
	room, err := s.Get(roomID)
	if err != nil {
		return nil, err
	}
	if room.OwnerID != callerID {
		return nil, ErrNotOwner
	}
	if override != "" && !rbac.Assignable(override) {
		return nil, ErrInvalidRole
	}
	var req models.JoinRequest
	if err := s.db.Where("id = ? AND room_id = ?", requestID, roomID).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if req.Status != "pending" {
		return nil, ErrRequestNotPending
	}
	finalRole := rbac.Role(req.RequestedRole)
	if override != "" {
		finalRole = override
	}
	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		p := models.Participant{RoomID: roomID, UserID: req.UserID, Role: string(finalRole), JoinedAt: now, LastSeen: now}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		return tx.Model(&models.JoinRequest{}).Where("id = ?", req.ID).Update("status", "approved").Error
	})
	if err != nil {
		return nil, err
	}
	req.Status = "approved"
	req.RequestedRole = string(finalRole)
	return &req, nil
}

// RejectJoinRequest 由房主拒绝申请，仅翻状态，不动成员列表。
func (s *RoomService) RejectJoinRequest(roomID, requestID, callerID uint) error {
	room, err := s.Get(roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != callerID {
		return ErrNotOwner
	}
	var req models.JoinRequest
	if err := s.db.Where("id = ? AND room_id = ?", requestID, roomID).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		return err
	}
	if req.Status != "pending" {
		return ErrRequestNotPending
	}
	return s.db.Model(&models.JoinRequest{}).Where("id = ?", req.ID).Update("status", "rejected").Error
}

// UpdateParticipantRole 由房主调整成员角色；禁止指向房主自己的条目。
func (s *RoomService) UpdateParticipantRole(roomID, callerID, targetUserID uint, newRole rbac.Role) error {
	room, err := s.Get(roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != callerID {
		return ErrNotOwner
	}
	role, ok := s.RoleOf(room, targetUserID)
	if !ok {
		return ErrTargetNotInRoom
	}
	if role == rbac.RoleOwner {
		return ErrCannotDemoteOwner
	}
	if !rbac.Assignable(newRole) {
		return ErrInvalidRole
	}
	return s.db.Model(&models.Participant{}).
		Where("room_id = ? AND user_id = ?", roomID, targetUserID).
		Update("role", string(newRole)).Error
}

// TransferOwnership 把房间移交给已有成员：旧房主降为 editor、新房主升为 owner、
// Room.OwnerID 同步更新，三者在一个事务里要么全部生效要么全部回滚。
func (s *RoomService) TransferOwnership(roomID, callerID, newOwnerID uint) error {
	room, err := s.Get(roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != callerID {
		return ErrNotOwner
	}
	if _, ok := s.RoleOf(room, newOwnerID); !ok {
		return ErrTargetNotInRoom
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Participant{}).
			Where("room_id = ? AND user_id = ?", roomID, room.OwnerID).
			Update("role", string(rbac.RoleEditor)).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Participant{}).
			Where("room_id = ? AND user_id = ?", roomID, newOwnerID).
			Update("role", string(rbac.RoleOwner)).Error; err != nil {
			return err
		}
		return tx.Model(&models.Room{}).Where("id = ?", roomID).Update("owner_id", newOwnerID).Error
	})
}
