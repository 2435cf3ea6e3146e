package service

import (
	"errors"
	"time"

	"github.com/Jatin1234-kumar/CoLLabCode/internal/models"

	"gorm.io/gorm"
)

// VersionService 封装版本快照的业务逻辑。快照创建后不可变，仅允许删除。
type VersionService struct {
	db *gorm.DB
}

func NewVersionService(db *gorm.DB) *VersionService {
	return &VersionService{db: db}
}

// Create 以当前已落盘的文档内容创建一条快照。
func (s *VersionService) Create(roomID, authorID uint, code, label string) (*models.Version, error) {
	v := models.Version{RoomID: roomID, AuthorID: authorID, Code: code, Label: label, CreatedAt: time.Now()}
	if err := s.db.Create(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// Get 按 id 查找快照，并校验其归属房间。
func (s *VersionService) Get(versionID, roomID uint) (*models.Version, error) {
	var v models.Version
	if err := s.db.Where("id = ? AND room_id = ?", versionID, roomID).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	return &v, nil
}

// VersionDTO 是对外输出的快照数据。
type VersionDTO struct {
	ID        uint      `json:"id"`
	AuthorID  uint      `json:"authorId"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// List 返回房间最近的快照，最新在前，数量受房间 MaxVersions 限制。
// 超出上限的旧快照不返回，但也不会被清除。
func (s *VersionService) List(roomID uint, max int) ([]VersionDTO, error) {
	if max <= 0 {
		max = 50
	}
	var versions []models.Version
	err := s.db.Where("room_id = ?", roomID).Order("created_at desc").Limit(max).Find(&versions).Error
	if err != nil {
		return nil, err
	}
	out := make([]VersionDTO, 0, len(versions))
	for _, v := range versions {
		out = append(out, VersionDTO{ID: v.ID, AuthorID: v.AuthorID, Label: v.Label, CreatedAt: v.CreatedAt})
	}
	return out, nil
}

// Delete 删除一条快照。
func (s *VersionService) Delete(versionID, roomID uint) error {
	res := s.db.Where("id = ? AND room_id = ?", versionID, roomID).Delete(&models.Version{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionNotFound
	}
	return nil
}
