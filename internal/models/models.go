package models

import "time"

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	DisplayName  string `gorm:"size:128"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:128;not null"`
	Language     string `gorm:"size:32;not null;default:javascript"`
	Code         string `gorm:"type:text"`
	OwnerID      uint   `gorm:"index;not null"`
	LastModified time.Time
	MaxVersions  int `gorm:"not null;default:50"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Participants []Participant `gorm:"constraint:OnDelete:CASCADE"`
	JoinRequests []JoinRequest `gorm:"constraint:OnDelete:CASCADE"`
}

// Participant 把用户绑定到房间并记录其角色，同一用户在一个房间内至多一条。
type Participant struct {
	ID       uint   `gorm:"primaryKey"`
	RoomID   uint   `gorm:"uniqueIndex:idx_room_user;not null"`
	UserID   uint   `gorm:"uniqueIndex:idx_room_user;index;not null"`
	Role     string `gorm:"size:16;not null"`
	JoinedAt time.Time
	LastSeen time.Time
}

// JoinRequest 记录加入申请，状态到达 approved/rejected 后保留作为审计记录。
type JoinRequest struct {
	ID            uint   `gorm:"primaryKey"`
	RoomID        uint   `gorm:"index;not null"`
	UserID        uint   `gorm:"index;not null"`
	RequestedRole string `gorm:"size:16;not null"`
	Status        string `gorm:"size:16;not null;default:pending"`
	RequestedAt   time.Time
}

// Version 是文档在某一时刻的不可变快照，仅允许删除。
type Version struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    uint   `gorm:"index:idx_ver_room;not null"`
	AuthorID  uint   `gorm:"index;not null"`
	Code      string `gorm:"type:text"`
	Label     string `gorm:"size:128"`
	CreatedAt time.Time
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
