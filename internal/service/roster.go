package service

import (
	"time"

	"github.com/Jatin1234-kumar/CoLLabCode/internal/models"
)

// ParticipantDTO 是对外输出的成员数据。
type ParticipantDTO struct {
	UserID      uint      `json:"userId"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// JoinRequestDTO 是对外输出的加入申请数据。
type JoinRequestDTO struct {
	ID            uint      `json:"id"`
	UserID        uint      `json:"userId"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"displayName"`
	RequestedRole string    `json:"requestedRole"`
	Status        string    `json:"status"`
	RequestedAt   time.Time `json:"requestedAt"`
}

// Roster 把房间成员展开为带用户名的列表；room 需已预加载 Participants。
func (s *RoomService) Roster(room *models.Room) ([]ParticipantDTO, error) {
	ids := make([]uint, 0, len(room.Participants))
	for _, p := range room.Participants {
		ids = append(ids, p.UserID)
	}
	names, err := s.resolveUsers(ids)
	if err != nil {
		return nil, err
	}
	out := make([]ParticipantDTO, 0, len(room.Participants))
	for _, p := range room.Participants {
		u := names[p.UserID]
		out = append(out, ParticipantDTO{
			UserID:      p.UserID,
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Role:        p.Role,
			JoinedAt:    p.JoinedAt,
		})
	}
	return out, nil
}

// Requests 把加入申请展开为带用户名的列表；room 需已预加载 JoinRequests。
func (s *RoomService) Requests(room *models.Room) ([]JoinRequestDTO, error) {
	ids := make([]uint, 0, len(room.JoinRequests))
	for _, r := range room.JoinRequests {
		ids = append(ids, r.UserID)
	}
	names, err := s.resolveUsers(ids)
	if err != nil {
		return nil, err
	}
	out := make([]JoinRequestDTO, 0, len(room.JoinRequests))
	for _, r := range room.JoinRequests {
		u := names[r.UserID]
		out = append(out, JoinRequestDTO{
			ID:            r.ID,
			UserID:        r.UserID,
			Username:      u.Username,
			DisplayName:   u.DisplayName,
			RequestedRole: r.RequestedRole,
			Status:        r.Status,
			RequestedAt:   r.RequestedAt,
		})
	}
	return out, nil
}

// resolveUsers 批量获取用户名，避免逐条查询。
func (s *RoomService) resolveUsers(ids []uint) (map[uint]models.User, error) {
	seen := make(map[uint]struct{}, len(ids))
	uniq := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	out := make(map[uint]models.User, len(uniq))
	if len(uniq) > 0 {
		var users []models.User
		if err := s.db.Select("id", "username", "display_name").Where("id IN ?", uniq).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			out[u.ID] = u
		}
	}
	return out, nil
}
