package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Jatin1234-kumar/CoLLabCode/internal/auth"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/config"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/db"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/models"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/rbac"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/service"
	"github.com/Jatin1234-kumar/CoLLabCode/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func dbForTest(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect("host=localhost user=postgres password=postgres dbname=collabcode port=5432 sslmode=disable TimeZone=UTC")
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Skipf("skip: migrate failed: %v", err)
	}
	return gdb
}

func createUser(t *testing.T, gdb *gorm.DB, tag string) *models.User {
	t.Helper()
	u := models.User{
		Username:     fmt.Sprintf("%s-%d", tag, time.Now().UnixNano()),
		DisplayName:  tag,
		PasswordHash: "x",
	}
	if err := gdb.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &u
}

func bearerFor(t *testing.T, cfg config.Config, userID uint) string {
	t.Helper()
	token, err := auth.GenerateAccessToken(userID, cfg.JWTSecret, cfg.AccessTokenTTLMinutes)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return "Bearer " + token
}

func TestDeleteRoom_NonOwnerKeepsPendingSave(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gdb := dbForTest(t)
	cfg := config.Config{Port: "0", JWTSecret: "secret", Env: "dev", AccessTokenTTLMinutes: 15, RefreshTokenTTLDays: 7}
	hub := ws.NewHub()
	engine := SetupRouter(cfg, gdb, hub)
	rooms := service.NewRoomService(gdb)

	owner := createUser(t, gdb, "owner")
	intruder := createUser(t, gdb, "intruder")
	room, err := rooms.Create("guarded", "go", owner.ID)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	t.Cleanup(func() { _ = rooms.Delete(room.ID, owner.ID) })

	// An edit sits in the debounce window when the delete arrives.
	var timerSaves int64
	sess := hub.Session(room.ID, room.Code, room.LastModified)
	sess.SetDocument("draft", time.Now())
	sess.ScheduleSave(func(code string, modified time.Time) error {
		atomic.AddInt64(&timerSaves, 1)
		return rooms.SaveDocument(room.ID, code, modified)
	})

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/rooms/%d", room.ID), nil)
	req.Header.Set("Authorization", bearerFor(t, cfg, intruder.ID))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("non-owner delete status = %d, want 403", w.Code)
	}

	// The refused delete leaves the room standing with the draft durable.
	loaded, err := rooms.Get(room.ID)
	if err != nil {
		t.Fatalf("room should survive non-owner delete: %v", err)
	}
	if loaded.Code != "draft" {
		t.Errorf("persisted code = %q, want draft", loaded.Code)
	}
	if hub.Peek(room.ID) == nil {
		t.Error("session should survive non-owner delete")
	}

	// The cancelled timer never fires; durability came from the flush.
	time.Sleep(700 * time.Millisecond)
	loaded, _ = rooms.Get(room.ID)
	if loaded.Code != "draft" {
		t.Errorf("code after debounce window = %q, want draft", loaded.Code)
	}
	if got := atomic.LoadInt64(&timerSaves); got != 0 {
		t.Errorf("timer saves = %d, want 0", got)
	}
}

func TestDeleteRoom_OwnerCascades(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gdb := dbForTest(t)
	cfg := config.Config{Port: "0", JWTSecret: "secret", Env: "dev", AccessTokenTTLMinutes: 15, RefreshTokenTTLDays: 7}
	hub := ws.NewHub()
	engine := SetupRouter(cfg, gdb, hub)
	rooms := service.NewRoomService(gdb)
	versions := service.NewVersionService(gdb)

	owner := createUser(t, gdb, "owner")
	member := createUser(t, gdb, "member")
	applicant := createUser(t, gdb, "applicant")
	room, err := rooms.Create("doomed", "go", owner.ID)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	now := time.Now()
	p := models.Participant{RoomID: room.ID, UserID: member.ID, Role: string(rbac.RoleEditor), JoinedAt: now, LastSeen: now}
	if err := gdb.Create(&p).Error; err != nil {
		t.Fatalf("create participant: %v", err)
	}
	if _, err := rooms.CreateJoinRequest(room.ID, applicant.ID, rbac.RoleViewer); err != nil {
		t.Fatalf("create join request: %v", err)
	}
	if _, err := versions.Create(room.ID, owner.ID, "snapshot", ""); err != nil {
		t.Fatalf("create version: %v", err)
	}
	hub.Session(room.ID, room.Code, room.LastModified)

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/rooms/%d", room.ID), nil)
	req.Header.Set("Authorization", bearerFor(t, cfg, owner.ID))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("owner delete status = %d, want 200", w.Code)
	}
	if _, err := rooms.Get(room.ID); !errors.Is(err, service.ErrRoomNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrRoomNotFound", err)
	}

	for _, tbl := range []struct {
		name  string
		model interface{}
	}{
		{"participants", &models.Participant{}},
		{"join requests", &models.JoinRequest{}},
		{"versions", &models.Version{}},
	} {
		var count int64
		if err := gdb.Model(tbl.model).Where("room_id = ?", room.ID).Count(&count).Error; err != nil {
			t.Fatalf("count %s: %v", tbl.name, err)
		}
		if count != 0 {
			t.Errorf("%s remaining after delete = %d, want 0", tbl.name, count)
		}
	}
	if hub.Peek(room.ID) != nil {
		t.Error("session should be dropped after delete")
	}
}
