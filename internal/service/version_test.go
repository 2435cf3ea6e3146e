package service

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestVersionService_Lifecycle(t *testing.T) {
	gdb := testDB(t)
	rooms := NewRoomService(gdb)
	versions := NewVersionService(gdb)
	owner := mustUser(t, gdb, "owner")

	room, err := rooms.Create("snapshots", "go", owner.ID)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(func() { _ = rooms.Delete(room.ID, owner.ID) })

	var lastID uint
	for i := 1; i <= 3; i++ {
		v, err := versions.Create(room.ID, owner.ID, fmt.Sprintf("rev %d", i), fmt.Sprintf("checkpoint %d", i))
		if err != nil {
			t.Fatalf("Create version %d: %v", i, err)
		}
		lastID = v.ID
		time.Sleep(5 * time.Millisecond)
	}

	// Newest first, capped by the limit.
	list, err := versions.List(room.ID, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d versions, want 2", len(list))
	}
	if list[0].ID != lastID {
		t.Errorf("newest version id = %d, want %d", list[0].ID, lastID)
	}

	got, err := versions.Get(lastID, room.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Code != "rev 3" {
		t.Errorf("version code = %q, want rev 3", got.Code)
	}

	// Lookups are room scoped.
	if _, err := versions.Get(lastID, room.ID+1); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("cross-room Get() error = %v, want ErrVersionNotFound", err)
	}

	if err := versions.Delete(lastID, room.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := versions.Delete(lastID, room.ID); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("double Delete() error = %v, want ErrVersionNotFound", err)
	}
}
