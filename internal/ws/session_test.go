package ws

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(userID uint, username string) *Client {
	return NewClient(nil, userID, username, username)
}

func TestRoomSession_DebounceMergesSaves(t *testing.T) {
	s := newRoomSession(1, "", time.Now())

	var saves int64
	var lastCode atomic.Value
	persist := func(code string, modified time.Time) error {
		atomic.AddInt64(&saves, 1)
		lastCode.Store(code)
		return nil
	}

	// Rapid edits inside the debounce window collapse into one save.
	for _, code := range []string{"a", "ab", "abc"} {
		s.SetDocument(code, time.Now())
		s.ScheduleSave(persist)
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(saveDebounce + 200*time.Millisecond)

	if got := atomic.LoadInt64(&saves); got != 1 {
		t.Fatalf("saves = %d, want 1", got)
	}
	if got := lastCode.Load(); got != "abc" {
		t.Errorf("persisted code = %v, want abc", got)
	}
}

func TestRoomSession_FlushCancelsPendingTimer(t *testing.T) {
	s := newRoomSession(1, "", time.Now())

	var timerSaves, flushSaves int64
	timerPersist := func(code string, modified time.Time) error {
		atomic.AddInt64(&timerSaves, 1)
		return nil
	}
	flushPersist := func(code string, modified time.Time) error {
		atomic.AddInt64(&flushSaves, 1)
		if code != "draft" {
			t.Errorf("flush persisted code = %q, want draft", code)
		}
		return nil
	}

	s.SetDocument("draft", time.Now())
	s.ScheduleSave(timerPersist)
	if err := s.Flush(flushPersist); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	time.Sleep(saveDebounce + 200*time.Millisecond)

	if got := atomic.LoadInt64(&flushSaves); got != 1 {
		t.Fatalf("flush saves = %d, want 1", got)
	}
	if got := atomic.LoadInt64(&timerSaves); got != 0 {
		t.Errorf("timer saves after flush = %d, want 0", got)
	}
}

func TestRoomSession_FlushPersistsEvenWhenClean(t *testing.T) {
	s := newRoomSession(1, "stable", time.Now())

	var saves int64
	err := s.Flush(func(code string, modified time.Time) error {
		atomic.AddInt64(&saves, 1)
		if code != "stable" {
			t.Errorf("flush persisted code = %q, want stable", code)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if saves != 1 {
		t.Fatalf("saves = %d, want 1", saves)
	}
}

func TestRoomSession_CursorThrottle(t *testing.T) {
	s := newRoomSession(1, "", time.Now())
	base := time.Now()

	if !s.AllowCursor(1, base) {
		t.Fatal("first cursor update should pass")
	}
	if s.AllowCursor(1, base.Add(50*time.Millisecond)) {
		t.Error("update inside throttle window should be dropped")
	}
	if !s.AllowCursor(1, base.Add(150*time.Millisecond)) {
		t.Error("update after throttle window should pass")
	}
	// A different user has an independent window.
	if !s.AllowCursor(2, base.Add(60*time.Millisecond)) {
		t.Error("other user's first update should pass")
	}
}

func TestRoomSession_ClearPresence(t *testing.T) {
	s := newRoomSession(1, "", time.Now())
	base := time.Now()

	s.AllowCursor(1, base)
	s.SetTyping(1, true)
	s.ClearPresence(1)

	// After clearing, the throttle window restarts.
	if !s.AllowCursor(1, base.Add(10*time.Millisecond)) {
		t.Error("cursor update after ClearPresence should pass")
	}
	s.mu.Lock()
	_, typing := s.typing[1]
	s.mu.Unlock()
	if typing {
		t.Error("typing flag should be cleared")
	}
}

func TestRoomSession_BroadcastExcludesSender(t *testing.T) {
	s := newRoomSession(1, "", time.Now())
	sender := newTestClient(1, "alice")
	other := newTestClient(2, "bob")
	s.add(sender)
	s.add(other)

	s.Broadcast(PushCodeUpdated, map[string]interface{}{"code": "x"}, sender.ID)

	if len(sender.send) != 0 {
		t.Errorf("sender received %d messages, want 0", len(sender.send))
	}
	if len(other.send) != 1 {
		t.Fatalf("other received %d messages, want 1", len(other.send))
	}
	var push Push
	if err := json.Unmarshal(<-other.send, &push); err != nil {
		t.Fatalf("unmarshal push: %v", err)
	}
	if push.Type != PushCodeUpdated {
		t.Errorf("push type = %q, want %q", push.Type, PushCodeUpdated)
	}
}

func TestRoomSession_DocumentLastWriterWins(t *testing.T) {
	s := newRoomSession(1, "first", time.Now())
	later := time.Now().Add(time.Second)
	s.SetDocument("second", later)

	code, modified := s.Document()
	if code != "second" {
		t.Errorf("code = %q, want second", code)
	}
	if !modified.Equal(later) {
		t.Errorf("modified = %v, want %v", modified, later)
	}
}
