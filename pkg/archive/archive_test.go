package archive

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/fanlv/chat-room/pkg/model"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func testMessage(roomID int64, content string, sentAt int64) model.Message {
	return model.Message{
		User: model.User{
			UserName: "alice",
			Address:  "10.0.0.1:1",
			RoomID:   roomID,
		},
		Time:    sentAt,
		Content: content,
	}
}

func TestAppendAndRecent(t *testing.T) {
	a := openTestArchive(t)

	base := time.Now().UnixNano()
	for i := 0; i < 3; i++ {
		msg := testMessage(1, fmt.Sprintf("msg-%d", i), base+int64(i))
		if err := a.Append(msg); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := a.Recent(1, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent: %d messages, want 3", len(got))
	}
	for i, msg := range got {
		if msg.Content != fmt.Sprintf("msg-%d", i) {
			t.Fatalf("Recent[%d]: got %q, want oldest-first order", i, msg.Content)
		}
		if msg.User.UserName != "alice" || msg.User.RoomID != 1 {
			t.Fatalf("Recent[%d]: user fields lost: %+v", i, msg.User)
		}
	}
}

func TestRecentLimit(t *testing.T) {
	a := openTestArchive(t)

	base := time.Now().UnixNano()
	for i := 0; i < 5; i++ {
		if err := a.Append(testMessage(1, fmt.Sprintf("msg-%d", i), base+int64(i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := a.Recent(1, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	// Limit keeps the newest messages, still reported oldest-first.
	if len(got) != 2 || got[0].Content != "msg-3" || got[1].Content != "msg-4" {
		t.Fatalf("Recent with limit: got %+v", got)
	}
}

func TestRoomsIsolated(t *testing.T) {
	a := openTestArchive(t)

	now := time.Now().UnixNano()
	if err := a.Append(testMessage(1, "room one", now)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Append(testMessage(2, "room two", now)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := a.Recent(1, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Content != "room one" {
		t.Fatalf("Recent: rooms not isolated: %+v", got)
	}
}

func TestCountSince(t *testing.T) {
	a := openTestArchive(t)

	cutoff := time.Now()
	if err := a.Append(testMessage(1, "old", cutoff.Add(-time.Hour).UnixNano())); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Append(testMessage(1, "new", cutoff.Add(time.Hour).UnixNano())); err != nil {
		t.Fatalf("Append: %v", err)
	}

	n, err := a.CountSince(1, cutoff)
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if n != 1 {
		t.Fatalf("CountSince: got %d, want 1", n)
	}
}
