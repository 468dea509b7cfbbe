package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Campus/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMessageCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &store.Message{ID: "m1", RoomID: "r1", UserID: "alice", Body: json.RawMessage(`{"text":"hi"}`)}
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.GetMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "alice" || string(got.Body) != `{"text":"hi"}` || got.Status != store.StatusSent {
		t.Fatalf("unexpected message %+v", got)
	}

	got.Body = json.RawMessage(`{"text":"edited"}`)
	if err := s.UpdateMessage(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.UpdateStatus(ctx, "r2", "m1", store.StatusRead); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("status update from another room should miss, got %v", err)
	}
	if err := s.UpdateStatus(ctx, "r1", "m1", store.StatusRead); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ = s.GetMessage(ctx, "m1")
	if string(got.Body) != `{"text":"edited"}` || got.Status != store.StatusRead {
		t.Fatalf("updates not applied: %+v", got)
	}

	if err := s.DeleteMessage(ctx, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetMessage(ctx, "m1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateStatus(ctx, "r1", "m1", store.StatusRead); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on missing row, got %v", err)
	}
}

func TestListMessagesNewestPageInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"m1", "m2", "m3", "m4"} {
		msg := &store.Message{ID: id, RoomID: "r1", UserID: "bob", Body: json.RawMessage(`{}`), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	s.CreateMessage(ctx, &store.Message{ID: "other", RoomID: "r2", UserID: "bob", Body: json.RawMessage(`{}`)})

	tests := []struct {
		name     string
		limit    int
		expected []string
	}{
		{name: "last two", limit: 2, expected: []string{"m3", "m4"}},
		{name: "all", limit: 10, expected: []string{"m1", "m2", "m3", "m4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := s.ListMessages(ctx, "r1", tt.limit)
			if err != nil {
				t.Fatalf("ListMessages failed: %v", err)
			}
			if len(msgs) != len(tt.expected) {
				t.Fatalf("expected %d messages, got %d", len(tt.expected), len(msgs))
			}
			for i, m := range msgs {
				if m.ID != tt.expected[i] {
					t.Errorf("message %d = %s, want %s", i, m.ID, tt.expected[i])
				}
			}
		})
	}
}
