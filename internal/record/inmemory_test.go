package record

import (
	"context"
	"errors"
	"testing"
)

func TestInMemorySaveAndBySession(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	rec := MeetingRecord{SessionID: "m-1", Owner: "alice", Title: "standup", FullText: "hello"}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.BySession(ctx, "m-1")
	if err != nil {
		t.Fatalf("BySession() error = %v", err)
	}
	if got.ID == "" || got.CreatedAt.IsZero() {
		t.Fatalf("Save should assign id and created_at, got %+v", got)
	}
	if got.FullText != "hello" {
		t.Fatalf("FullText = %q, want %q", got.FullText, "hello")
	}
}

func TestInMemoryBySessionNotFound(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.BySession(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("BySession() error = %v, want ErrNotFound", err)
	}
}

func TestInMemorySaveOverwritesSameSession(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Save(ctx, MeetingRecord{SessionID: "m-1", Owner: "alice", FullText: "first"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, MeetingRecord{SessionID: "m-1", Owner: "alice", FullText: "second"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.BySession(ctx, "m-1")
	if err != nil {
		t.Fatalf("BySession() error = %v", err)
	}
	if got.FullText != "second" {
		t.Fatalf("FullText = %q, want %q", got.FullText, "second")
	}
	recs, err := s.RecentByOwner(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("RecentByOwner() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("RecentByOwner() = %d records, want 1", len(recs))
	}
}

func TestInMemoryRecentByOwnerLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"m-1", "m-2", "m-3"} {
		if err := s.Save(ctx, MeetingRecord{SessionID: id, Owner: "alice"}); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}

	recs, err := s.RecentByOwner(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("RecentByOwner() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("RecentByOwner() = %d records, want 2", len(recs))
	}
	if recs[0].SessionID != "m-2" || recs[1].SessionID != "m-3" {
		t.Fatalf("expected the two most recent in order, got %s, %s", recs[0].SessionID, recs[1].SessionID)
	}
}
