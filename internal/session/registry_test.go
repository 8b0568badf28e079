package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

func (f *fakeSender) Send(v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.sent = append(f.sent, v)
	return true
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestRegistryCreateOrGet(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	s, created := r.CreateOrGet("m-1", "owner-1")
	if !created {
		t.Fatalf("first CreateOrGet should create")
	}
	if s.Status() != StatusCreated {
		t.Fatalf("Status = %q, want %q", s.Status(), StatusCreated)
	}

	again, created := r.CreateOrGet("m-1", "owner-1")
	if created {
		t.Fatalf("second CreateOrGet should not create")
	}
	if again != s {
		t.Fatalf("CreateOrGet returned a different session for the same id")
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRegistryCloseDetachesAndRemoves(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	var hooked string
	r.SetCloseHook(func(_ *Session, reason string) { hooked = reason })

	s, _ := r.CreateOrGet("m-1", "owner-1")
	sender := &fakeSender{}
	s.Attach(sender)

	if err := r.Close("m-1", "test"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !sender.isClosed() {
		t.Fatalf("Close() should close the attached sender")
	}
	if hooked != "test" {
		t.Fatalf("close hook reason = %q, want %q", hooked, "test")
	}
	if _, err := r.Get("m-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Close error = %v, want ErrNotFound", err)
	}
	if err := r.Close("m-1", "again"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Close error = %v, want ErrNotFound", err)
	}
}

func TestRegistryReattachKeepsAccumulatedState(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	s, _ := r.CreateOrGet("m-1", "owner-1")
	s.Attach(&fakeSender{})
	s.AppendSegments(TranscriptSegment{ID: "seg-1", Text: "hello"})
	s.RecordChunk(1024)

	replacement := &fakeSender{}
	s.Attach(replacement)

	if got := len(s.Transcript()); got != 1 {
		t.Fatalf("transcript length after reattach = %d, want 1", got)
	}
	if got := s.ChunkCount(); got != 1 {
		t.Fatalf("chunk count after reattach = %d, want 1", got)
	}
	if !s.Send("ping") || len(replacement.sent) != 1 {
		t.Fatalf("Send should go through the replacement sender")
	}
}

func TestRegistrySweeperExpiresIdleSessions(t *testing.T) {
	r := NewRegistry(30*time.Millisecond, nil)
	s, _ := r.CreateOrGet("m-idle", "owner-1")
	s.SetStatus(StatusRecording)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartSweeper(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.Get("m-idle"); errors.Is(err, ErrNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("idle session was not swept")
}

func TestRegistrySweeperNeverRemovesCompleted(t *testing.T) {
	r := NewRegistry(10*time.Millisecond, nil)
	s, _ := r.CreateOrGet("m-done", "owner-1")
	s.SetStatus(StatusCompleted)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartSweeper(ctx, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	if _, err := r.Get("m-done"); err != nil {
		t.Fatalf("completed session was swept: %v", err)
	}
}

func TestRegistryRemoveForTeardown(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	r.CreateOrGet("m-1", "owner-1")

	if _, err := r.Remove("m-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := r.Remove("m-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove error = %v, want ErrNotFound", err)
	}
}
