package session

import (
	"context"
	"testing"
	"time"
)

func TestGuardTryAcquireIngestion(t *testing.T) {
	g := newGuard()

	release, ok := g.TryAcquireIngestion()
	if !ok {
		t.Fatalf("TryAcquireIngestion() on free guard should succeed")
	}
	if _, ok := g.TryAcquireIngestion(); ok {
		t.Fatalf("TryAcquireIngestion() on held guard should fail")
	}

	release()
	if _, ok := g.TryAcquireIngestion(); !ok {
		t.Fatalf("TryAcquireIngestion() after release should succeed")
	}
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	g := newGuard()
	release, err := g.AcquireLifecycle(context.Background())
	if err != nil {
		t.Fatalf("AcquireLifecycle() error = %v", err)
	}
	release()
	release()

	// A double release must not leave a phantom permit behind.
	release2, err := g.AcquireLifecycle(context.Background())
	if err != nil {
		t.Fatalf("AcquireLifecycle() after double release error = %v", err)
	}
	defer release2()
	if _, ok := g.TryAcquireIngestion(); !ok {
		t.Fatalf("ingestion guard should be independent of lifecycle guard")
	}
}

func TestGuardAcquireRespectsContext(t *testing.T) {
	g := newGuard()
	release, err := g.AcquireIngestion(context.Background())
	if err != nil {
		t.Fatalf("AcquireIngestion() error = %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.AcquireIngestion(ctx); err == nil {
		t.Fatalf("AcquireIngestion() on held guard should fail once ctx expires")
	}
}

func TestGuardLifecycleThenIngestionOrder(t *testing.T) {
	g := newGuard()
	releaseL, err := g.AcquireLifecycle(context.Background())
	if err != nil {
		t.Fatalf("AcquireLifecycle() error = %v", err)
	}
	releaseI, err := g.AcquireIngestion(context.Background())
	if err != nil {
		t.Fatalf("AcquireIngestion() after lifecycle error = %v", err)
	}
	releaseI()
	releaseL()
}
