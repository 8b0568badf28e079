package session

import (
	"context"
	"sync"
)

// Guard holds the two per-session mutual exclusion primitives. The lifecycle
// guard serializes start/end; the ingestion guard serializes chunk processing
// and is also taken by finalize to fence out new chunks.
//
// Ordering contract: whenever both are needed, lifecycle is acquired before
// ingestion. No caller may acquire them in the other order.
type Guard struct {
	lifecycle chan struct{}
	ingestion chan struct{}
}

func newGuard() *Guard {
	return &Guard{
		lifecycle: make(chan struct{}, 1),
		ingestion: make(chan struct{}, 1),
	}
}

// AcquireLifecycle blocks until the lifecycle guard is held or ctx ends.
// The returned release func is safe to call more than once.
func (g *Guard) AcquireLifecycle(ctx context.Context) (func(), error) {
	return acquire(ctx, g.lifecycle)
}

// AcquireIngestion blocks until the ingestion guard is held or ctx ends.
func (g *Guard) AcquireIngestion(ctx context.Context) (func(), error) {
	return acquire(ctx, g.ingestion)
}

// TryAcquireIngestion attempts the ingestion guard without blocking. A false
// result means a finalize (or another chunk) currently holds it.
func (g *Guard) TryAcquireIngestion() (func(), bool) {
	select {
	case g.ingestion <- struct{}{}:
		return releaseOnce(g.ingestion), true
	default:
		return nil, false
	}
}

func acquire(ctx context.Context, ch chan struct{}) (func(), error) {
	select {
	case ch <- struct{}{}:
		return releaseOnce(ch), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func releaseOnce(ch chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}
}
