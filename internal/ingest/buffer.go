package ingest

import (
	"sync"
	"time"
)

// FlushPolicy decides when buffered audio should be consumed into a partial
// transcript. One policy value drives every flush decision in the engine;
// there is deliberately no second set of thresholds anywhere.
type FlushPolicy struct {
	// MinBytes / MinChunks: either threshold arms a flush.
	MinBytes  int
	MinChunks int
	// MinInterval gates armed flushes so bursty senders don't produce a
	// partial per chunk.
	MinInterval time.Duration
	// ForcedInterval flushes regardless of size, so sparse senders still see
	// periodic partial transcripts.
	ForcedInterval time.Duration
}

// Limits are hard ceilings on in-flight audio. They bound memory growth; the
// buffer is not a sliding window and never evicts on its own.
type Limits struct {
	MaxBytes  int
	MaxChunks int
}

// Buffer accumulates raw audio for one session. Callers serialize access via
// the session's ingestion guard; the internal mutex only protects against
// status readers.
type Buffer struct {
	mu        sync.Mutex
	policy    FlushPolicy
	limits    Limits
	data      []byte
	chunks    int
	lastSeq   int
	lastFlush time.Time

	now func() time.Time // test hook
}

func NewBuffer(limits Limits, policy FlushPolicy) *Buffer {
	b := &Buffer{
		policy: policy,
		limits: limits,
		now:    time.Now,
	}
	b.lastFlush = b.now()
	return b
}

// Add appends one chunk's bytes. It returns false, leaving the buffer
// untouched, when accepting the chunk would exceed either ceiling; the caller
// must flush before more can be accepted.
func (b *Buffer) Add(seq int, data []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limits.MaxBytes > 0 && len(b.data)+len(data) > b.limits.MaxBytes {
		return false
	}
	if b.limits.MaxChunks > 0 && b.chunks+1 > b.limits.MaxChunks {
		return false
	}

	b.data = append(b.data, data...)
	b.chunks++
	b.lastSeq = seq
	return true
}

// ShouldFlush reports whether the policy arms a flush right now.
func (b *Buffer) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.chunks == 0 {
		return false
	}
	elapsed := b.now().Sub(b.lastFlush)
	if b.policy.ForcedInterval > 0 && elapsed >= b.policy.ForcedInterval {
		return true
	}
	armed := len(b.data) >= b.policy.MinBytes || b.chunks >= b.policy.MinChunks
	return armed && elapsed >= b.policy.MinInterval
}

// TakeAndClear returns the buffered audio plus the sequence number of the
// last chunk it contains, and resets counters and the flush timestamp.
func (b *Buffer) TakeAndClear() ([]byte, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := b.data
	seq := b.lastSeq
	b.data = nil
	b.chunks = 0
	b.lastFlush = b.now()
	return data, seq
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *Buffer) Chunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chunks
}
