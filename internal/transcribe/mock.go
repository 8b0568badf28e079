package transcribe

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"time"
)

// MockTranscriber produces deterministic transcripts without touching the
// network. Useful for local development and tests.
type MockTranscriber struct {
	// Latency is added to every call to imitate a slow provider.
	Latency time.Duration
}

func NewMockTranscriber() *MockTranscriber { return &MockTranscriber{} }

func (m *MockTranscriber) Name() string { return "mock" }

func (m *MockTranscriber) TranscribeFile(ctx context.Context, audioPath string) (Result, error) {
	if err := m.wait(ctx); err != nil {
		return Result{}, err
	}
	info, err := os.Stat(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("stat audio file: %w", err)
	}
	// One segment per ~64KiB of audio, at least one, so larger recordings
	// yield visibly longer transcripts.
	n := int(info.Size()/65536) + 1
	if n > 8 {
		n = 8
	}
	res := Result{Duration: time.Duration(n) * 5 * time.Second}
	for i := 0; i < n; i++ {
		res.Segments = append(res.Segments, Segment{
			Text:    fmt.Sprintf("mock segment %d for %s", i+1, audioPath),
			StartMs: int64(i) * 5000,
			EndMs:   int64(i+1) * 5000,
			Speaker: speakerFor(i),
		})
	}
	return res, nil
}

func (m *MockTranscriber) TranscribeChunk(ctx context.Context, pcm []byte) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	h := fnv.New32a()
	h.Write(pcm)
	return fmt.Sprintf("mock partial transcript (%d bytes, %08x)", len(pcm), h.Sum32()), nil
}

func (m *MockTranscriber) wait(ctx context.Context) error {
	if m.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.Latency):
		return nil
	}
}

func speakerFor(i int) string {
	if i%2 == 0 {
		return "A"
	}
	return "B"
}
