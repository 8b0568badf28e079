package transcribe

import (
	"context"
	"time"
)

// Segment is one transcribed span of audio.
type Segment struct {
	Text    string
	StartMs int64
	EndMs   int64
	Speaker string
}

// Result is a full transcription of a stored recording.
type Result struct {
	Segments []Segment
	Duration time.Duration
}

// Transcriber converts audio to text. Both methods are synchronous and
// potentially slow; callers run them off their hot path.
type Transcriber interface {
	// TranscribeFile transcribes a finalized audio file in full.
	TranscribeFile(ctx context.Context, audioPath string) (Result, error)
	// TranscribeChunk transcribes a flushed slice of in-flight PCM into a
	// partial transcript line.
	TranscribeChunk(ctx context.Context, pcm []byte) (string, error)
	Name() string
}
