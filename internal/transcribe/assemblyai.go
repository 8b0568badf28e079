package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
	"go.uber.org/zap"

	"github.com/nvoss/meetingscribe/internal/audio"
)

// AssemblyAITranscriber uploads audio to AssemblyAI and waits for the
// transcript. Blocking by design; the finalizer's worker semaphore bounds how
// many of these run at once.
type AssemblyAITranscriber struct {
	client     *aai.Client
	sampleRate int
	logger     *zap.Logger
}

func NewAssemblyAITranscriber(apiKey string, sampleRate int, logger *zap.Logger) *AssemblyAITranscriber {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssemblyAITranscriber{
		client:     aai.NewClient(apiKey),
		sampleRate: sampleRate,
		logger:     logger,
	}
}

func (t *AssemblyAITranscriber) Name() string { return "assemblyai" }

func (t *AssemblyAITranscriber) TranscribeFile(ctx context.Context, audioPath string) (Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	uploadURL, err := t.client.Upload(ctx, f)
	if err != nil {
		return Result{}, fmt.Errorf("upload to assemblyai: %w", err)
	}
	t.logger.Debug("audio uploaded", zap.String("path", audioPath))

	params := &aai.TranscriptOptionalParams{
		SpeakerLabels: aai.Bool(true),
	}
	transcript, err := t.client.Transcripts.TranscribeFromURL(ctx, uploadURL, params)
	if err != nil {
		return Result{}, fmt.Errorf("assemblyai transcription: %w", err)
	}

	res := Result{}
	if transcript.AudioDuration != nil {
		res.Duration = time.Duration(*transcript.AudioDuration * float64(time.Second))
	}
	for _, u := range transcript.Utterances {
		res.Segments = append(res.Segments, Segment{
			Text:    derefString(u.Text),
			StartMs: derefInt64(u.Start),
			EndMs:   derefInt64(u.End),
			Speaker: derefString(u.Speaker),
		})
	}
	if len(res.Segments) == 0 && derefString(transcript.Text) != "" {
		res.Segments = append(res.Segments, Segment{
			Text:  derefString(transcript.Text),
			EndMs: res.Duration.Milliseconds(),
		})
	}
	return res, nil
}

func (t *AssemblyAITranscriber) TranscribeChunk(ctx context.Context, pcm []byte) (string, error) {
	var wav bytes.Buffer
	if err := audio.WriteWAVPCM16LE(&wav, pcm, t.sampleRate); err != nil {
		return "", fmt.Errorf("wrap pcm as wav: %w", err)
	}
	uploadURL, err := t.client.Upload(ctx, &wav)
	if err != nil {
		return "", fmt.Errorf("upload chunk: %w", err)
	}
	transcript, err := t.client.Transcripts.TranscribeFromURL(ctx, uploadURL, nil)
	if err != nil {
		return "", fmt.Errorf("transcribe chunk: %w", err)
	}
	return derefString(transcript.Text), nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
