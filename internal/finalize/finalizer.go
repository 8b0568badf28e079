package finalize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nvoss/meetingscribe/internal/archive"
	"github.com/nvoss/meetingscribe/internal/audio"
	"github.com/nvoss/meetingscribe/internal/minutes"
	"github.com/nvoss/meetingscribe/internal/observability"
	"github.com/nvoss/meetingscribe/internal/protocol"
	"github.com/nvoss/meetingscribe/internal/record"
	"github.com/nvoss/meetingscribe/internal/reliability"
	"github.com/nvoss/meetingscribe/internal/session"
	"github.com/nvoss/meetingscribe/internal/transcribe"
)

// Result is what a successful finalize produced.
type Result struct {
	FullText       string
	MinutesPath    string
	ChunkCount     int
	AISuccess      bool
	FallbackReason string
}

// Finalizer turns an ended session into its durable artifacts: the full
// transcript, the minutes document and the persisted record. Finalize is not
// idempotent; callers gate it behind the session's lifecycle guard and the
// registry removal so it runs at most once per session.
type Finalizer struct {
	registry    *session.Registry
	transcriber transcribe.Transcriber
	generator   minutes.Generator
	fallback    minutes.Generator
	records     record.Store
	audioBox    *archive.Archive
	metrics     *observability.Metrics
	logger      *zap.Logger
	minutesDir  string
	retryMax    int
	workers     chan struct{}
}

type Options struct {
	Registry    *session.Registry
	Transcriber transcribe.Transcriber
	Generator   minutes.Generator // nil means template-only
	Records     record.Store
	Archive     *archive.Archive
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	MinutesDir  string
	RetryMax    int
	Workers     int
}

func New(opts Options) (*Finalizer, error) {
	if opts.Registry == nil || opts.Transcriber == nil || opts.Records == nil {
		return nil, fmt.Errorf("finalizer requires registry, transcriber and record store")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if err := os.MkdirAll(opts.MinutesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create minutes dir: %w", err)
	}
	return &Finalizer{
		registry:    opts.Registry,
		transcriber: opts.Transcriber,
		generator:   opts.Generator,
		fallback:    minutes.NewTemplateGenerator(),
		records:     opts.Records,
		audioBox:    opts.Archive,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		minutesDir:  opts.MinutesDir,
		retryMax:    opts.RetryMax,
		workers:     make(chan struct{}, opts.Workers),
	}, nil
}

// Run finalizes one session. The caller holds the session's lifecycle guard
// for the whole call and has already set the session to finalizing.
func (f *Finalizer) Run(ctx context.Context, sess *session.Session, w *audio.Writer) (Result, error) {
	select {
	case f.workers <- struct{}{}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	defer func() { <-f.workers }()

	start := time.Now()
	snap := sess.SnapshotState()
	f.logger.Info("finalize started",
		zap.String("session_id", sess.ID),
		zap.Int("chunks", snap.ChunkCount))

	segments, duration, err := f.transcribeAll(ctx, sess, w)
	if err != nil {
		return Result{}, err
	}
	sess.ReplaceTranscript(toSessionSegments(segments))

	res := f.generateMinutes(ctx, sess, segments, duration)
	res.ChunkCount = sess.ChunkCount()
	res.FullText = fullText(segments)

	f.progress(sess, "persisting", "saving meeting record")
	f.persist(ctx, sess, w, res, duration)

	sess.SetStatus(session.StatusCompleted)
	if _, err := f.registry.Remove(sess.ID); err != nil {
		f.logger.Warn("finalized session already removed", zap.String("session_id", sess.ID))
	}

	if f.metrics != nil {
		f.metrics.ObserveFinalizeDuration(time.Since(start))
		f.metrics.SessionEvents.WithLabelValues("finalized").Inc()
	}
	f.logger.Info("finalize done",
		zap.String("session_id", sess.ID),
		zap.Bool("ai_success", res.AISuccess),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// transcribeAll closes the audio part file into a WAV and re-transcribes the
// whole recording, superseding any partial transcripts.
func (f *Finalizer) transcribeAll(ctx context.Context, sess *session.Session, w *audio.Writer) ([]transcribe.Segment, time.Duration, error) {
	if w == nil || w.BytesWritten() == 0 {
		if w != nil {
			_ = w.Discard()
		}
		f.logger.Info("no audio to transcribe", zap.String("session_id", sess.ID))
		return nil, 0, nil
	}

	f.progress(sess, "transcribing", "re-transcribing full recording")
	wavPath, err := w.Finalize()
	if err != nil {
		return nil, 0, fmt.Errorf("finalize audio: %w", err)
	}

	var result transcribe.Result
	op := func() error {
		var terr error
		result, terr = f.transcriber.TranscribeFile(ctx, wavPath)
		if terr == nil {
			return nil
		}
		if f.metrics != nil {
			f.metrics.ProviderErrors.WithLabelValues(f.transcriber.Name(), "transcribe").Inc()
		}
		if !reliability.IsRetryable(terr) {
			return backoff.Permanent(terr)
		}
		return terr
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(f.retryMax))
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, 0, fmt.Errorf("transcribe recording: %w", err)
	}
	return result.Segments, result.Duration, nil
}

// generateMinutes runs the primary generator with bounded retries and falls
// back to the deterministic template when it is missing or keeps failing.
func (f *Finalizer) generateMinutes(ctx context.Context, sess *session.Session, segments []transcribe.Segment, duration time.Duration) Result {
	f.progress(sess, "generating_minutes", "writing meeting minutes")

	snap := sess.SnapshotState()
	style, err := minutes.ParseStyle(snap.MinutesStyle)
	if err != nil {
		style = minutes.StyleStandard
	}
	req := minutes.Request{
		Title:    snap.Title,
		Style:    style,
		Segments: segments,
		Duration: duration,
	}

	res := Result{AISuccess: true}
	gen := f.generator
	if gen == nil {
		res.AISuccess = false
		res.FallbackReason = "minutes generator not configured"
		gen = f.fallback
	}

	body, genErr := f.generateWithRetry(ctx, gen, req)
	if genErr != nil && gen != f.fallback {
		f.logger.Warn("minutes generation failed, using template",
			zap.String("session_id", sess.ID),
			zap.Error(genErr))
		if f.metrics != nil {
			f.metrics.ProviderErrors.WithLabelValues(gen.Name(), "minutes").Inc()
		}
		res.AISuccess = false
		res.FallbackReason = genErr.Error()
		gen = f.fallback
		body, genErr = gen.Generate(ctx, req)
	}
	if genErr != nil {
		// The template generator never fails; keep an empty body rather than
		// failing the whole finalize over minutes.
		res.AISuccess = false
		res.FallbackReason = genErr.Error()
		body = ""
	}

	doc := minutes.RenderDocument(minutes.DocumentMeta{
		Title:     snap.Title,
		SessionID: sess.ID,
		Generator: gen.Name(),
		Style:     style,
		Generated: time.Now().UTC(),
		Duration:  duration,
	}, body, segments)

	path := filepath.Join(f.minutesDir, sess.ID+".md")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		f.logger.Error("write minutes artifact", zap.String("session_id", sess.ID), zap.Error(err))
	} else {
		res.MinutesPath = path
	}
	return res
}

func (f *Finalizer) generateWithRetry(ctx context.Context, gen minutes.Generator, req minutes.Request) (string, error) {
	var body string
	op := func() error {
		var gerr error
		body, gerr = gen.Generate(ctx, req)
		if gerr == nil {
			return nil
		}
		if !reliability.IsRetryable(gerr) {
			return backoff.Permanent(gerr)
		}
		return gerr
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(f.retryMax))
	err := backoff.Retry(op, backoff.WithContext(policy, ctx))
	return body, err
}

// persist saves the record and archives the audio. Both are best-effort: the
// session already delivered its transcript to the client.
func (f *Finalizer) persist(ctx context.Context, sess *session.Session, w *audio.Writer, res Result, duration time.Duration) {
	snap := sess.SnapshotState()
	rec := record.MeetingRecord{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		Owner:       sess.OwnerID,
		Title:       snap.Title,
		FullText:    res.FullText,
		MinutesPath: res.MinutesPath,
		ChunkCount:  snap.ChunkCount,
		DurationMs:  duration.Milliseconds(),
		AISuccess:   res.AISuccess,
	}
	if res.MinutesPath != "" {
		if b, err := os.ReadFile(res.MinutesPath); err == nil {
			rec.Minutes = string(b)
		}
	}
	if w != nil && w.BytesWritten() > 0 {
		rec.AudioPath = w.Path()
	}
	if err := f.records.Save(ctx, rec); err != nil {
		f.logger.Error("persist meeting record", zap.String("session_id", sess.ID), zap.Error(err))
	}

	if f.audioBox != nil && rec.AudioPath != "" {
		go func(sessionID, wavPath string) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := f.audioBox.StoreAudio(ctx, sessionID, wavPath); err != nil {
				f.logger.Warn("archive audio", zap.String("session_id", sessionID), zap.Error(err))
			}
		}(sess.ID, rec.AudioPath)
	}
}

func (f *Finalizer) progress(sess *session.Session, step, message string) {
	sess.Send(protocol.Progress{Type: protocol.TypeProgress, Step: step, Message: message})
}

func toSessionSegments(segs []transcribe.Segment) []session.TranscriptSegment {
	out := make([]session.TranscriptSegment, 0, len(segs))
	for _, s := range segs {
		out = append(out, session.TranscriptSegment{
			ID:      uuid.NewString(),
			Text:    s.Text,
			StartMs: s.StartMs,
			EndMs:   s.EndMs,
			Speaker: s.Speaker,
		})
	}
	return out
}

func fullText(segs []transcribe.Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		t := strings.TrimSpace(s.Text)
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
