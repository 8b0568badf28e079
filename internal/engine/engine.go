package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nvoss/meetingscribe/internal/audio"
	"github.com/nvoss/meetingscribe/internal/finalize"
	"github.com/nvoss/meetingscribe/internal/ingest"
	"github.com/nvoss/meetingscribe/internal/minutes"
	"github.com/nvoss/meetingscribe/internal/observability"
	"github.com/nvoss/meetingscribe/internal/protocol"
	"github.com/nvoss/meetingscribe/internal/session"
	"github.com/nvoss/meetingscribe/internal/transcribe"
)

// Engine drives one websocket connection through the meeting lifecycle:
// start, audio ingestion with periodic partial transcripts, and the finalize
// on end or disconnect.
type Engine struct {
	registry    *session.Registry
	audioStore  *audio.Store
	transcriber transcribe.Transcriber
	finalizer   *finalize.Finalizer
	policy      ingest.FlushPolicy
	limits      ingest.Limits
	metrics     *observability.Metrics
	logger      *zap.Logger
}

type Options struct {
	Registry    *session.Registry
	AudioStore  *audio.Store
	Transcriber transcribe.Transcriber
	Finalizer   *finalize.Finalizer
	FlushPolicy ingest.FlushPolicy
	Limits      ingest.Limits
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		registry:    opts.Registry,
		audioStore:  opts.AudioStore,
		transcriber: opts.Transcriber,
		finalizer:   opts.Finalizer,
		policy:      opts.FlushPolicy,
		limits:      opts.Limits,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
}

// conn is the engine-side state of one websocket connection.
type conn struct {
	sessionID string
	owner     string
	sender    session.Sender
	sess      *session.Session
	buffer    *ingest.Buffer
	writer    *audio.Writer
}

// RunConnection consumes parsed inbound messages until the channel closes.
// Disconnect with recorded audio triggers the same finalize as an explicit
// end; the client just never sees the completion.
func (e *Engine) RunConnection(ctx context.Context, sessionID, owner string, inbound <-chan any, sender session.Sender) error {
	c := &conn{sessionID: sessionID, owner: owner, sender: sender}

	for {
		select {
		case <-ctx.Done():
			e.handleDisconnect(c)
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				e.handleDisconnect(c)
				return nil
			}
			e.dispatch(ctx, c, msg)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, c *conn, msg any) {
	switch m := msg.(type) {
	case protocol.StartMeeting:
		e.handleStart(ctx, c, m)
	case protocol.AudioChunk:
		e.handleChunk(ctx, c, m)
	case protocol.EndMeeting:
		e.handleEnd(ctx, c)
	case protocol.Ping:
		c.sender.Send(protocol.Pong{Type: protocol.TypePong, Timestamp: time.Now().UnixMilli()})
	case protocol.GetStatus:
		e.handleGetStatus(c)
	case protocol.SelectMinutesStyle:
		e.handleSelectStyle(c, m)
	case protocol.PauseMeeting:
		e.handlePause(c)
	case protocol.ResumeMeeting:
		e.handleResume(c)
	default:
		e.sendError(c, protocol.CodeUnknownType, "unsupported message type", true)
	}
}

func (e *Engine) handleStart(ctx context.Context, c *conn, msg protocol.StartMeeting) {
	if c.sess != nil {
		e.sendError(c, protocol.CodeAlreadyStarted, "meeting already started on this connection", true)
		return
	}

	sess, created := e.registry.CreateOrGet(c.sessionID, c.owner)
	release, err := sess.Guard.AcquireLifecycle(ctx)
	if err != nil {
		e.sendError(c, protocol.CodeInternalError, "could not start meeting", false)
		return
	}
	defer release()

	switch sess.Status() {
	case session.StatusFinalizing, session.StatusCompleted:
		e.sendError(c, protocol.CodeAlreadyStarted, "meeting already ended", false)
		return
	}

	writer, err := e.audioStore.Open(sess.ID)
	if err != nil {
		e.logger.Error("open audio writer", zap.String("session_id", sess.ID), zap.Error(err))
		e.sendError(c, protocol.CodeInternalError, "could not open audio storage", false)
		return
	}

	if msg.Title != "" {
		sess.SetTitle(msg.Title)
	}
	sess.Attach(c.sender)
	sess.SetStatus(session.StatusRecording)

	c.sess = sess
	c.writer = writer
	c.buffer = ingest.NewBuffer(e.limits, e.policy)

	if e.metrics != nil {
		if created {
			e.metrics.SessionEvents.WithLabelValues("created").Inc()
			e.metrics.ActiveSessions.Set(float64(e.registry.Count()))
		} else {
			e.metrics.SessionEvents.WithLabelValues("reattached").Inc()
		}
	}
	e.logger.Info("meeting started",
		zap.String("session_id", sess.ID),
		zap.String("owner", c.owner),
		zap.Bool("created", created))

	c.sender.Send(protocol.Started{
		Type:      protocol.TypeStarted,
		SessionID: sess.ID,
		AudioPath: writer.Path(),
	})
}

func (e *Engine) handleChunk(ctx context.Context, c *conn, msg protocol.AudioChunk) {
	if c.sess == nil {
		e.sendError(c, protocol.CodeNotRecording, "no meeting started", true)
		return
	}
	if st := c.sess.Status(); st != session.StatusRecording {
		e.sendError(c, protocol.CodeNotRecording, "meeting is not recording", true)
		return
	}

	release, ok := c.sess.Guard.TryAcquireIngestion()
	if !ok {
		// A finalize holds the ingestion guard; late chunks are dropped, not
		// queued behind it.
		if e.metrics != nil {
			e.metrics.DroppedChunks.Inc()
		}
		e.logger.Debug("chunk dropped, ingestion locked",
			zap.String("session_id", c.sess.ID),
			zap.Int("sequence", msg.Sequence))
		return
	}
	defer release()

	data, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		e.sendError(c, protocol.CodeInvalidMessage, "chunk data is not valid base64", true)
		return
	}

	if !c.buffer.Add(msg.Sequence, data) {
		e.flush(ctx, c)
		if !c.buffer.Add(msg.Sequence, data) {
			e.sendError(c, protocol.CodeInvalidMessage, "chunk exceeds buffer capacity", true)
			return
		}
	}
	c.sess.RecordChunk(len(data))

	if c.buffer.ShouldFlush() {
		e.flush(ctx, c)
	}
}

// flush drains the buffer to disk and pushes a partial transcript. Transcribing
// here is synchronous; it only ever delays this connection's own loop.
func (e *Engine) flush(ctx context.Context, c *conn) {
	data, lastSeq := c.buffer.TakeAndClear()
	if len(data) == 0 {
		return
	}
	if err := c.writer.Append(data); err != nil {
		e.logger.Error("append audio", zap.String("session_id", c.sess.ID), zap.Error(err))
		return
	}

	text, err := e.transcriber.TranscribeChunk(ctx, data)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ProviderErrors.WithLabelValues(e.transcriber.Name(), "partial").Inc()
		}
		e.logger.Warn("partial transcription failed",
			zap.String("session_id", c.sess.ID),
			zap.Error(err))
		return
	}
	if text == "" {
		return
	}

	c.sess.AppendSegments(session.TranscriptSegment{Text: text})
	c.sess.Send(protocol.Transcript{
		Type:     protocol.TypeTranscript,
		Text:     text,
		Sequence: lastSeq,
		IsFinal:  false,
	})
}

func (e *Engine) handleEnd(ctx context.Context, c *conn) {
	if c.sess == nil {
		e.sendError(c, protocol.CodeSessionNotFound, "no meeting to end", true)
		return
	}
	res, err := e.finalizeSession(ctx, c)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			// Another connection's end already tore the session down.
			e.sendError(c, protocol.CodeSessionNotFound, "meeting already ended", true)
		} else {
			e.sendError(c, protocol.CodeEndFailed, "finalize failed: "+err.Error(), false)
			if cerr := e.registry.Close(c.sess.ID, "finalize_failed"); cerr != nil && !errors.Is(cerr, session.ErrNotFound) {
				e.logger.Warn("close session after failed finalize",
					zap.String("session_id", c.sess.ID),
					zap.Error(cerr))
			}
			if e.metrics != nil {
				e.metrics.ActiveSessions.Set(float64(e.registry.Count()))
			}
		}
		e.closeConn(c)
		return
	}
	c.sender.Send(protocol.Completed{
		Type:           protocol.TypeCompleted,
		FullText:       res.FullText,
		MinutesPath:    res.MinutesPath,
		ChunkCount:     res.ChunkCount,
		AISuccess:      res.AISuccess,
		FallbackReason: res.FallbackReason,
	})
	e.closeConn(c)
}

// closeConn clears per-connection state and closes the outbound handle; the
// meeting is over for this connection on every end outcome.
func (e *Engine) closeConn(c *conn) {
	c.sess = nil
	c.writer = nil
	c.buffer = nil
	_ = c.sender.Close()
}

// finalizeSession holds both guards in the fixed order for the duration of
// the finalize, so no chunk handler can interleave with it.
func (e *Engine) finalizeSession(ctx context.Context, c *conn) (finalize.Result, error) {
	releaseLifecycle, err := c.sess.Guard.AcquireLifecycle(ctx)
	if err != nil {
		return finalize.Result{}, err
	}
	defer releaseLifecycle()
	releaseIngestion, err := c.sess.Guard.AcquireIngestion(ctx)
	if err != nil {
		return finalize.Result{}, err
	}
	defer releaseIngestion()

	// Re-check under the lifecycle guard: a finalize that raced us here may
	// have already torn the session down. Finalize is not idempotent, so a
	// stale connection must see not-found rather than a re-run.
	if cur, err := e.registry.Get(c.sess.ID); err != nil || cur != c.sess {
		return finalize.Result{}, session.ErrNotFound
	}
	switch c.sess.Status() {
	case session.StatusFinalizing, session.StatusCompleted:
		return finalize.Result{}, session.ErrNotFound
	}

	c.sess.SetStatus(session.StatusFinalizing)
	if e.metrics != nil {
		e.metrics.SessionEvents.WithLabelValues("ended").Inc()
	}

	// Remaining buffered audio goes to disk without a partial transcript; the
	// full re-transcription supersedes partials anyway.
	if data, _ := c.buffer.TakeAndClear(); len(data) > 0 {
		if err := c.writer.Append(data); err != nil {
			return finalize.Result{}, err
		}
	}

	res, err := e.finalizer.Run(ctx, c.sess, c.writer)
	if err != nil {
		return finalize.Result{}, err
	}
	if e.metrics != nil {
		e.metrics.ActiveSessions.Set(float64(e.registry.Count()))
	}
	return res, nil
}

// handleDisconnect runs when the read loop ends. A session with recorded
// audio finalizes as if the client had sent end; an empty one is discarded.
func (e *Engine) handleDisconnect(c *conn) {
	if c.sess == nil {
		return
	}
	sess := c.sess
	sess.Detach()

	switch sess.Status() {
	case session.StatusFinalizing, session.StatusCompleted:
		return
	}

	if sess.ChunkCount() == 0 {
		if c.writer != nil {
			_ = c.writer.Discard()
		}
		if err := e.registry.Close(sess.ID, "disconnect"); err != nil && !errors.Is(err, session.ErrNotFound) {
			e.logger.Warn("close empty session", zap.String("session_id", sess.ID), zap.Error(err))
		}
		if e.metrics != nil {
			e.metrics.ActiveSessions.Set(float64(e.registry.Count()))
		}
		return
	}

	e.logger.Info("disconnect with recorded audio, finalizing",
		zap.String("session_id", sess.ID),
		zap.Int("chunks", sess.ChunkCount()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := e.finalizeSession(ctx, c); err != nil && !errors.Is(err, session.ErrNotFound) {
		e.logger.Error("finalize after disconnect",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		if cerr := e.registry.Close(sess.ID, "finalize_failed"); cerr != nil && !errors.Is(cerr, session.ErrNotFound) {
			e.logger.Warn("close session after failed finalize",
				zap.String("session_id", sess.ID),
				zap.Error(cerr))
		}
		if e.metrics != nil {
			e.metrics.ActiveSessions.Set(float64(e.registry.Count()))
		}
	}
}

func (e *Engine) handleGetStatus(c *conn) {
	if c.sess == nil {
		e.sendError(c, protocol.CodeSessionNotFound, "no meeting started", true)
		return
	}
	snap := c.sess.SnapshotState()
	buffered := 0
	if c.buffer != nil {
		buffered = c.buffer.Len()
	}
	c.sender.Send(protocol.Status{
		Type:          protocol.TypeStatus,
		SessionID:     snap.ID,
		Status:        string(snap.Status),
		Title:         snap.Title,
		ChunkCount:    snap.ChunkCount,
		BufferedBytes: buffered,
		CreatedAt:     snap.CreatedAt.UnixMilli(),
		LastActivity:  snap.LastActivity.UnixMilli(),
	})
}

func (e *Engine) handleSelectStyle(c *conn, msg protocol.SelectMinutesStyle) {
	if c.sess == nil {
		e.sendError(c, protocol.CodeSessionNotFound, "no meeting started", true)
		return
	}
	style, err := minutes.ParseStyle(msg.Style)
	if err != nil {
		e.sendError(c, protocol.CodeInvalidMessage, err.Error(), true)
		return
	}
	c.sess.SetMinutesStyle(string(style))
	c.sess.Touch()
}

func (e *Engine) handlePause(c *conn) {
	if c.sess == nil {
		e.sendError(c, protocol.CodeSessionNotFound, "no meeting started", true)
		return
	}
	if c.sess.Status() != session.StatusRecording {
		e.sendError(c, protocol.CodeNotRecording, "meeting is not recording", true)
		return
	}
	c.sess.SetStatus(session.StatusPaused)
	c.sess.Touch()
}

func (e *Engine) handleResume(c *conn) {
	if c.sess == nil {
		e.sendError(c, protocol.CodeSessionNotFound, "no meeting started", true)
		return
	}
	if c.sess.Status() != session.StatusPaused {
		e.sendError(c, protocol.CodeNotRecording, "meeting is not paused", true)
		return
	}
	c.sess.SetStatus(session.StatusRecording)
	c.sess.Touch()
}

func (e *Engine) sendError(c *conn, code, message string, recoverable bool) {
	c.sender.Send(protocol.ErrorEvent{
		Type:        protocol.TypeError,
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
	})
}
