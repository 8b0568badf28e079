package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nvoss/meetingscribe/internal/config"
	"github.com/nvoss/meetingscribe/internal/observability"
	"github.com/nvoss/meetingscribe/internal/protocol"
	"github.com/nvoss/meetingscribe/internal/session"
)

// Engine runs the meeting protocol for one connection. The gateway feeds it
// parsed messages and hands it the outbound sender.
type Engine interface {
	RunConnection(ctx context.Context, sessionID, owner string, inbound <-chan any, sender session.Sender) error
}

type Server struct {
	cfg      config.Config
	registry *session.Registry
	engine   Engine
	metrics  *observability.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, registry *session.Registry, engine Engine, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		engine:   engine,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Non-browser clients
				// usually omit Origin and are allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/ws/meeting/{session_id}", s.handleMeetingWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.registry.Count(),
	})
}

// wsSender is the detachable per-connection handle stored on the session.
// Send never blocks: a saturated outbound queue drops the message so a stuck
// peer cannot stall the engine. Close tears the connection down.
type wsSender struct {
	out    chan<- any
	cancel context.CancelFunc
	once   sync.Once
}

func (s *wsSender) Send(v any) bool {
	select {
	case s.out <- v:
		return true
	default:
		return false
	}
}

func (s *wsSender) Close() error {
	s.once.Do(s.cancel)
	return nil
}

func (s *Server) handleMeetingWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "path parameter session_id is required")
		return
	}
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		owner = "anonymous-" + uuid.NewString()[:8]
	}
	if s.engine == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "engine not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	}
	s.logger.Info("websocket connected",
		zap.String("session_id", sessionID),
		zap.String("owner", owner))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	sender := &wsSender{out: outbound, cancel: cancel}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = s.engine.RunConnection(ctx, sessionID, owner, inbound, sender)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		write := func(msg any) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return false
			}
			if s.metrics != nil {
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
			return true
		}
		for {
			select {
			case <-ctx.Done():
				// The engine closes its sender after a terminal reply; drain
				// what it already queued so completed and END_FAILED reach
				// the peer, then close the socket to unblock the read loop.
			drain:
				for {
					select {
					case msg := <-outbound:
						if !write(msg) {
							return
						}
					default:
						break drain
					}
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				if !write(msg) {
					return
				}
			}
		}
	}()

	// The hard read limit sits well above the protocol ceiling so oversized
	// frames within reason still surface as a recoverable protocol error
	// instead of an abrupt close.
	conn.SetReadLimit(4 * s.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		if int64(len(data)) > s.cfg.MaxMessageBytes {
			s.enqueueError(outbound, protocol.CodeMessageTooLarge, "message exceeds size limit", true)
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			code := protocol.CodeInvalidMessage
			if errors.Is(err, protocol.ErrUnsupportedType) {
				code = protocol.CodeUnknownType
			} else if !json.Valid(data) {
				code = protocol.CodeInvalidJSON
			}
			s.enqueueError(outbound, code, err.Error(), true)
			continue
		}

		if s.metrics != nil {
			if t, ok := messageTypeOf(parsed); ok {
				s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
			}
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	}
	s.logger.Info("websocket disconnected", zap.String("session_id", sessionID))
}

func (s *Server) enqueueError(outbound chan<- any, code, message string, recoverable bool) {
	ev := protocol.ErrorEvent{
		Type:        protocol.TypeError,
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
	}
	select {
	case outbound <- ev:
	default:
		// Keep websocket writes single-threaded; drop if the queue is full.
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.StartMeeting:
		return m.Type, true
	case protocol.AudioChunk:
		return m.Type, true
	case protocol.EndMeeting:
		return m.Type, true
	case protocol.Ping:
		return m.Type, true
	case protocol.GetStatus:
		return m.Type, true
	case protocol.SelectMinutesStyle:
		return m.Type, true
	case protocol.PauseMeeting:
		return m.Type, true
	case protocol.ResumeMeeting:
		return m.Type, true
	case protocol.Started:
		return m.Type, true
	case protocol.Transcript:
		return m.Type, true
	case protocol.Progress:
		return m.Type, true
	case protocol.Completed:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	case protocol.Pong:
		return m.Type, true
	case protocol.Status:
		return m.Type, true
	default:
		return "", false
	}
}
