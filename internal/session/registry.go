package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("session not found")

// Registry owns all live sessions. It is constructed once at startup and
// injected into the gateway, the finalizer and the sweeper; there is no
// package-level instance.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	onClose     func(*Session, string)
	logger      *zap.Logger
}

func NewRegistry(idleTimeout time.Duration, logger *zap.Logger) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		logger:      logger,
	}
}

// SetCloseHook installs a callback invoked after a session is closed or
// swept, outside the registry lock.
func (r *Registry) SetCloseHook(hook func(*Session, string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = hook
}

// CreateOrGet returns the session for id, creating it on first use. The
// second return reports whether the session was created by this call.
func (r *Registry) CreateOrGet(id, ownerID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s := newSession(id, ownerID)
	r.sessions[id] = s
	return s, true
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove takes the session out of the registry without touching its
// connection. Used by the finalize teardown path, where the gateway still
// needs the handle to emit the completion.
func (r *Registry) Remove(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.sessions, id)
	return s, nil
}

// Close detaches and best-effort-closes the connection, then removes the
// session. The session's guards are garbage with it; no side tables to clean.
func (r *Registry) Close(id, reason string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	hook := r.onClose
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if sender := s.Detach(); sender != nil {
		_ = sender.Close()
	}
	r.logger.Info("session closed",
		zap.String("session_id", id),
		zap.String("reason", reason))
	if hook != nil {
		hook(s, reason)
	}
	return nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartSweeper launches the expiry loop. It is tied to ctx: cancelling ctx
// stops the loop, so shutdown cannot leak a sweeper across restarts.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweepExpired()
			}
		}
	}()
}

func (r *Registry) sweepExpired() {
	now := time.Now().UTC()

	r.mu.RLock()
	var expired []string
	for id, s := range r.sessions {
		switch s.Status() {
		case StatusCompleted, StatusFinalizing:
			// Completed sessions are immutable records awaiting external
			// read; in-flight finalizes own their own lifetime.
			continue
		}
		if now.Sub(s.LastActivity()) >= r.idleTimeout {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range expired {
		if err := r.Close(id, "timeout"); err == nil {
			r.logger.Info("swept idle session", zap.String("session_id", id))
		}
	}
}
