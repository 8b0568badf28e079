package record

import (
	"context"
	"time"
)

// MeetingRecord is the persisted outcome of a finalized session.
type MeetingRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Owner       string    `json:"owner"`
	Title       string    `json:"title"`
	FullText    string    `json:"full_text"`
	Minutes     string    `json:"minutes"`
	MinutesPath string    `json:"minutes_path"`
	AudioPath   string    `json:"audio_path"`
	ChunkCount  int       `json:"chunk_count"`
	DurationMs  int64     `json:"duration_ms"`
	AISuccess   bool      `json:"ai_success"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves finished meeting records.
type Store interface {
	Save(ctx context.Context, rec MeetingRecord) error
	BySession(ctx context.Context, sessionID string) (MeetingRecord, error)
	RecentByOwner(ctx context.Context, owner string, limit int) ([]MeetingRecord, error)
	Close() error
}
