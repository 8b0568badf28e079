package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists meeting records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meeting_records (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			owner TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			full_text TEXT NOT NULL DEFAULT '',
			minutes TEXT NOT NULL DEFAULT '',
			minutes_path TEXT NOT NULL DEFAULT '',
			audio_path TEXT NOT NULL DEFAULT '',
			chunk_count INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			ai_success BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_meeting_records_owner_created ON meeting_records (owner, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, rec MeetingRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO meeting_records
		   (id, session_id, owner, title, full_text, minutes, minutes_path, audio_path, chunk_count, duration_ms, ai_success, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (session_id) DO UPDATE SET
		   full_text = EXCLUDED.full_text,
		   minutes = EXCLUDED.minutes,
		   minutes_path = EXCLUDED.minutes_path,
		   audio_path = EXCLUDED.audio_path,
		   chunk_count = EXCLUDED.chunk_count,
		   duration_ms = EXCLUDED.duration_ms,
		   ai_success = EXCLUDED.ai_success`,
		rec.ID,
		rec.SessionID,
		rec.Owner,
		rec.Title,
		rec.FullText,
		rec.Minutes,
		rec.MinutesPath,
		rec.AudioPath,
		rec.ChunkCount,
		rec.DurationMs,
		rec.AISuccess,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save meeting record: %w", err)
	}
	return nil
}

func (s *PostgresStore) BySession(ctx context.Context, sessionID string) (MeetingRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, session_id, owner, title, full_text, minutes, minutes_path, audio_path, chunk_count, duration_ms, ai_success, created_at
		 FROM meeting_records WHERE session_id=$1`,
		sessionID,
	)
	var r MeetingRecord
	err := row.Scan(&r.ID, &r.SessionID, &r.Owner, &r.Title, &r.FullText, &r.Minutes,
		&r.MinutesPath, &r.AudioPath, &r.ChunkCount, &r.DurationMs, &r.AISuccess, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MeetingRecord{}, ErrNotFound
	}
	if err != nil {
		return MeetingRecord{}, fmt.Errorf("load meeting record: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) RecentByOwner(ctx context.Context, owner string, limit int) ([]MeetingRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, owner, title, full_text, minutes, minutes_path, audio_path, chunk_count, duration_ms, ai_success, created_at
		 FROM meeting_records WHERE owner=$1 ORDER BY created_at DESC LIMIT $2`,
		owner,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query meeting records: %w", err)
	}
	defer rows.Close()

	items := make([]MeetingRecord, 0, limit)
	for rows.Next() {
		var r MeetingRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Owner, &r.Title, &r.FullText, &r.Minutes,
			&r.MinutesPath, &r.AudioPath, &r.ChunkCount, &r.DurationMs, &r.AISuccess, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
