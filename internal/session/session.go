package session

import (
	"sync"
	"time"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusRecording  Status = "recording"
	StatusPaused     Status = "paused"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
)

// Sender is the detachable connection handle stored per session. Send is
// best-effort: a false result means the peer is gone or its queue is full.
type Sender interface {
	Send(v any) bool
	Close() error
}

// TranscriptSegment is one unit of transcribed text, appended in arrival
// order. Arrival order is the only ordering guarantee on transcripts.
type TranscriptSegment struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Speaker string `json:"speaker,omitempty"`
}

// Snapshot is an immutable copy of session state for status replies.
type Snapshot struct {
	ID            string
	OwnerID       string
	Status        Status
	Title         string
	Participants  []string
	ChunkCount    int
	BytesReceived int64
	CreatedAt     time.Time
	StartTime     time.Time
	EndTime       time.Time
	LastActivity  time.Time
	MinutesStyle  string
}

// Session is the unit of lifecycle tracking for one meeting. It owns its own
// guards; when the registry drops the session the guards go with it, so no
// separate lock-map cleanup exists anywhere.
type Session struct {
	ID      string
	OwnerID string
	Guard   *Guard

	mu            sync.Mutex
	status        Status
	title         string
	participants  []string
	minutesStyle  string
	chunkCount    int
	bytesReceived int64
	createdAt     time.Time
	startTime     time.Time
	endTime       time.Time
	lastActivity  time.Time
	sender        Sender
	transcript    []TranscriptSegment
}

func newSession(id, ownerID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           id,
		OwnerID:      ownerID,
		Guard:        newGuard(),
		status:       StatusCreated,
		minutesStyle: "standard",
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	switch status {
	case StatusRecording:
		if s.startTime.IsZero() {
			s.startTime = time.Now().UTC()
		}
	case StatusCompleted:
		s.endTime = time.Now().UTC()
	}
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now().UTC()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

func (s *Session) SetMinutesStyle(style string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minutesStyle = style
}

func (s *Session) MinutesStyle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minutesStyle
}

func (s *Session) RecordChunk(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkCount++
	s.bytesReceived += int64(n)
	s.lastActivity = time.Now().UTC()
}

func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkCount
}

// AppendSegments records partial transcript segments in arrival order.
func (s *Session) AppendSegments(segs ...TranscriptSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, segs...)
}

// ReplaceTranscript installs the authoritative full transcript produced by
// finalize, superseding the partial segments accumulated during ingestion.
func (s *Session) ReplaceTranscript(segs []TranscriptSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript[:0:0], segs...)
}

func (s *Session) Transcript() []TranscriptSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptSegment, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Attach replaces the connection handle. Reconnecting clients keep their
// accumulated transcript and audio.
func (s *Session) Attach(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = sender
	s.lastActivity = time.Now().UTC()
}

// Detach drops the connection handle and returns it, or nil.
func (s *Session) Detach() Sender {
	s.mu.Lock()
	defer s.mu.Unlock()
	sender := s.sender
	s.sender = nil
	return sender
}

// Send pushes a message through the current connection handle. Sessions
// finalizing after a disconnect have no handle; those sends are dropped.
func (s *Session) Send(v any) bool {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		return false
	}
	return sender.Send(v)
}

func (s *Session) SnapshotState() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.ID,
		OwnerID:       s.OwnerID,
		Status:        s.status,
		Title:         s.title,
		Participants:  append([]string(nil), s.participants...),
		ChunkCount:    s.chunkCount,
		BytesReceived: s.bytesReceived,
		CreatedAt:     s.createdAt,
		StartTime:     s.startTime,
		EndTime:       s.endTime,
		LastActivity:  s.lastActivity,
		MinutesStyle:  s.minutesStyle,
	}
}
