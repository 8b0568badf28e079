package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeStart              MessageType = "start"
	TypeChunk              MessageType = "chunk"
	TypeEnd                MessageType = "end"
	TypePing               MessageType = "ping"
	TypeGetStatus          MessageType = "get_status"
	TypeSelectMinutesStyle MessageType = "select_minutes_style"
	TypePause              MessageType = "pause"
	TypeResume             MessageType = "resume"

	TypeStarted    MessageType = "started"
	TypeTranscript MessageType = "transcript"
	TypeProgress   MessageType = "progress"
	TypeCompleted  MessageType = "completed"
	TypeError      MessageType = "error"
	TypePong       MessageType = "pong"
	TypeStatus     MessageType = "status"
)

// Error codes carried by ErrorEvent. Recoverable codes leave the connection
// open; the rest precede a close.
const (
	CodeMessageTooLarge = "MESSAGE_TOO_LARGE"
	CodeInvalidMessage  = "INVALID_MESSAGE"
	CodeInvalidJSON     = "INVALID_JSON"
	CodeUnknownType     = "UNKNOWN_TYPE"
	CodeNotRecording    = "NOT_RECORDING"
	CodeAlreadyStarted  = "ALREADY_STARTED"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeEndFailed       = "END_FAILED"
	CodeInternalError   = "INTERNAL_ERROR"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type StartMeeting struct {
	Type  MessageType `json:"type"`
	Title string      `json:"title"`
}

type AudioChunk struct {
	Type     MessageType `json:"type"`
	Sequence int         `json:"sequence"`
	TSMs     int64       `json:"ts_ms"`
	Data     string      `json:"data"`
	Mime     string      `json:"mime,omitempty"`
}

type EndMeeting struct {
	Type MessageType `json:"type"`
}

type Ping struct {
	Type MessageType `json:"type"`
}

type GetStatus struct {
	Type MessageType `json:"type"`
}

type SelectMinutesStyle struct {
	Type  MessageType `json:"type"`
	Style string      `json:"style"`
}

type PauseMeeting struct {
	Type MessageType `json:"type"`
}

type ResumeMeeting struct {
	Type MessageType `json:"type"`
}

type Started struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	AudioPath string      `json:"audio_path"`
}

type Transcript struct {
	Type     MessageType `json:"type"`
	Text     string      `json:"text"`
	Sequence int         `json:"sequence"`
	IsFinal  bool        `json:"is_final"`
}

type Progress struct {
	Type    MessageType `json:"type"`
	Step    string      `json:"step"`
	Message string      `json:"message"`
}

type Completed struct {
	Type           MessageType `json:"type"`
	FullText       string      `json:"full_text"`
	MinutesPath    string      `json:"minutes_path"`
	ChunkCount     int         `json:"chunk_count"`
	AISuccess      bool        `json:"ai_success"`
	FallbackReason string      `json:"fallback_reason,omitempty"`
}

type ErrorEvent struct {
	Type        MessageType `json:"type"`
	Code        string      `json:"code"`
	Message     string      `json:"message"`
	Recoverable bool        `json:"recoverable"`
}

type Pong struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
}

type Status struct {
	Type          MessageType `json:"type"`
	SessionID     string      `json:"session_id"`
	Status        string      `json:"status"`
	Title         string      `json:"title"`
	ChunkCount    int         `json:"chunk_count"`
	BufferedBytes int         `json:"buffered_bytes"`
	CreatedAt     int64       `json:"created_at"`
	LastActivity  int64       `json:"last_activity"`
}

// ParseClientMessage decodes one inbound envelope into its typed variant.
// Adding a message kind means adding a case here; the engine's dispatch is an
// exhaustive type switch over the returned values.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeStart:
		var msg StartMeeting
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeChunk:
		var msg AudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Data == "" {
			return nil, errors.New("invalid chunk: empty data")
		}
		return msg, nil
	case TypeEnd:
		return EndMeeting{Type: TypeEnd}, nil
	case TypePing:
		return Ping{Type: TypePing}, nil
	case TypeGetStatus:
		return GetStatus{Type: TypeGetStatus}, nil
	case TypeSelectMinutesStyle:
		var msg SelectMinutesStyle
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Style == "" {
			return nil, errors.New("invalid select_minutes_style: empty style")
		}
		return msg, nil
	case TypePause:
		return PauseMeeting{Type: TypePause}, nil
	case TypeResume:
		return ResumeMeeting{Type: TypeResume}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
