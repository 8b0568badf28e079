package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageStart(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"start","title":"Weekly sync"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	start, ok := msg.(StartMeeting)
	if !ok {
		t.Fatalf("parsed type = %T, want StartMeeting", msg)
	}
	if start.Title != "Weekly sync" {
		t.Fatalf("Title = %q, want %q", start.Title, "Weekly sync")
	}
}

func TestParseClientMessageChunk(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"chunk","sequence":7,"ts_ms":1200,"data":"AAEC"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	chunk, ok := msg.(AudioChunk)
	if !ok {
		t.Fatalf("parsed type = %T, want AudioChunk", msg)
	}
	if chunk.Sequence != 7 || chunk.Data != "AAEC" {
		t.Fatalf("unexpected chunk: %+v", chunk)
	}
}

func TestParseClientMessageChunkRequiresData(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"chunk","sequence":1}`)); err == nil {
		t.Fatalf("chunk without data should fail")
	}
}

func TestParseClientMessageControls(t *testing.T) {
	cases := []struct {
		raw  string
		want MessageType
	}{
		{`{"type":"end"}`, TypeEnd},
		{`{"type":"ping"}`, TypePing},
		{`{"type":"get_status"}`, TypeGetStatus},
		{`{"type":"pause"}`, TypePause},
		{`{"type":"resume"}`, TypeResume},
	}
	for _, tc := range cases {
		msg, err := ParseClientMessage([]byte(tc.raw))
		if err != nil {
			t.Fatalf("ParseClientMessage(%s) error = %v", tc.raw, err)
		}
		var got MessageType
		switch m := msg.(type) {
		case EndMeeting:
			got = m.Type
		case Ping:
			got = m.Type
		case GetStatus:
			got = m.Type
		case PauseMeeting:
			got = m.Type
		case ResumeMeeting:
			got = m.Type
		default:
			t.Fatalf("unexpected parsed type %T for %s", msg, tc.raw)
		}
		if got != tc.want {
			t.Fatalf("type = %q, want %q", got, tc.want)
		}
	}
}

func TestParseClientMessageUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"reboot"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageInvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatalf("invalid JSON should fail")
	}
}

func TestParseClientMessageStyleRequiresValue(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"select_minutes_style"}`)); err == nil {
		t.Fatalf("select_minutes_style without style should fail")
	}
}
