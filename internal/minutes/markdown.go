package minutes

import (
	"fmt"
	"strings"
	"time"

	"github.com/nvoss/meetingscribe/internal/transcribe"
)

// DocumentMeta is the header block of a rendered minutes document.
type DocumentMeta struct {
	Title     string
	SessionID string
	Generator string
	Style     Style
	Generated time.Time
	Duration  time.Duration
}

// RenderDocument assembles the full markdown artifact: header, minutes body,
// then the timestamped transcript.
func RenderDocument(meta DocumentMeta, body string, segments []transcribe.Segment) string {
	var b strings.Builder
	if meta.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", meta.Title)
	} else {
		b.WriteString("# Meeting Minutes\n\n")
	}
	if meta.SessionID != "" {
		fmt.Fprintf(&b, "- Session: `%s`\n", meta.SessionID)
	}
	if meta.Generator != "" {
		fmt.Fprintf(&b, "- Generator: `%s`\n", meta.Generator)
	}
	if meta.Style != "" {
		fmt.Fprintf(&b, "- Style: `%s`\n", meta.Style)
	}
	if !meta.Generated.IsZero() {
		fmt.Fprintf(&b, "- Generated: %s\n", meta.Generated.UTC().Format(time.RFC3339))
	}
	if meta.Duration > 0 {
		fmt.Fprintf(&b, "- Duration: %s\n", meta.Duration.Truncate(time.Second))
	}
	b.WriteString("\n---\n\n")

	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n\n---\n\n## Transcript\n\n")

	for _, s := range segments {
		ts := ""
		if s.EndMs > 0 {
			ts = fmt.Sprintf("[%s-%s] ", msToTS(s.StartMs), msToTS(s.EndMs))
		}
		spk := ""
		if s.Speaker != "" {
			spk = s.Speaker + ": "
		}
		fmt.Fprintf(&b, "%s%s%s\n\n", ts, spk, strings.TrimSpace(s.Text))
	}
	return b.String()
}

func msToTS(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
