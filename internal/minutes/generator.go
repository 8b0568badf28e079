package minutes

import (
	"context"
	"fmt"
	"time"

	"github.com/nvoss/meetingscribe/internal/transcribe"
)

// Style selects the shape of the generated minutes.
type Style string

const (
	StyleStandard    Style = "standard"
	StyleActionItems Style = "action_items"
	StyleBrief       Style = "brief"
)

// ParseStyle validates a client-supplied style string.
func ParseStyle(s string) (Style, error) {
	switch Style(s) {
	case StyleStandard, StyleActionItems, StyleBrief:
		return Style(s), nil
	default:
		return "", fmt.Errorf("unknown minutes style %q", s)
	}
}

// Request carries everything a generator needs to write minutes.
type Request struct {
	Title    string
	Style    Style
	Segments []transcribe.Segment
	Duration time.Duration
}

// Generator turns a finished transcript into meeting minutes in markdown.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// transcriptText flattens segments into the plain-text form generators feed
// to prompts and templates.
func transcriptText(segments []transcribe.Segment) string {
	var out []byte
	for _, s := range segments {
		if s.Speaker != "" {
			out = append(out, s.Speaker...)
			out = append(out, ':', ' ')
		}
		out = append(out, s.Text...)
		out = append(out, '\n')
	}
	return string(out)
}
