package minutes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nvoss/meetingscribe/internal/transcribe"
)

// TemplateGenerator writes minutes from the transcript alone, with no LLM.
// It is the deterministic fallback when the primary generator is missing or
// keeps failing.
type TemplateGenerator struct{}

func NewTemplateGenerator() *TemplateGenerator { return &TemplateGenerator{} }

func (t *TemplateGenerator) Name() string { return "template" }

func (t *TemplateGenerator) Generate(_ context.Context, req Request) (string, error) {
	switch req.Style {
	case StyleActionItems:
		return t.actionItems(req), nil
	case StyleBrief:
		return t.brief(req), nil
	default:
		return t.standard(req), nil
	}
}

func (t *TemplateGenerator) standard(req Request) string {
	var b strings.Builder
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "Meeting with %d transcribed segments", len(req.Segments))
	if req.Duration > 0 {
		fmt.Fprintf(&b, " over %s", req.Duration.Truncate(time.Second))
	}
	if speakers := speakerList(req.Segments); len(speakers) > 0 {
		fmt.Fprintf(&b, "; speakers: %s", strings.Join(speakers, ", "))
	}
	b.WriteString(".\n\n## Key points\n\n")
	for _, s := range headSegments(req.Segments, 10) {
		fmt.Fprintf(&b, "- %s\n", excerpt(s.Text, 160))
	}
	return b.String()
}

func (t *TemplateGenerator) actionItems(req Request) string {
	var b strings.Builder
	b.WriteString("## Action items\n\n")
	found := 0
	for _, s := range req.Segments {
		if !looksLikeAction(s.Text) {
			continue
		}
		owner := s.Speaker
		if owner == "" {
			owner = "unassigned"
		}
		fmt.Fprintf(&b, "- [ ] %s (%s)\n", excerpt(s.Text, 160), owner)
		found++
	}
	if found == 0 {
		b.WriteString("- [ ] No explicit action items detected; review the transcript.\n")
	}
	return b.String()
}

func (t *TemplateGenerator) brief(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Meeting of %d segments", len(req.Segments))
	if req.Duration > 0 {
		fmt.Fprintf(&b, " (%s)", req.Duration.Truncate(time.Second))
	}
	b.WriteString(". Opening: ")
	if len(req.Segments) > 0 {
		b.WriteString(excerpt(req.Segments[0].Text, 200))
	} else {
		b.WriteString("no audio transcribed")
	}
	if len(req.Segments) > 1 {
		b.WriteString(" Closing: ")
		b.WriteString(excerpt(req.Segments[len(req.Segments)-1].Text, 200))
	}
	b.WriteString("\n")
	return b.String()
}

var actionMarkers = []string{"will ", "todo", "to do", "action", "follow up", "followup", "should ", "need to", "assign"}

func looksLikeAction(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range actionMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func speakerList(segments []transcribe.Segment) []string {
	seen := map[string]struct{}{}
	for _, s := range segments {
		if s.Speaker != "" {
			seen[s.Speaker] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for sp := range seen {
		out = append(out, sp)
	}
	sort.Strings(out)
	return out
}

func headSegments(segments []transcribe.Segment, n int) []transcribe.Segment {
	if len(segments) <= n {
		return segments
	}
	return segments[:n]
}

func excerpt(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}
