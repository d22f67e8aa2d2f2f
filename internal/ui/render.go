package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/longkey1/newschat/internal/newschat"
	"github.com/longkey1/newschat/internal/newschat/conversation"
)

const partialCursor = "▍"

// messageKey identifies a rendered message. Duplicates are tolerated on
// screen, so the index is part of the key.
func messageKey(m newschat.Message, i int) string {
	return fmt.Sprintf("%s|%s|%d", m.Role, m.Timestamp, i)
}

// renderer turns snapshots into viewport content. Finalized assistant
// messages go through glamour once and are cached.
type renderer struct {
	styles themeStyles
	width  int
	md     *glamour.TermRenderer
	cache  map[string]string
	now    func() time.Time
}

func newRenderer(styles themeStyles, width int, now func() time.Time) *renderer {
	return &renderer{
		styles: styles,
		width:  width,
		md:     newMarkdownRenderer(styles, width-4),
		cache:  make(map[string]string),
		now:    now,
	}
}

func (r *renderer) messages(snap conversation.Snapshot) string {
	blocks := make([]string, 0, len(snap.Messages))
	for i, m := range snap.Messages {
		blocks = append(blocks, r.message(m, i))
	}
	return strings.Join(blocks, "\n\n")
}

func (r *renderer) message(m newschat.Message, i int) string {
	var label, body lipgloss.Style
	switch m.Role {
	case newschat.RoleUser:
		label, body = r.styles.userLabel, r.styles.userBody
	case newschat.RoleAssistant:
		label, body = r.styles.agentLabel, r.styles.agentBody
	default:
		label, body = r.styles.systemLabel, r.styles.systemBody
	}

	header := label.Render(m.Role.Label())
	if when := r.relativeTime(m.Timestamp); when != "" {
		header += " " + r.styles.muted.Render(when)
	}

	return header + "\n" + body.Width(r.width-2).Render(r.content(m, i))
}

func (r *renderer) content(m newschat.Message, i int) string {
	if m.IsPartial {
		return m.Content + partialCursor
	}
	if m.Role != newschat.RoleAssistant || r.md == nil {
		return m.Content
	}

	key := messageKey(m, i)
	if out, ok := r.cache[key]; ok {
		return out
	}
	out, err := r.md.Render(m.Content)
	if err != nil {
		return m.Content
	}
	out = strings.Trim(out, "\n")
	r.cache[key] = out
	return out
}

func (r *renderer) relativeTime(ts newschat.Timestamp) string {
	t, ok := ts.Time()
	if !ok {
		return ""
	}
	if r.now().Sub(t) < time.Minute {
		return "just now"
	}
	return humanize.RelTime(t, r.now(), "ago", "from now")
}

func (r *renderer) welcome(suggestions []string) string {
	var b strings.Builder
	b.WriteString(r.styles.title.Render("Welcome to News Chat"))
	b.WriteString("\n\n")
	b.WriteString(r.styles.muted.Render("Ask about today's headlines, or pick a question:"))
	b.WriteString("\n\n")
	for i, s := range suggestions {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "  %s %s\n", r.styles.suggestion.Render(fmt.Sprintf("[%d]", i+1)), s)
	}
	return b.String()
}
