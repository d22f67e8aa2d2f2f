package plain

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/longkey1/newschat/internal/newschat"
	"github.com/longkey1/newschat/internal/newschat/conversation"
)

var (
	userLabel      = color.New(color.FgBlue, color.Bold).SprintFunc()
	assistantLabel = color.New(color.FgMagenta, color.Bold).SprintFunc()
	systemLabel    = color.New(color.FgYellow, color.Bold).SprintFunc()
	faint          = color.New(color.Faint).SprintFunc()
	warn           = color.New(color.FgRed).SprintFunc()
)

type printed struct {
	role  newschat.Role
	ts    newschat.Timestamp
	text  string // content already written
	final bool
}

// printer writes the conversation to a terminal that can only append.
// It compares each snapshot with what is already on screen and writes the
// difference: new messages, and the growth of a streaming reply.
type printer struct {
	out    io.Writer
	labels bool

	epoch   uint64
	shown   []printed
	pending map[string]int // user texts sent from here, not echoed again
}

func newPrinter(out io.Writer, labels bool) *printer {
	return &printer{out: out, labels: labels, pending: make(map[string]int)}
}

// expectEcho marks a user message typed here so it is not printed back
func (p *printer) expectEcho(text string) {
	p.pending[text]++
}

// skip marks everything in s as already on screen
func (p *printer) skip(s conversation.Snapshot) {
	p.epoch = s.Epoch
	p.shown = p.shown[:0]
	for _, m := range s.Messages {
		p.shown = append(p.shown, printed{role: m.Role, ts: m.Timestamp, text: m.Content, final: !m.IsPartial})
	}
}

func (p *printer) render(s conversation.Snapshot) {
	if s.Epoch != p.epoch || !p.matches(s.Messages) {
		if len(s.Messages) == 0 && len(p.shown) > 0 {
			p.endLine()
			fmt.Fprintln(p.out, faint("Conversation cleared."))
		}
		p.epoch = s.Epoch
		p.shown = p.shown[:0]
	}

	for i, m := range s.Messages {
		if i < len(p.shown) {
			p.grow(&p.shown[i], m)
			continue
		}

		p.shown = append(p.shown, printed{role: m.Role, ts: m.Timestamp})
		cur := &p.shown[len(p.shown)-1]

		if m.Role == newschat.RoleUser && p.pending[m.Content] > 0 {
			p.pending[m.Content]--
			cur.text, cur.final = m.Content, true
			continue
		}
		if !p.labels && m.Role != newschat.RoleAssistant {
			cur.text, cur.final = m.Content, true
			continue
		}

		if p.labels {
			fmt.Fprintf(p.out, "\n%s ", label(m.Role))
		}
		p.grow(cur, m)
	}
}

// grow writes the part of m not yet on screen
func (p *printer) grow(cur *printed, m newschat.Message) {
	if cur.final {
		return
	}
	if strings.HasPrefix(m.Content, cur.text) {
		fmt.Fprint(p.out, m.Content[len(cur.text):])
	} else {
		// The final text does not extend what was streamed; start over
		fmt.Fprint(p.out, "\n"+m.Content)
	}
	cur.text = m.Content
	if !m.IsPartial {
		cur.final = true
		fmt.Fprintln(p.out)
	}
}

// matches reports whether the messages on screen are a prefix of msgs
func (p *printer) matches(msgs []newschat.Message) bool {
	if len(msgs) < len(p.shown) {
		return false
	}
	for i, s := range p.shown {
		if msgs[i].Role != s.role || msgs[i].Timestamp != s.ts {
			return false
		}
	}
	return true
}

// endLine terminates a reply that was cut off mid-stream
func (p *printer) endLine() {
	if n := len(p.shown); n > 0 && !p.shown[n-1].final {
		fmt.Fprintln(p.out)
	}
}

func label(r newschat.Role) string {
	text := r.Label() + ">"
	switch r {
	case newschat.RoleUser:
		return userLabel(text)
	case newschat.RoleAssistant:
		return assistantLabel(text)
	default:
		return systemLabel(text)
	}
}
