package plain

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longkey1/newschat/internal/newschat"
	"github.com/longkey1/newschat/internal/newschat/conversation"
	"github.com/longkey1/newschat/internal/newschat/session"
	"github.com/longkey1/newschat/internal/newschat/transport"
)

func init() {
	color.NoColor = true
}

// syncBuffer is a bytes.Buffer safe for concurrent use
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// streamingChat replies to every message with a streamed echo
type streamingChat struct {
	mu      sync.Mutex
	msgs    []newschat.Message
	theme   session.Theme
	cleared int
	snaps   chan conversation.Snapshot
	notices chan conversation.Notice
	failAll string
}

func newStreamingChat() *streamingChat {
	return &streamingChat{
		theme:   session.ThemeLight,
		snaps:   make(chan conversation.Snapshot, 16),
		notices: make(chan conversation.Notice, 1),
	}
}

func (c *streamingChat) publish(loading bool) {
	c.snaps <- conversation.Snapshot{Messages: append([]newschat.Message(nil), c.msgs...), Loading: loading}
}

func (c *streamingChat) Send(_ context.Context, text string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.msgs = append(c.msgs, newschat.Message{Role: newschat.RoleUser, Content: text, Timestamp: "u"})
	c.publish(true)

	if c.failAll != "" {
		c.notices <- conversation.Notice{Kind: conversation.NoticeError, Text: c.failAll}
		return true, nil
	}

	ts := newschat.Timestamp("r-" + text)
	c.msgs = append(c.msgs, newschat.Message{Role: newschat.RoleAssistant, Content: "Echo: ", Timestamp: ts, IsPartial: true})
	c.publish(true)
	c.msgs[len(c.msgs)-1].Content = "Echo: " + text
	c.publish(true)
	c.msgs[len(c.msgs)-1].IsPartial = false
	c.publish(false)
	return true, nil
}

func (c *streamingChat) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared++
	c.msgs = nil
	c.publish(false)
	return nil
}

func (c *streamingChat) Snapshot() conversation.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return conversation.Snapshot{Messages: append([]newschat.Message(nil), c.msgs...)}
}

func (c *streamingChat) Subscribe(context.Context) (<-chan conversation.Snapshot, func()) {
	return c.snaps, func() {}
}

func (c *streamingChat) SessionID() string                       { return "550e8400-e29b-41d4-a716-446655440000" }
func (c *streamingChat) Notices() <-chan conversation.Notice     { return c.notices }
func (c *streamingChat) ConnState() transport.ConnState          { return transport.StateConnected }
func (c *streamingChat) Theme() session.Theme                    { return c.theme }
func (c *streamingChat) CanDictate() bool                        { return false }
func (c *streamingChat) Dictate(context.Context) (string, error) { return "", nil }

func (c *streamingChat) ToggleTheme() (session.Theme, error) {
	c.theme = c.theme.Toggled()
	return c.theme, nil
}

func TestPrinter_StreamsDeltas(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, true)

	p.render(conversation.Snapshot{Messages: []newschat.Message{
		{Role: newschat.RoleUser, Content: "Hi", Timestamp: "t0"},
	}})
	p.render(conversation.Snapshot{Messages: []newschat.Message{
		{Role: newschat.RoleUser, Content: "Hi", Timestamp: "t0"},
		{Role: newschat.RoleAssistant, Content: "Hel", Timestamp: "t1", IsPartial: true},
	}})
	p.render(conversation.Snapshot{Messages: []newschat.Message{
		{Role: newschat.RoleUser, Content: "Hi", Timestamp: "t0"},
		{Role: newschat.RoleAssistant, Content: "Hello", Timestamp: "t1"},
	}})

	assert.Equal(t, "\nYou> Hi\n\nAssistant> Hello\n", out.String())
}

func TestPrinter_SkipsEcho(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, true)
	p.expectEcho("Hi")

	p.render(conversation.Snapshot{Messages: []newschat.Message{
		{Role: newschat.RoleUser, Content: "Hi", Timestamp: "t0"},
		{Role: newschat.RoleAssistant, Content: "Hello", Timestamp: "t1"},
	}})
	assert.Equal(t, "\nAssistant> Hello\n", out.String())
}

func TestPrinter_FinalDiffersFromStream(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, false)

	p.render(conversation.Snapshot{Messages: []newschat.Message{
		{Role: newschat.RoleAssistant, Content: "Draft", Timestamp: "t1", IsPartial: true},
	}})
	p.render(conversation.Snapshot{Messages: []newschat.Message{
		{Role: newschat.RoleAssistant, Content: "Final", Timestamp: "t1"},
	}})
	assert.Equal(t, "Draft\nFinal\n", out.String())
}

func TestPrinter_Cleared(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, true)

	p.render(conversation.Snapshot{Messages: []newschat.Message{
		{Role: newschat.RoleAssistant, Content: "Hel", Timestamp: "t1", IsPartial: true},
	}})
	p.render(conversation.Snapshot{Epoch: 1})
	p.render(conversation.Snapshot{Epoch: 1, Messages: []newschat.Message{
		{Role: newschat.RoleAssistant, Content: "Fresh", Timestamp: "t2"},
	}})

	assert.Equal(t, "\nAssistant> Hel\nConversation cleared.\n\nAssistant> Fresh\n", out.String())
}

func TestPrinter_Skip(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, false)
	existing := conversation.Snapshot{Messages: []newschat.Message{
		{Role: newschat.RoleAssistant, Content: "Old", Timestamp: "t0"},
	}}
	p.skip(existing)
	p.render(existing)
	assert.Empty(t, out.String())
}

func TestAsk(t *testing.T) {
	chat := newStreamingChat()
	var out bytes.Buffer

	require.NoError(t, Ask(t.Context(), chat, "Hi", &out))
	assert.Equal(t, "Echo: Hi\n", out.String())
}

func TestAsk_Notice(t *testing.T) {
	chat := newStreamingChat()
	chat.failAll = "rate limited"
	var out bytes.Buffer

	err := Ask(t.Context(), chat, "Hi", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestRun(t *testing.T) {
	chat := newStreamingChat()
	in, inW := io.Pipe()
	out, errw := &syncBuffer{}, &syncBuffer{}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, chat, Options{In: in, Out: out, Err: errw}) }()

	write := func(line string) {
		_, err := io.WriteString(inW, line+"\n")
		require.NoError(t, err)
	}

	write("What's new?")
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Echo: What's new?\n") }, 2*time.Second, 5*time.Millisecond)
	assert.NotContains(t, out.String(), "You> What's new?")

	write("/theme")
	write("/info")
	write("/clear")
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Conversation cleared.") }, 2*time.Second, 5*time.Millisecond)

	write("/bogus")
	write("/exit")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	status := errw.String()
	assert.Contains(t, status, "News Chat [550e8400]")
	assert.Contains(t, status, "Theme: dark")
	assert.Contains(t, status, "Connection: connected")
	assert.Contains(t, status, "Unknown command: /bogus")
	assert.Contains(t, status, "Goodbye!")
	assert.Equal(t, 1, chat.cleared)
}
