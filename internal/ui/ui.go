// Package ui is the full-screen terminal interface of the chat client.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/longkey1/newschat/internal/newschat/conversation"
	"github.com/longkey1/newschat/internal/newschat/session"
	"github.com/longkey1/newschat/internal/newschat/transport"
)

// Chat is the client surface the interface drives
type Chat interface {
	SessionID() string
	Send(ctx context.Context, text string) (bool, error)
	Clear(ctx context.Context) error
	Snapshot() conversation.Snapshot
	Subscribe(ctx context.Context) (<-chan conversation.Snapshot, func())
	Notices() <-chan conversation.Notice
	ConnState() transport.ConnState
	ConnStates() <-chan transport.ConnState
	Theme() session.Theme
	ToggleTheme() (session.Theme, error)
	Suggestions() []string
	CanDictate() bool
	Dictate(ctx context.Context) (string, error)
}

const (
	defaultPrompt   = "Ask about the news..."
	promptSymbol    = "› "
	noticeLifetime  = 6 * time.Second
	refreshInterval = 30 * time.Second
	chromeHeight    = 5 // header, typing line, notice, input, help
)

type (
	snapshotMsg   conversation.Snapshot
	stateMsg      transport.ConnState
	noticeMsg     conversation.Notice
	closedMsg     struct{}
	refreshMsg    struct{}
	expireMsg     struct{ at time.Time }
	sendResultMsg struct {
		text     string
		accepted bool
		err      error
	}
	clearResultMsg struct{ err error }
	dictatedMsg    struct {
		text string
		err  error
	}
)

type model struct {
	ctx  context.Context
	chat Chat

	snaps   <-chan conversation.Snapshot
	release func()

	snap  conversation.Snapshot
	state transport.ConnState
	theme session.Theme

	styles   themeStyles
	render   *renderer
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	notice    string
	noticeAt  time.Time
	dictating bool

	width  int
	height int
	ready  bool
	now    func() time.Time
}

// Run shows the interface until the user quits or ctx is cancelled
func Run(ctx context.Context, chat Chat) error {
	m := newModel(ctx, chat, time.Now)
	defer m.release()

	program := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("running interface: %w", err)
	}
	return nil
}

func newModel(ctx context.Context, chat Chat, now func() time.Time) *model {
	theme := chat.Theme()
	styles := buildThemeStyles(theme)

	input := textinput.New()
	input.Placeholder = defaultPrompt
	input.Prompt = promptSymbol
	input.CharLimit = 2000
	input.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	snaps, release := chat.Subscribe(ctx)
	m := &model{
		ctx:     ctx,
		chat:    chat,
		snaps:   snaps,
		release: release,
		snap:    chat.Snapshot(),
		state:   chat.ConnState(),
		theme:   theme,
		input:   input,
		spinner: sp,
		width:   80,
		height:  24,
		now:     now,
	}
	m.applyTheme(theme)
	m.viewport = viewport.New(m.width, m.height-chromeHeight)
	return m
}

func (m *model) applyTheme(t session.Theme) {
	m.theme = t
	m.styles = buildThemeStyles(t)
	m.input.PromptStyle = m.styles.prompt
	m.input.PlaceholderStyle = m.styles.muted
	m.spinner.Style = m.styles.typing
	m.render = newRenderer(m.styles, m.width, m.now)
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitSnapshot(m.snaps),
		waitState(m.chat.ConnStates()),
		waitNotice(m.chat.Notices()),
		refreshLater(),
	)
}

func waitSnapshot(ch <-chan conversation.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(s)
	}
}

func waitState(ch <-chan transport.ConnState) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(s)
	}
}

func waitNotice(ch <-chan conversation.Notice) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg(n)
	}
}

func refreshLater() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 1)
		m.input.Width = max(msg.Width-lipgloss.Width(promptSymbol)-2, 10)
		m.render = newRenderer(m.styles, m.width, m.now)
		m.ready = true
		m.refreshContent()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		m.snap = conversation.Snapshot(msg)
		m.refreshContent()
		return m, waitSnapshot(m.snaps)

	case closedMsg:
		return m, tea.Quit

	case stateMsg:
		m.state = transport.ConnState(msg)
		return m, waitState(m.chat.ConnStates())

	case noticeMsg:
		return m, tea.Batch(m.setNotice(msg.Text), waitNotice(m.chat.Notices()))

	case expireMsg:
		if msg.at.Equal(m.noticeAt) {
			m.notice = ""
		}
		return m, nil

	case refreshMsg:
		m.refreshContent()
		return m, refreshLater()

	case sendResultMsg:
		if msg.err != nil {
			return m, m.setNotice(msg.err.Error())
		}
		if !msg.accepted {
			m.input.SetValue(msg.text)
			return m, m.setNotice("Still waiting for the previous reply")
		}
		return m, nil

	case clearResultMsg:
		if msg.err != nil {
			return m, m.setNotice(msg.err.Error())
		}
		return m, nil

	case dictatedMsg:
		m.dictating = false
		if msg.err != nil {
			return m, m.setNotice(msg.err.Error())
		}
		m.input.SetValue(msg.text)
		m.input.CursorEnd()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "enter":
		return m, m.send(m.input.Value())

	case "ctrl+l":
		return m, m.clear()

	case "ctrl+t":
		theme, err := m.chat.ToggleTheme()
		m.applyTheme(theme)
		m.refreshContent()
		if err != nil {
			return m, m.setNotice(err.Error())
		}
		return m, nil

	case "ctrl+d":
		return m, m.dictate()

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "1", "2", "3":
		if m.showWelcome() && m.input.Value() == "" {
			idx := int(msg.String()[0] - '1')
			if suggestions := m.chat.Suggestions(); idx < len(suggestions) {
				return m, m.send(suggestions[idx])
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) busy() bool {
	return m.snap.Loading || m.snap.ClearPending
}

func (m *model) send(text string) tea.Cmd {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if m.busy() {
		return m.setNotice("Still waiting for the previous reply")
	}

	m.input.Reset()
	chat, ctx := m.chat, m.ctx
	return func() tea.Msg {
		ok, err := chat.Send(ctx, text)
		return sendResultMsg{text: text, accepted: ok, err: err}
	}
}

func (m *model) clear() tea.Cmd {
	if m.snap.ClearPending {
		return nil
	}
	chat, ctx := m.chat, m.ctx
	return func() tea.Msg {
		return clearResultMsg{err: chat.Clear(ctx)}
	}
}

func (m *model) dictate() tea.Cmd {
	if m.dictating {
		return nil
	}
	if !m.chat.CanDictate() {
		return m.setNotice("Dictation is not configured (set dictation_command)")
	}
	m.dictating = true
	chat, ctx := m.chat, m.ctx
	return func() tea.Msg {
		text, err := chat.Dictate(ctx)
		return dictatedMsg{text: text, err: err}
	}
}

func (m *model) setNotice(text string) tea.Cmd {
	at := m.now()
	m.notice = text
	m.noticeAt = at
	return tea.Tick(noticeLifetime, func(time.Time) tea.Msg { return expireMsg{at: at} })
}

func (m *model) showWelcome() bool {
	return len(m.snap.Messages) == 0 && !m.busy()
}

// refreshContent re-renders the log and scrolls to the bottom
func (m *model) refreshContent() {
	if m.showWelcome() {
		m.viewport.SetContent(m.render.welcome(m.chat.Suggestions()))
		m.viewport.GotoTop()
		return
	}
	m.viewport.SetContent(m.render.messages(m.snap))
	m.viewport.GotoBottom()
}

func (m *model) View() string {
	if !m.ready {
		return "Loading..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		m.statusView(),
		m.styles.notice.Render(m.notice),
		m.input.View(),
		m.styles.help.Render("enter send • 1-3 suggestion • ctrl+l clear • ctrl+t theme • ctrl+d dictate • esc quit"),
	)
}

func (m *model) headerView() string {
	var state string
	switch m.state {
	case transport.StateConnected:
		state = m.styles.connected.Render("● connected")
	case transport.StateConnecting:
		state = m.styles.connecting.Render("● connecting")
	default:
		state = m.styles.offline.Render("● offline")
	}

	left := m.styles.title.Render("News Chat")
	right := fmt.Sprintf("%s  %s  %s",
		state,
		m.styles.muted.Render(string(m.theme)),
		m.styles.muted.Render(session.ShortID(m.chat.SessionID())),
	)

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return m.styles.header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m *model) statusView() string {
	switch {
	case m.snap.ClearPending:
		return m.spinner.View() + m.styles.typing.Render(" Clearing conversation...")
	case m.dictating:
		return m.spinner.View() + m.styles.typing.Render(" Listening...")
	case m.snap.Typing:
		return m.spinner.View() + m.styles.typing.Render(" Assistant is typing...")
	case m.snap.Loading:
		return m.spinner.View() + m.styles.typing.Render(" Waiting for a reply...")
	default:
		return ""
	}
}
