// Package client ties the session, transport, reconciler and history loader
// together for one chat session. Presentation code talks to a *Client only.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/longkey1/newschat/internal/newschat/config"
	"github.com/longkey1/newschat/internal/newschat/conversation"
	"github.com/longkey1/newschat/internal/newschat/dictation"
	"github.com/longkey1/newschat/internal/newschat/history"
	"github.com/longkey1/newschat/internal/newschat/session"
	"github.com/longkey1/newschat/internal/newschat/transport"
	"github.com/longkey1/newschat/internal/version"
)

// Options configures a Client
type Options struct {
	Config    *config.Config
	Session   *session.Manager
	Dictation dictation.Source // optional
	Logger    *slog.Logger
}

// Client is the explicit context object behind the UI
type Client struct {
	cfg       *config.Config
	session   *session.Manager
	sessionID string
	transport *transport.Adapter
	rec       *conversation.Reconciler
	history   *history.Loader
	dictation dictation.Source
	logger    *slog.Logger

	state         atomic.Int32
	states        chan transport.ConnState
	connected     chan struct{}
	connectedOnce sync.Once
	historyDone   chan struct{}
}

// New builds a client for the configured upstream. Nothing runs until Run.
func New(opts Options) (*Client, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Session == nil {
		return nil, errors.New("session manager is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sessionID, err := opts.Session.SessionID()
	if err != nil {
		return nil, fmt.Errorf("getting session id: %w", err)
	}

	wsURL, err := opts.Config.WebSocketURL()
	if err != nil {
		return nil, err
	}
	baseURL, err := opts.Config.BaseURL()
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:         opts.Config,
		session:     opts.Session,
		sessionID:   sessionID,
		dictation:   opts.Dictation,
		logger:      logger.With("session", session.ShortID(sessionID)),
		states:      make(chan transport.ConnState, 1),
		connected:   make(chan struct{}),
		historyDone: make(chan struct{}),
	}

	c.transport = transport.New(transport.Options{
		URL:          wsURL,
		SessionID:    sessionID,
		MinDelay:     opts.Config.ReconnectMinDelay,
		MaxDelay:     opts.Config.ReconnectMaxDelay,
		PerMinute:    opts.Config.ReconnectPerMinute,
		PingInterval: opts.Config.PingInterval,
		Header:       http.Header{"User-Agent": {UserAgent()}},
		Logger:       c.logger,
	})
	c.session.BindClearer(c.transport)

	c.history = history.NewLoader(baseURL.String(), opts.Config.HistoryTimeout, c.logger)
	c.history.UserAgent = UserAgent()
	c.rec = conversation.NewReconciler(outbound{c}, conversation.Options{
		ResponseTimeout: opts.Config.ResponseTimeout,
		Logger:          c.logger,
	})

	return c, nil
}

// UserAgent identifies this client to the server
func UserAgent() string {
	return "newschat/" + version.Short()
}

// Run drives the connection, the reconciler and the one-time history load
// until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.rec.Run(gctx) })
	g.Go(func() error { return c.transport.Run(gctx) })
	g.Go(func() error { return c.pumpEvents(gctx) })
	g.Go(func() error { return c.watchStates(gctx) })
	g.Go(func() error {
		c.loadHistory(gctx)
		return nil
	})

	return g.Wait()
}

// pumpEvents feeds transport events to the reconciler in receipt order
func (c *Client) pumpEvents(ctx context.Context) error {
	for ev := range c.transport.Events() {
		if err := c.rec.Apply(ctx, ev); err != nil {
			if errors.Is(err, conversation.ErrStopped) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("applying %s: %w", ev.Kind, err)
		}
	}
	return nil
}

func (c *Client) watchStates(ctx context.Context) error {
	for s := range c.transport.States() {
		c.state.Store(int32(s))
		if s == transport.StateConnected {
			c.connectedOnce.Do(func() { close(c.connected) })
		}

		// Latest wins
		select {
		case <-c.states:
		default:
		}
		c.states <- s
	}
	return nil
}

// loadHistory fetches the server transcript once. Failures leave the log
// as it is.
func (c *Client) loadHistory(ctx context.Context) {
	defer close(c.historyDone)

	tok, err := c.rec.BeginHistory(ctx)
	if err != nil {
		return
	}

	msgs, err := c.history.Fetch(ctx, c.sessionID)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("failed to load history", "error", err)
		}
		return
	}

	if err := c.rec.ApplyHistory(ctx, tok, msgs); err != nil && ctx.Err() == nil {
		c.logger.Warn("failed to apply history", "error", err)
	}
}

// SessionID returns the id of the current session
func (c *Client) SessionID() string { return c.sessionID }

// Degraded reports whether the session id is kept for this process only
func (c *Client) Degraded() bool { return c.session.Degraded() }

// Send appends a user message and submits it. It reports false when the
// message was not accepted (blank text or a request already outstanding).
func (c *Client) Send(ctx context.Context, text string) (bool, error) {
	return c.rec.AppendUserMessage(ctx, text)
}

// Clear wipes the conversation and asks the upstream to do the same
func (c *Client) Clear(ctx context.Context) error {
	return c.rec.ClearSession(ctx)
}

// Snapshot returns the current conversation state
func (c *Client) Snapshot() conversation.Snapshot { return c.rec.Snapshot() }

// Subscribe registers for conversation updates, see conversation.Reconciler.Subscribe
func (c *Client) Subscribe(ctx context.Context) (<-chan conversation.Snapshot, func()) {
	return c.rec.Subscribe(ctx)
}

// Notices returns user-facing notices (delivery errors, timeouts)
func (c *Client) Notices() <-chan conversation.Notice { return c.rec.Notices() }

// ConnState returns the current connection state
func (c *Client) ConnState() transport.ConnState {
	return transport.ConnState(c.state.Load())
}

// ConnStates delivers the latest connection state whenever it changes
func (c *Client) ConnStates() <-chan transport.ConnState { return c.states }

// WaitConnected blocks until the first connection is established
func (c *Client) WaitConnected(ctx context.Context) error {
	select {
	case <-c.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HistoryLoaded is closed once the history load has finished, successfully or not
func (c *Client) HistoryLoaded() <-chan struct{} { return c.historyDone }

// Theme returns the saved theme
func (c *Client) Theme() session.Theme { return c.session.Theme() }

// ToggleTheme switches and saves the theme
func (c *Client) ToggleTheme() (session.Theme, error) { return c.session.ToggleTheme() }

// Suggestions returns the questions offered on an empty conversation
func (c *Client) Suggestions() []string { return c.cfg.Suggestions }

// CanDictate reports whether a dictation source is available
func (c *Client) CanDictate() bool {
	if c.dictation == nil {
		return false
	}
	if cs, ok := c.dictation.(*dictation.CommandSource); ok {
		return cs.Configured()
	}
	return true
}

// Dictate records speech and returns it as text. The text is not sent.
func (c *Client) Dictate(ctx context.Context) (string, error) {
	if c.dictation == nil {
		return "", dictation.ErrNotConfigured
	}
	return c.dictation.Dictate(ctx)
}

// outbound binds reconciler commands to this session
type outbound struct{ c *Client }

func (o outbound) SendMessage(ctx context.Context, text string) error {
	return o.c.transport.SendChatMessage(ctx, o.c.sessionID, text)
}

func (o outbound) ClearSession(ctx context.Context) error {
	return o.c.session.Clear(ctx, o.c.sessionID)
}
