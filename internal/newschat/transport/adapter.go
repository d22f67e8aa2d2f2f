// Package transport keeps the persistent event channel to the upstream
// service open. It decodes inbound frames into newschat.Event values,
// encodes outbound commands, and reconnects with backoff when the
// connection drops.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/longkey1/newschat/internal/newschat"
)

// ErrNotConnected is returned by commands issued while the channel is down.
// Commands are never queued for later delivery.
var ErrNotConnected = errors.New("not connected")

// ConnState is the state of the event channel
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 1 << 20
)

// Options configures an Adapter
type Options struct {
	URL          string // ws:// or wss:// endpoint
	SessionID    string // sent in "join" after every (re)connect
	MinDelay     time.Duration
	MaxDelay     time.Duration
	PerMinute    int // reconnect attempts allowed per minute
	PingInterval time.Duration
	Header       http.Header
	Dialer       *websocket.Dialer
	Logger       *slog.Logger
}

// Adapter owns the websocket connection to the upstream
type Adapter struct {
	opts    Options
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	logger  *slog.Logger

	events chan newschat.Event
	states chan ConnState

	mu    sync.Mutex // guards conn and state
	conn  *websocket.Conn
	state ConnState

	writeMu sync.Mutex // one writer at a time on the connection
}

// New creates an adapter. Nothing is dialled until Run is called.
func New(opts Options) *Adapter {
	if opts.MinDelay <= 0 {
		opts.MinDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.PerMinute <= 0 {
		opts.PerMinute = 20
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}

	burst := min(opts.PerMinute, 3)
	return &Adapter{
		opts:    opts,
		dialer:  dialer,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.PerMinute)), burst),
		logger:  opts.Logger.With("component", "transport"),
		events:  make(chan newschat.Event, 256),
		states:  make(chan ConnState, 16),
	}
}

// Events delivers decoded inbound events in receipt order.
// The channel is closed when Run returns.
func (a *Adapter) Events() <-chan newschat.Event { return a.events }

// States delivers connection state transitions. Transitions are dropped if
// the reader falls behind; State always has the current value.
// The channel is closed when Run returns.
func (a *Adapter) States() <-chan ConnState { return a.states }

// State returns the current connection state
func (a *Adapter) State() ConnState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Run connects and keeps the connection alive until ctx is cancelled
func (a *Adapter) Run(ctx context.Context) error {
	defer close(a.events)
	defer close(a.states)
	defer a.setState(StateDisconnected)

	attempt := 0
	for {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil
		}

		a.setState(StateConnecting)
		conn, err := a.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay := backoff(attempt, a.opts.MinDelay, a.opts.MaxDelay)
			attempt++
			a.logger.Warn("connection failed", "error", err, "attempt", attempt, "retry_in", delay)
			a.setState(StateDisconnected)
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		attempt = 0
		err = a.serve(ctx, conn)
		a.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil
		}

		delay := backoff(0, a.opts.MinDelay, a.opts.MaxDelay)
		a.logger.Warn("connection lost", "error", err, "retry_in", delay)
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := a.dialer.DialContext(ctx, a.opts.URL, a.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", a.opts.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", a.opts.URL, err)
	}
	return conn, nil
}

// serve joins the session, then reads frames until the connection fails
// or ctx is cancelled.
func (a *Adapter) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	conn.SetReadLimit(maxFrameSize)
	readTimeout := 2 * a.opts.PingInterval
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// Join before anyone else may write on this connection
	if err := a.write(conn, newschat.CommandJoin, a.opts.SessionID); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	a.setState(StateConnected)
	a.logger.Info("connected", "url", a.opts.URL)

	defer func() {
		a.mu.Lock()
		a.conn = nil
		a.mu.Unlock()
	}()

	done := make(chan struct{})
	defer close(done)
	go a.keepalive(ctx, conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		ev, err := Decode(raw)
		if err != nil {
			a.logger.Warn("dropping frame", "error", err)
			continue
		}

		select {
		case a.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// keepalive pings the peer and closes the connection when ctx ends
func (a *Adapter) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(a.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			a.writeMu.Lock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			a.writeMu.Unlock()
			conn.Close()
			return
		case <-ticker.C:
			a.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			a.writeMu.Unlock()
			if err != nil {
				a.logger.Debug("ping failed", "error", err)
				conn.Close()
				return
			}
		}
	}
}

// SendChatMessage submits a user message for sessionID
func (a *Adapter) SendChatMessage(ctx context.Context, sessionID, text string) error {
	return a.send(ctx, newschat.CommandChatMessage, newschat.ChatCommand{
		Message:   text,
		SessionID: sessionID,
	})
}

// ClearSession asks the upstream to discard the history of sessionID
func (a *Adapter) ClearSession(ctx context.Context, sessionID string) error {
	return a.send(ctx, newschat.CommandClearSession, sessionID)
}

func (a *Adapter) send(ctx context.Context, event string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if err := a.write(conn, event, data); err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}
	return nil
}

func (a *Adapter) write(conn *websocket.Conn, event string, data any) error {
	frame, err := Encode(event, data)
	if err != nil {
		return err
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (a *Adapter) setState(s ConnState) {
	a.mu.Lock()
	if a.state == s {
		a.mu.Unlock()
		return
	}
	a.state = s
	a.mu.Unlock()

	select {
	case a.states <- s:
	default:
	}
}

// backoff returns an exponential delay with jitter in [d/2, d]
func backoff(attempt int, minDelay, maxDelay time.Duration) time.Duration {
	d := maxDelay
	if attempt < 32 {
		if shifted := minDelay << attempt; shifted > 0 && shifted < maxDelay {
			d = shifted
		}
	}
	half := d / 2
	return half + rand.N(half+1)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
