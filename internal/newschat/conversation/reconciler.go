package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/longkey1/newschat/internal/newschat"
)

const (
	// opQueueSize is the buffer of the single-writer queue
	opQueueSize = 256
	// noticeBufferSize is the buffer of the notice channel
	noticeBufferSize = 16
	// DefaultResponseTimeout bounds how long a request may stay outstanding
	DefaultResponseTimeout = 60 * time.Second
)

// ErrStopped is returned when an operation is issued after Run has returned
var ErrStopped = errors.New("reconciler stopped")

// Outbound is the port through which the reconciler hands commands upstream
type Outbound interface {
	SendMessage(ctx context.Context, text string) error
	ClearSession(ctx context.Context) error
}

// NoticeKind classifies a user-facing notice
type NoticeKind string

const (
	NoticeError      NoticeKind = "error"       // upstream reported a delivery error
	NoticeNoResponse NoticeKind = "no_response" // the response timeout expired
	NoticeSendFailed NoticeKind = "send_failed" // a command could not be sent
)

// Notice is a transient message for the user, surfaced outside the log
type Notice struct {
	Kind NoticeKind
	Text string
	At   time.Time
}

// Options configures a Reconciler
type Options struct {
	ResponseTimeout time.Duration
	Logger          *slog.Logger
	Now             func() time.Time
}

// Reconciler owns a Log and applies every operation on it from one goroutine.
// Readers get immutable snapshots; they never see a half-applied operation.
type Reconciler struct {
	log *Log // only touched from Run
	ops chan func()
	out Outbound

	snap    atomic.Pointer[Snapshot]
	notices chan Notice

	mu          sync.RWMutex
	subscribers map[string]chan Snapshot
	stopped     bool

	timeout  time.Duration
	timer    *time.Timer
	timerGen uint64

	now    func() time.Time
	logger *slog.Logger
	done   chan struct{}
}

// NewReconciler creates a reconciler that sends commands through out.
// Run must be started before any operation is issued.
func NewReconciler(out Outbound, opts Options) *Reconciler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = DefaultResponseTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Reconciler{
		log:         NewLog(),
		ops:         make(chan func(), opQueueSize),
		out:         out,
		notices:     make(chan Notice, noticeBufferSize),
		subscribers: make(map[string]chan Snapshot),
		timeout:     opts.ResponseTimeout,
		now:         opts.Now,
		logger:      opts.Logger.With("component", "reconciler"),
		done:        make(chan struct{}),
	}
	initial := r.log.Snapshot()
	r.snap.Store(&initial)
	return r
}

// Run applies queued operations until ctx is cancelled
func (r *Reconciler) Run(ctx context.Context) error {
	defer r.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-r.ops:
			op()
		}
	}
}

func (r *Reconciler) shutdown() {
	r.stopTimeout()
	close(r.done)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for id, ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, id)
	}
}

// Snapshot returns the latest published state
func (r *Reconciler) Snapshot() Snapshot {
	return *r.snap.Load()
}

// Notices returns the channel of user-facing notices
func (r *Reconciler) Notices() <-chan Notice {
	return r.notices
}

// Subscribe registers for snapshot updates. The current snapshot is delivered
// immediately. A slow subscriber skips intermediate snapshots but always
// receives the latest one. The returned func releases the subscription; it is
// also released when ctx is cancelled.
func (r *Reconciler) Subscribe(ctx context.Context) (<-chan Snapshot, func()) {
	id := uuid.New().String()
	ch := make(chan Snapshot, 1)

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	r.subscribers[id] = ch
	ch <- r.Snapshot()
	r.mu.Unlock()

	r.logger.Debug("subscriber added", "sub_id", id)

	var once sync.Once
	release := func() {
		once.Do(func() { r.unsubscribe(id) })
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-r.done:
		}
		release()
	}()
	return ch, release
}

func (r *Reconciler) unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.subscribers[id]
	if !ok {
		return
	}
	delete(r.subscribers, id)
	close(ch)
	r.logger.Debug("subscriber removed", "sub_id", id)
}

// AppendUserMessage optimistically appends text as a user message and sends it
// upstream. It reports false without error when the message was rejected by
// rule (blank text, a request already outstanding).
func (r *Reconciler) AppendUserMessage(ctx context.Context, text string) (bool, error) {
	var accepted atomic.Bool
	err := r.call(ctx, func() {
		if r.log.AppendUser(text, newschat.NewTimestamp(r.now())) != Applied {
			return
		}
		accepted.Store(true)
		r.armTimeout()
		r.publish()
	})
	if err != nil {
		// The op may still run after ctx ended; ops run in order, so this
		// rollback sees whether it did.
		r.enqueue(func() {
			if accepted.Load() {
				r.endRequest()
			}
		})
		return false, err
	}
	if !accepted.Load() {
		return false, nil
	}

	if err := r.out.SendMessage(ctx, text); err != nil {
		r.enqueue(r.endRequest)
		r.notify(NoticeSendFailed, fmt.Sprintf("message not sent: %v", err))
		return true, fmt.Errorf("sending message: %w", err)
	}
	return true, nil
}

// endRequest ends the outstanding request after a failure. A pending clear
// keeps its timeout. Only called from Run.
func (r *Reconciler) endRequest() {
	if r.log.Failed() != Applied {
		return
	}
	if !r.log.ClearPending() {
		r.stopTimeout()
	}
	r.publish()
}

// ClearSession wipes the log, opens a new epoch and asks upstream to discard
// the session history.
func (r *Reconciler) ClearSession(ctx context.Context) error {
	var begun atomic.Bool
	err := r.call(ctx, func() {
		r.log.BeginClear()
		begun.Store(true)
		r.armTimeout()
		r.publish()
	})
	if err != nil {
		r.enqueue(func() {
			if begun.Load() {
				r.abortClear()
			}
		})
		return err
	}

	if err := r.out.ClearSession(ctx); err != nil {
		r.enqueue(r.abortClear)
		r.notify(NoticeSendFailed, fmt.Sprintf("clear not sent: %v", err))
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

func (r *Reconciler) abortClear() {
	if r.log.AbortClear() == Applied {
		r.stopTimeout()
		r.publish()
	}
}

// Apply routes an inbound event to the matching operation
func (r *Reconciler) Apply(ctx context.Context, ev newschat.Event) error {
	switch ev.Kind {
	case newschat.EventChunk:
		return r.OnChunk(ctx, ev.Chunk)
	case newschat.EventComplete:
		return r.OnComplete(ctx, ev.Message)
	case newschat.EventFullMessage:
		return r.OnFullMessage(ctx, ev.Message)
	case newschat.EventTyping:
		return r.OnTyping(ctx, ev.Typing)
	case newschat.EventSessionCleared:
		return r.OnSessionCleared(ctx)
	case newschat.EventError:
		return r.OnError(ctx, ev.Error)
	default:
		r.logger.Warn("unknown event kind", "kind", ev.Kind)
		return nil
	}
}

// OnChunk merges a streamed fragment
func (r *Reconciler) OnChunk(ctx context.Context, c newschat.Chunk) error {
	return r.submit(ctx, func() {
		res := r.log.Chunk(c)
		r.trace(newschat.EventChunk, c.Timestamp, res)
		if res == Applied {
			if r.log.Loading() {
				r.armTimeout()
			}
			r.publish()
		}
	})
}

// OnComplete merges a finalized reply
func (r *Reconciler) OnComplete(ctx context.Context, msg newschat.Message) error {
	return r.submit(ctx, func() {
		res := r.log.Complete(msg)
		r.trace(newschat.EventComplete, msg.Timestamp, res)
		if res == Applied {
			r.stopTimeout()
			r.publish()
		}
	})
}

// OnFullMessage appends an out-of-band message
func (r *Reconciler) OnFullMessage(ctx context.Context, msg newschat.Message) error {
	return r.submit(ctx, func() {
		res := r.log.FullMessage(msg)
		r.trace(newschat.EventFullMessage, msg.Timestamp, res)
		if res == Applied {
			r.publish()
		}
	})
}

// OnTyping records the composing signal
func (r *Reconciler) OnTyping(ctx context.Context, flag bool) error {
	return r.submit(ctx, func() {
		if r.log.SetTyping(flag) == Applied {
			if r.log.Loading() {
				r.armTimeout()
			}
			r.publish()
		}
	})
}

// OnSessionCleared empties the log
func (r *Reconciler) OnSessionCleared(ctx context.Context) error {
	return r.submit(ctx, func() {
		r.log.SessionCleared()
		r.stopTimeout()
		r.logger.Info("session cleared", "epoch", r.log.Epoch())
		r.publish()
	})
}

// OnError ends the outstanding request and surfaces the error
func (r *Reconciler) OnError(ctx context.Context, info newschat.ErrorInfo) error {
	return r.submit(ctx, func() {
		r.logger.Warn("upstream error", "message", info.Message)
		r.endRequest()
		text := info.Message
		if text == "" {
			text = "the server could not deliver a reply"
		}
		r.notify(NoticeError, text)
	})
}

// BeginHistory marks the start of a history load
func (r *Reconciler) BeginHistory(ctx context.Context) (HistoryToken, error) {
	var tok HistoryToken
	err := r.call(ctx, func() {
		tok = r.log.BeginHistory()
	})
	return tok, err
}

// ApplyHistory merges a fetched history into the log
func (r *Reconciler) ApplyHistory(ctx context.Context, tok HistoryToken, msgs []newschat.Message) error {
	return r.submit(ctx, func() {
		res := r.log.ApplyHistory(tok, msgs)
		r.logger.Debug("history merged", "messages", len(msgs), "result", res)
		if res == Applied {
			r.publish()
		}
	})
}

// submit queues op without waiting for it to run
func (r *Reconciler) submit(ctx context.Context, op func()) error {
	select {
	case r.ops <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	}
}

// call queues op and waits until it has run
func (r *Reconciler) call(ctx context.Context, op func()) error {
	ran := make(chan struct{})
	if err := r.submit(ctx, func() {
		op()
		close(ran)
	}); err != nil {
		return err
	}

	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	}
}

// enqueue queues op from a context-less caller (timer, failed send)
func (r *Reconciler) enqueue(op func()) {
	select {
	case r.ops <- op:
	case <-r.done:
	}
}

// publish stores and fans out the current snapshot. Only called from Run.
func (r *Reconciler) publish() {
	s := r.log.Snapshot()
	r.snap.Store(&s)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- s:
		default:
			// Replace the stale snapshot the subscriber has not read yet
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func (r *Reconciler) notify(kind NoticeKind, text string) {
	n := Notice{Kind: kind, Text: text, At: r.now()}
	select {
	case r.notices <- n:
	default:
		r.logger.Debug("dropped notice", "kind", kind, "text", text)
	}
}

// armTimeout (re)starts the response timeout. Only called from Run.
func (r *Reconciler) armTimeout() {
	r.stopTimeout()
	gen := r.timerGen
	r.timer = time.AfterFunc(r.timeout, func() {
		r.enqueue(func() {
			if gen != r.timerGen {
				return
			}
			if r.log.TimedOut() == Applied {
				r.logger.Warn("no response before timeout", "timeout", r.timeout)
				r.publish()
				r.notify(NoticeNoResponse, "no response from the server, try again")
			}
		})
	})
}

// stopTimeout cancels a pending response timeout. Only called from Run.
func (r *Reconciler) stopTimeout() {
	r.timerGen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reconciler) trace(kind newschat.EventKind, ts newschat.Timestamp, res Result) {
	if res == Discarded {
		r.logger.Debug("dropped stale event",
			"event", kind,
			"timestamp", ts,
			"epoch", r.log.Epoch())
	}
}
