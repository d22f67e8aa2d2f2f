package conversation

import (
	"strings"

	"github.com/longkey1/newschat/internal/newschat"
)

// retiredEpochs is how many clear epochs a retired timestamp is remembered for
const retiredEpochs = 2

// Result describes what an operation did to the log
type Result int

const (
	// Applied means the operation changed the log or its flags
	Applied Result = iota
	// Ignored means the operation was a no-op by rule (blank input, busy, nothing to do)
	Ignored
	// Discarded means the event belonged to an older epoch
	Discarded
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Ignored:
		return "ignored"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable point-in-time view of the log
type Snapshot struct {
	Messages     []newschat.Message
	Loading      bool
	Typing       bool
	Epoch        uint64
	ClearPending bool
}

// HistoryToken identifies one history load.
// It is handed out before the fetch starts and checked when the result arrives.
type HistoryToken struct {
	version uint64
	epoch   uint64
	mark    uint64
}

type entry struct {
	msg newschat.Message
	seq uint64 // arrival sequence, used to tell live entries from replayed history
}

// Log is the ordered message log and its derived flags.
// It is not safe for concurrent use; Reconciler serializes access to it.
type Log struct {
	entries  []entry
	partials map[newschat.Timestamp]int // timestamp -> index of the partial assistant message
	seq      uint64

	loading bool
	typing  bool

	epoch        uint64
	clearPending bool
	retired      map[newschat.Timestamp]uint64 // timestamp -> epoch in which it was retired

	historyVersion uint64
}

// NewLog returns an empty log
func NewLog() *Log {
	return &Log{
		partials: make(map[newschat.Timestamp]int),
		retired:  make(map[newschat.Timestamp]uint64),
	}
}

// Loading reports whether a user request or clear is outstanding
func (l *Log) Loading() bool {
	return l.loading
}

// Typing reports the upstream composing signal
func (l *Log) Typing() bool {
	return l.typing
}

// Epoch returns the current clear epoch
func (l *Log) Epoch() uint64 {
	return l.epoch
}

// ClearPending reports whether a clear awaits its acknowledgment
func (l *Log) ClearPending() bool {
	return l.clearPending
}

// Len returns the number of messages in the log
func (l *Log) Len() int {
	return len(l.entries)
}

// AppendUser appends a finalized user message.
// Blank text, an outstanding request or a pending clear make it a no-op.
func (l *Log) AppendUser(text string, ts newschat.Timestamp) Result {
	if strings.TrimSpace(text) == "" || l.loading || l.clearPending {
		return Ignored
	}

	l.push(newschat.Message{
		Role:      newschat.RoleUser,
		Content:   text,
		Timestamp: ts,
	})
	l.loading = true
	return Applied
}

// Chunk appends streamed text to the partial reply with the chunk's timestamp,
// starting a new partial reply if there is none.
func (l *Log) Chunk(c newschat.Chunk) Result {
	if l.stale(c.Timestamp) {
		return Discarded
	}

	if i, ok := l.partials[c.Timestamp]; ok {
		l.entries[i].msg.Content += c.Text
		return Applied
	}

	l.push(newschat.Message{
		Role:      newschat.RoleAssistant,
		Content:   c.Text,
		Timestamp: c.Timestamp,
		IsPartial: true,
	})
	return Applied
}

// Complete replaces the partial reply sharing msg's timestamp with msg and ends the request.
func (l *Log) Complete(msg newschat.Message) Result {
	if l.stale(msg.Timestamp) {
		return Discarded
	}

	if i, ok := l.partials[msg.Timestamp]; ok {
		l.remove(i)
	}

	msg.IsPartial = false
	l.push(msg)
	l.loading = false
	return Applied
}

// FullMessage appends an out-of-band message verbatim
func (l *Log) FullMessage(msg newschat.Message) Result {
	if l.clearPending {
		return Discarded
	}

	msg.IsPartial = false
	l.push(msg)
	return Applied
}

// SetTyping records the upstream composing signal
func (l *Log) SetTyping(flag bool) Result {
	if flag && l.clearPending {
		return Discarded
	}
	if l.typing == flag {
		return Ignored
	}
	l.typing = flag
	return Applied
}

// BeginClear wipes the log locally and opens a new epoch.
// The log stays busy until SessionCleared acknowledges the clear.
func (l *Log) BeginClear() Result {
	l.retireAll()
	l.clearPending = true
	l.loading = true
	l.typing = false
	return Applied
}

// AbortClear ends a pending clear that could not be sent upstream
func (l *Log) AbortClear() Result {
	if !l.clearPending {
		return Ignored
	}
	l.clearPending = false
	l.loading = false
	return Applied
}

// SessionCleared empties the log and resets both flags
func (l *Log) SessionCleared() Result {
	if !l.clearPending {
		// Cleared from elsewhere: retire what we have so late traffic is dropped too
		l.retireAll()
	}
	l.entries = nil
	l.partials = make(map[newschat.Timestamp]int)
	l.clearPending = false
	l.loading = false
	l.typing = false
	return Applied
}

// Failed ends the outstanding request without touching the messages.
// A pending clear is left in place: only its ack, AbortClear or the
// response timeout end it.
func (l *Log) Failed() Result {
	if l.clearPending {
		if !l.typing {
			return Ignored
		}
		l.typing = false
		return Applied
	}
	if !l.loading && !l.typing {
		return Ignored
	}
	l.loading = false
	l.typing = false
	return Applied
}

// TimedOut ends an outstanding request or pending clear that never got a
// terminal event
func (l *Log) TimedOut() Result {
	if !l.loading {
		return Ignored
	}
	l.clearPending = false
	l.loading = false
	l.typing = false
	return Applied
}

// BeginHistory marks the start of a history load
func (l *Log) BeginHistory() HistoryToken {
	l.historyVersion++
	return HistoryToken{
		version: l.historyVersion,
		epoch:   l.epoch,
		mark:    l.seq,
	}
}

// ApplyHistory replaces the log with history, keeping entries that arrived live
// after the load started. Loads superseded by a newer load or by a clear are discarded.
func (l *Log) ApplyHistory(tok HistoryToken, history []newschat.Message) Result {
	if tok.version != l.historyVersion || tok.epoch != l.epoch || l.clearPending {
		return Discarded
	}

	merged := make([]entry, 0, len(history)+len(l.entries))
	for _, msg := range history {
		msg.IsPartial = false
		merged = append(merged, entry{msg: msg, seq: tok.mark})
	}

	for _, e := range l.entries {
		if e.seq <= tok.mark {
			continue
		}
		if !e.msg.IsPartial && containsSame(history, e.msg) {
			continue
		}
		merged = append(merged, e)
	}

	l.entries = merged
	l.reindex()
	return Applied
}

// Snapshot returns a copy of the current state
func (l *Log) Snapshot() Snapshot {
	msgs := make([]newschat.Message, len(l.entries))
	for i, e := range l.entries {
		msgs[i] = e.msg
	}
	return Snapshot{
		Messages:     msgs,
		Loading:      l.loading,
		Typing:       l.typing,
		Epoch:        l.epoch,
		ClearPending: l.clearPending,
	}
}

// stale reports whether message traffic for ts belongs to an earlier epoch.
// Replies first seen while a clear is pending started before the clear, so
// their timestamps are retired too.
func (l *Log) stale(ts newschat.Timestamp) bool {
	if l.clearPending {
		l.retired[ts] = l.epoch
		return true
	}
	_, retired := l.retired[ts]
	return retired
}

func (l *Log) push(msg newschat.Message) {
	l.seq++
	l.entries = append(l.entries, entry{msg: msg, seq: l.seq})
	if msg.IsPartial && msg.Role == newschat.RoleAssistant {
		l.partials[msg.Timestamp] = len(l.entries) - 1
	}
}

func (l *Log) remove(i int) {
	ts := l.entries[i].msg.Timestamp
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	delete(l.partials, ts)
	for k, j := range l.partials {
		if j > i {
			l.partials[k] = j - 1
		}
	}
}

func (l *Log) reindex() {
	l.partials = make(map[newschat.Timestamp]int)
	for i, e := range l.entries {
		if e.msg.IsPartial && e.msg.Role == newschat.RoleAssistant {
			l.partials[e.msg.Timestamp] = i
		}
	}
}

// retireAll opens a new epoch and forgets every message currently in the log
func (l *Log) retireAll() {
	l.epoch++
	for ts, epoch := range l.retired {
		if l.epoch-epoch > retiredEpochs {
			delete(l.retired, ts)
		}
	}
	for _, e := range l.entries {
		if e.msg.Role == newschat.RoleUser {
			continue
		}
		l.retired[e.msg.Timestamp] = l.epoch
	}
	l.entries = nil
	l.partials = make(map[newschat.Timestamp]int)
}

func containsSame(msgs []newschat.Message, msg newschat.Message) bool {
	for _, m := range msgs {
		m.IsPartial = false
		if m.SameAs(msg) {
			return true
		}
	}
	return false
}
