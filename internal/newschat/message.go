package newschat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// timestampLayout is the layout used for client-minted timestamps
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is the producer-assigned correlation key of a message.
// It is opaque: the server may send it as a JSON string or number, and it is
// compared by its literal text only.
type Timestamp string

// NewTimestamp mints a timestamp for a message created on this side
func NewTimestamp(now time.Time) Timestamp {
	return Timestamp(now.UTC().Format(timestampLayout))
}

// UnmarshalJSON accepts both string and numeric timestamps
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding timestamp: %w", err)
		}
		*t = Timestamp(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("timestamp must be a string or number: %w", err)
	}
	*t = Timestamp(n.String())
	return nil
}

// Time interprets the timestamp as a point in time, if it looks like one.
// RFC 3339 strings and Unix epoch milliseconds are understood.
func (t Timestamp) Time() (time.Time, bool) {
	s := string(t)
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}

// Message represents a single message in a conversation
type Message struct {
	Role      Role      `json:"role"`                // "user" or "assistant"
	Content   string    `json:"content"`             // Accumulated text
	Timestamp Timestamp `json:"timestamp"`           // Correlation key between chunks and the final message
	IsPartial bool      `json:"isPartial,omitempty"` // True while an assistant reply is still streaming
}

// SameAs reports whether two finalized messages carry the same role, key and content
func (m Message) SameAs(other Message) bool {
	return m.Role == other.Role &&
		m.Timestamp == other.Timestamp &&
		m.Content == other.Content &&
		m.IsPartial == other.IsPartial
}
