package transport

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/longkey1/newschat/internal/newschat"
)

// Frame is the envelope of every message on the event channel, both ways
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wireMessage is a message as sent by the server. Role is a plain string so
// that a missing role can be told apart from an unknown one.
type wireMessage struct {
	Role      string             `json:"role"`
	Content   string             `json:"content"`
	Timestamp newschat.Timestamp `json:"timestamp"`
	IsPartial bool               `json:"isPartial"`
}

// Encode builds a frame for an outbound command
func Encode(event string, data any) ([]byte, error) {
	f := Frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("error marshaling %s payload: %w", event, err)
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

// Decode turns a raw frame into an event. Every error wraps
// newschat.ErrMalformedEvent.
func Decode(raw []byte) (newschat.Event, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return newschat.Event{}, malformed("invalid frame: %v", err)
	}

	kind := newschat.EventKind(f.Event)
	ev := newschat.Event{Kind: kind}

	switch kind {
	case newschat.EventFullMessage, newschat.EventComplete:
		msg, err := decodeMessage(f.Data)
		if err != nil {
			return newschat.Event{}, malformed("%s: %v", kind, err)
		}
		if kind == newschat.EventComplete && msg.Timestamp == "" {
			return newschat.Event{}, malformed("%s: missing timestamp", kind)
		}
		ev.Message = msg

	case newschat.EventChunk:
		var c newschat.Chunk
		if err := unmarshalData(f.Data, &c); err != nil {
			return newschat.Event{}, malformed("%s: %v", kind, err)
		}
		if c.Timestamp == "" {
			return newschat.Event{}, malformed("%s: missing timestamp", kind)
		}
		ev.Chunk = c

	case newschat.EventTyping:
		if err := unmarshalData(f.Data, &ev.Typing); err != nil {
			return newschat.Event{}, malformed("%s: %v", kind, err)
		}

	case newschat.EventSessionCleared:
		// no payload

	case newschat.EventError:
		info, err := decodeError(f.Data)
		if err != nil {
			return newschat.Event{}, malformed("%s: %v", kind, err)
		}
		ev.Error = info

	case "":
		return newschat.Event{}, malformed("missing event name")

	default:
		return newschat.Event{}, malformed("unknown event %q", f.Event)
	}

	return ev, nil
}

func decodeMessage(data json.RawMessage) (newschat.Message, error) {
	var w wireMessage
	if err := unmarshalData(data, &w); err != nil {
		return newschat.Message{}, err
	}
	role, err := newschat.ParseRole(w.Role)
	if err != nil {
		return newschat.Message{}, err
	}
	return newschat.Message{
		Role:      role,
		Content:   w.Content,
		Timestamp: w.Timestamp,
		IsPartial: w.IsPartial,
	}, nil
}

// decodeError accepts {"message": "..."} or a bare string
func decodeError(data json.RawMessage) (newschat.ErrorInfo, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return newschat.ErrorInfo{}, err
		}
		return newschat.ErrorInfo{Message: s}, nil
	}

	var info newschat.ErrorInfo
	if err := unmarshalData(data, &info); err != nil {
		return newschat.ErrorInfo{}, err
	}
	if info.Message == "" {
		info.Message = "unknown error"
	}
	return info, nil
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 || string(data) == "null" {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(data, v)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{newschat.ErrMalformedEvent}, args...)...)
}
