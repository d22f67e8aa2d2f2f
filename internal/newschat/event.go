package newschat

// EventKind names an inbound event on the upstream channel
type EventKind string

const (
	EventFullMessage    EventKind = "chat message"
	EventChunk          EventKind = "chat chunk"
	EventComplete       EventKind = "chat complete"
	EventTyping         EventKind = "typing"
	EventSessionCleared EventKind = "session cleared"
	EventError          EventKind = "error"
)

// Outbound command names
const (
	CommandJoin         = "join"
	CommandChatMessage  = "chat message"
	CommandClearSession = "clear session"
)

// Chunk is an incremental fragment of an assistant reply
type Chunk struct {
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp"`
}

// ErrorInfo is the payload of a non-fatal delivery failure
type ErrorInfo struct {
	Message string `json:"message"`
}

// Event is a decoded inbound event. Only the field matching Kind is set.
type Event struct {
	Kind    EventKind
	Message Message   // EventFullMessage, EventComplete
	Chunk   Chunk     // EventChunk
	Typing  bool      // EventTyping
	Error   ErrorInfo // EventError
}

// ChatCommand is the payload of the "chat message" command
type ChatCommand struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}
