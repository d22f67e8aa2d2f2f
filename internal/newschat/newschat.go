// Package newschat provides the core types shared by the news chat client.
// This package defines the Message exchanged with the upstream service, the
// inbound Event kinds and the outbound command names. The components that
// move these values around (transport, conversation, history, session) live
// in sub-packages.
package newschat

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEvent is returned when an inbound event is missing a required field
var ErrMalformedEvent = errors.New("malformed event")

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole normalizes a role string.
// Unknown roles are accepted verbatim so out-of-band messages still render.
//
// Example:
//
//	role, err := ParseRole(" Assistant ")
//	// role = RoleAssistant
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("role cannot be empty")
	}
	return Role(s), nil
}

// Label returns the display label for the role
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}
