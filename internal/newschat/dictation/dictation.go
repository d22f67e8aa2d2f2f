// Package dictation turns speech into text by running an external command.
// The command is expected to record, transcribe and print the text on stdout.
package dictation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
)

// ErrNotConfigured is returned when no dictation command is set
var ErrNotConfigured = errors.New("dictation is not configured (set dictation_command)")

// Source produces text from the user's voice
type Source interface {
	Dictate(ctx context.Context) (string, error)
}

// CommandSource runs a configured command line
type CommandSource struct {
	name string
	args []string
}

// NewCommandSource parses a shell-style command line such as
// `whisper-cli --model base --lang "en"`. An empty line yields a source that
// always returns ErrNotConfigured.
func NewCommandSource(commandLine string) (*CommandSource, error) {
	words, err := shellquote.Split(commandLine)
	if err != nil {
		return nil, fmt.Errorf("invalid dictation command: %w", err)
	}
	if len(words) == 0 {
		return &CommandSource{}, nil
	}
	return &CommandSource{name: words[0], args: words[1:]}, nil
}

// Configured reports whether a command is set
func (s *CommandSource) Configured() bool {
	return s.name != ""
}

// String returns the command line, quoted for display
func (s *CommandSource) String() string {
	if s.name == "" {
		return ""
	}
	return shellquote.Join(append([]string{s.name}, s.args...)...)
}

// Dictate runs the command and returns its trimmed output
func (s *CommandSource) Dictate(ctx context.Context) (string, error) {
	if s.name == "" {
		return "", ErrNotConfigured
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.name, s.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("dictation command failed: %w: %s", err, msg)
		}
		return "", fmt.Errorf("dictation command failed: %w", err)
	}

	text := strings.Join(strings.Fields(stdout.String()), " ")
	if text == "" {
		return "", fmt.Errorf("dictation produced no text")
	}
	return text, nil
}
