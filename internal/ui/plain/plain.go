// Package plain is the line-oriented interface used when no terminal UI is
// available. Replies are printed as they stream in.
package plain

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/longkey1/newschat/internal/newschat/conversation"
	"github.com/longkey1/newschat/internal/newschat/session"
	"github.com/longkey1/newschat/internal/newschat/transport"
)

// ErrBusy is returned by Ask when a reply is already outstanding
var ErrBusy = errors.New("a reply is still pending")

// Chat is the client surface used by the line interface
type Chat interface {
	SessionID() string
	Send(ctx context.Context, text string) (bool, error)
	Clear(ctx context.Context) error
	Snapshot() conversation.Snapshot
	Subscribe(ctx context.Context) (<-chan conversation.Snapshot, func())
	Notices() <-chan conversation.Notice
	ConnState() transport.ConnState
	Theme() session.Theme
	ToggleTheme() (session.Theme, error)
	CanDictate() bool
	Dictate(ctx context.Context) (string, error)
}

// Options sets the streams used by Run. Replies go to Out; prompts and
// status lines go to Err.
type Options struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type loop struct {
	chat    Chat
	out     io.Writer
	errw    io.Writer
	printer *printer
	waiting bool
}

// Run reads lines from opts.In until EOF, /exit, or ctx is cancelled
func Run(ctx context.Context, chat Chat, opts Options) error {
	l := &loop{
		chat:    chat,
		out:     opts.Out,
		errw:    opts.Err,
		printer: newPrinter(opts.Out, true),
	}

	snaps, release := chat.Subscribe(ctx)
	defer release()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(opts.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprintf(l.errw, "\n=== News Chat [%s] ===\n", session.ShortID(chat.SessionID()))
	fmt.Fprintf(l.errw, "Type '/help' for commands, '/exit' or 'Ctrl+D' to quit\n")
	fmt.Fprintf(l.errw, "===========================\n")
	l.prompt()

	for {
		select {
		case <-ctx.Done():
			return nil

		case s, ok := <-snaps:
			if !ok {
				return nil
			}
			l.printer.render(s)
			if l.waiting && !s.Loading && !s.ClearPending {
				l.waiting = false
				l.prompt()
			}

		case n := <-chat.Notices():
			l.printer.endLine()
			fmt.Fprintf(l.errw, "%s %s\n", warn("!"), n.Text)

		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("input error: %w", err)
					}
				default:
				}
				fmt.Fprintln(l.errw, "\nGoodbye!")
				return nil
			}
			if !l.handleLine(ctx, strings.TrimSpace(line)) {
				return nil
			}
		}
	}
}

func (l *loop) prompt() {
	fmt.Fprint(l.errw, "\nYou> ")
}

// handleLine returns false when the loop should end
func (l *loop) handleLine(ctx context.Context, input string) bool {
	if input == "" {
		if !l.waiting {
			l.prompt()
		}
		return true
	}

	if strings.HasPrefix(input, "/") {
		return l.handleCommand(ctx, input)
	}

	l.send(ctx, input)
	return true
}

func (l *loop) send(ctx context.Context, text string) {
	if l.waiting {
		fmt.Fprintln(l.errw, "Still waiting for the previous reply.")
		return
	}

	l.printer.expectEcho(text)
	ok, err := l.chat.Send(ctx, text)
	if !ok {
		l.printer.pending[text]--
	}
	switch {
	case err != nil && !ok:
		fmt.Fprintf(l.errw, "Error: %v\n", err)
		l.prompt()
	case err != nil:
		// Reported through the notice channel
		l.prompt()
	case !ok:
		fmt.Fprintln(l.errw, "Still waiting for the previous reply.")
	default:
		l.waiting = true
	}
}

// handleCommand processes slash commands. Returns false to exit.
func (l *loop) handleCommand(ctx context.Context, command string) bool {
	command = strings.ToLower(strings.TrimSpace(command))

	switch command {
	case "/help", "/h":
		fmt.Fprintln(l.errw, "\nAvailable commands:")
		fmt.Fprintln(l.errw, "  /help, /h     - Show this help message")
		fmt.Fprintln(l.errw, "  /info, /i     - Show session information")
		fmt.Fprintln(l.errw, "  /clear, /c    - Clear the conversation")
		fmt.Fprintln(l.errw, "  /theme, /t    - Toggle light/dark theme")
		fmt.Fprintln(l.errw, "  /dictate, /d  - Record a question with the dictation command")
		fmt.Fprintln(l.errw, "  /exit, /quit  - Exit")
		fmt.Fprintln(l.errw, "  Ctrl+D        - Exit")

	case "/info", "/i":
		snap := l.chat.Snapshot()
		fmt.Fprintln(l.errw, "\nSession Information:")
		fmt.Fprintf(l.errw, "  ID: %s\n", session.ShortID(l.chat.SessionID()))
		fmt.Fprintf(l.errw, "  Full ID: %s\n", l.chat.SessionID())
		fmt.Fprintf(l.errw, "  Connection: %s\n", l.chat.ConnState())
		fmt.Fprintf(l.errw, "  Theme: %s\n", l.chat.Theme())
		fmt.Fprintf(l.errw, "  Messages: %d\n", len(snap.Messages))

	case "/clear", "/c":
		if l.waiting {
			fmt.Fprintln(l.errw, "Still waiting for the previous reply.")
			return true
		}
		if err := l.chat.Clear(ctx); err != nil {
			fmt.Fprintf(l.errw, "Error: %v\n", err)
			break
		}
		l.waiting = true
		return true

	case "/theme", "/t":
		theme, err := l.chat.ToggleTheme()
		if err != nil {
			fmt.Fprintf(l.errw, "Warning: %v\n", err)
		}
		fmt.Fprintf(l.errw, "Theme: %s\n", theme)

	case "/dictate", "/d":
		if !l.chat.CanDictate() {
			fmt.Fprintln(l.errw, "Dictation is not configured (set dictation_command).")
			break
		}
		if l.waiting {
			fmt.Fprintln(l.errw, "Still waiting for the previous reply.")
			return true
		}
		fmt.Fprintln(l.errw, faint("Listening..."))
		text, err := l.chat.Dictate(ctx)
		if err != nil {
			fmt.Fprintf(l.errw, "Error: %v\n", err)
			break
		}
		fmt.Fprintf(l.errw, "%s %s\n", userLabel("You>"), text)
		l.send(ctx, text)
		return true

	case "/exit", "/quit", "/q":
		fmt.Fprintln(l.errw, "Goodbye!")
		return false

	default:
		fmt.Fprintf(l.errw, "Unknown command: %s (type '/help' for available commands)\n", command)
	}

	if !l.waiting {
		l.prompt()
	}
	return true
}

// Ask sends one message and writes the reply to out as it streams.
// Messages already in the conversation are not printed.
func Ask(ctx context.Context, chat Chat, text string, out io.Writer) error {
	snaps, release := chat.Subscribe(ctx)
	defer release()

	p := newPrinter(out, false)
	p.skip(chat.Snapshot())
	p.expectEcho(text)

	ok, err := chat.Send(ctx, text)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBusy
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-chat.Notices():
			p.endLine()
			return errors.New(n.Text)
		case s, ok := <-snaps:
			if !ok {
				return nil
			}
			p.render(s)
			if !s.Loading {
				return nil
			}
		}
	}
}
