/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/longkey1/newschat/internal/ui"
	"github.com/longkey1/newschat/internal/ui/plain"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	plainMode      bool
	useEditor      bool
	newSession     bool
	connectTimeout time.Duration
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the news assistant",
	Long: `Chat with the news assistant.

Without a message, an interactive chat is started. On a terminal this is a
full-screen view; with --plain, or when output is not a terminal, a
line-oriented prompt is used instead.

With a message, or with text piped on stdin, the message is sent once and
the reply is printed as it streams in.
If --editor flag is set, it opens the default editor (from EDITOR environment variable) to compose the message.

The conversation belongs to the current session and is restored from the
server when the chat starts. Use --new-session to start over with a new one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stdinTTY := term.IsTerminal(int(os.Stdin.Fd()))
		stdoutTTY := term.IsTerminal(int(os.Stdout.Fd()))

		// Get message from arguments, editor, or stdin
		var message string
		switch {
		case useEditor:
			var err error
			message, err = getMessageFromEditor()
			if err != nil {
				return fmt.Errorf("getting message from editor: %w", err)
			}
			if message == "" {
				return fmt.Errorf("message is empty")
			}
		case len(args) > 0:
			message = strings.Join(args, " ")
		case !stdinTTY:
			input, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading from stdin: %w", err)
			}
			message = strings.TrimSpace(string(input))
			if message == "" {
				return fmt.Errorf("message is empty")
			}
		}

		fullScreen := message == "" && !plainMode && stdoutTTY

		a, err := newApp(fullScreen)
		if err != nil {
			return err
		}
		defer a.Close()

		if newSession {
			id, err := a.session.Rotate()
			if err != nil {
				return fmt.Errorf("starting new session: %w", err)
			}
			a.logger.Debug("started new session", "session", id)
		}

		c, err := a.newClient()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withClient(ctx, c, func(ctx context.Context) error {
			switch {
			case message != "":
				if err := waitReady(ctx, c, connectTimeout); err != nil {
					return err
				}
				return plain.Ask(ctx, c, message, os.Stdout)
			case fullScreen:
				return ui.Run(ctx, c)
			default:
				return plain.Run(ctx, c, plain.Options{
					In:  os.Stdin,
					Out: os.Stdout,
					Err: os.Stderr,
				})
			}
		})
	},
}

// getMessageFromEditor opens the user's editor and returns what was written
func getMessageFromEditor() (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		return "", fmt.Errorf("EDITOR environment variable is not set")
	}

	// Create a temporary file
	tmpFile, err := os.CreateTemp("", "newschat-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %v", err)
	}
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	// Open the editor
	cmd := exec.Command(editor, tmpFile.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to open editor: %v", err)
	}

	// Read the edited content
	content, err := os.ReadFile(tmpFile.Name())
	if err != nil {
		return "", fmt.Errorf("failed to read edited content: %v", err)
	}

	return strings.TrimSpace(string(content)), nil
}

func init() {
	rootCmd.AddCommand(chatCmd)

	// Add command options
	chatCmd.Flags().BoolVar(&plainMode, "plain", false, "Use the line-oriented prompt instead of the full-screen view")
	chatCmd.Flags().BoolVarP(&useEditor, "editor", "e", false, "Use default editor (from EDITOR environment variable) to compose message")
	chatCmd.Flags().BoolVarP(&newSession, "new-session", "n", false, "Start a new session before chatting")
	chatCmd.Flags().DurationVar(&connectTimeout, "timeout", 15*time.Second, "How long to wait for the connection when sending a single message")
}
