package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/longkey1/newschat/internal/newschat/client"
	"github.com/longkey1/newschat/internal/newschat/history"
	"github.com/longkey1/newschat/internal/newschat/session"
	"github.com/spf13/cobra"
)

var forceClear bool

// sessionCmd represents the session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the chat session",
	Long: `Manage the chat session.

The session id is created on first use and kept in the state directory, so
the conversation continues across runs. The server keeps the transcript.`,
}

// sessionShowCmd represents the session show command
var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.session.SessionID()
		if err != nil {
			return fmt.Errorf("getting session id: %w", err)
		}

		fmt.Printf("Session: %s\n", id)
		fmt.Printf("Short ID: %s\n", session.ShortID(id))
		fmt.Printf("Theme: %s\n", a.session.Theme())
		fmt.Printf("State: %s (%s)\n", a.config.StateDir, a.config.StateBackend)
		if a.session.Degraded() {
			fmt.Println("Persistent: no (the id is lost when this process exits)")
		} else {
			fmt.Println("Persistent: yes")
		}
		return nil
	},
}

// sessionHistoryCmd represents the session history command
var sessionHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the server transcript of the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.session.SessionID()
		if err != nil {
			return fmt.Errorf("getting session id: %w", err)
		}
		baseURL, err := a.config.BaseURL()
		if err != nil {
			return err
		}

		loader := history.NewLoader(baseURL.String(), a.config.HistoryTimeout, a.logger)
		loader.UserAgent = client.UserAgent()
		messages, err := loader.Fetch(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}

		fmt.Printf("Session: %s\n", id)
		fmt.Printf("Messages: %d\n", len(messages))
		fmt.Println()

		if len(messages) == 0 {
			fmt.Println("No messages in this session.")
			return nil
		}

		fmt.Println("Message History:")
		fmt.Println("----------------")
		for i, msg := range messages {
			timestamp := string(msg.Timestamp)
			if t, ok := msg.Timestamp.Time(); ok {
				timestamp = t.Local().Format("2006-01-02 15:04:05")
			}

			fmt.Printf("\n[%d] %s (%s):\n%s\n",
				i+1,
				msg.Role.Label(),
				timestamp,
				msg.Content,
			)
		}
		return nil
	},
}

// sessionClearCmd represents the session clear command
var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the conversation of the current session",
	Long: `Ask the server to forget the conversation of the current session.

The session id stays the same. Use 'newschat session new' to switch to a new id.

Warning: This action cannot be undone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.newClient()
		if err != nil {
			return err
		}

		if !forceClear {
			// Confirm
			fmt.Printf("Are you sure you want to clear session %s? [y/N]: ", session.ShortID(c.SessionID()))
			var response string
			fmt.Scanln(&response)

			if response != "y" && response != "Y" {
				fmt.Println("Clear cancelled.")
				return nil
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = withClient(ctx, c, func(ctx context.Context) error {
			if err := waitReady(ctx, c, connectTimeout); err != nil {
				return err
			}

			snaps, release := c.Subscribe(ctx)
			defer release()

			if err := c.Clear(ctx); err != nil {
				return err
			}

			ackCtx, cancel := context.WithTimeout(ctx, a.config.ResponseTimeout)
			defer cancel()
			for {
				select {
				case <-ackCtx.Done():
					return fmt.Errorf("no confirmation from the server: %w", ackCtx.Err())
				case n := <-c.Notices():
					return errors.New(n.Text)
				case s, ok := <-snaps:
					if !ok {
						return ctx.Err()
					}
					if !s.ClearPending {
						return nil
					}
				}
			}
		})
		if err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}

		fmt.Printf("Session %s cleared.\n", session.ShortID(c.SessionID()))
		return nil
	},
}

// sessionNewCmd represents the session new command
var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new session",
	Long: `Replace the saved session id with a new one.

The previous conversation stays on the server but is no longer shown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.session.Rotate()
		if err != nil {
			return fmt.Errorf("starting new session: %w", err)
		}

		fmt.Printf("New session created: %s\n", session.ShortID(id))
		fmt.Printf("\nContinue with:\n  newschat chat \"your message\"\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)

	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionHistoryCmd)
	sessionCmd.AddCommand(sessionClearCmd)
	sessionCmd.AddCommand(sessionNewCmd)

	sessionClearCmd.Flags().BoolVarP(&forceClear, "force", "f", false, "Do not ask for confirmation")
	sessionClearCmd.Flags().DurationVar(&connectTimeout, "timeout", 15*time.Second, "How long to wait for the connection")
}
