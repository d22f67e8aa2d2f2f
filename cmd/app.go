package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/longkey1/newschat/internal/newschat/client"
	"github.com/longkey1/newschat/internal/newschat/config"
	"github.com/longkey1/newschat/internal/newschat/dictation"
	"github.com/longkey1/newschat/internal/newschat/logging"
	"github.com/longkey1/newschat/internal/newschat/session"
	"golang.org/x/sync/errgroup"
)

// app holds what the networked commands share: configuration, the
// logger, and the persisted session state.
type app struct {
	config  *config.Config
	logger  *slog.Logger
	store   session.Store
	session *session.Manager

	closers []func() error
}

// newApp loads the configuration and opens the state store.
// quiet drops log output unless a log file is configured, so that a
// full-screen UI is not drawn over.
func newApp(quiet bool) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	a := &app{config: cfg}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	switch {
	case cfg.LogFile != "":
		logger, closeLog, err := logging.Open(level, cfg.LogFile)
		if err != nil {
			return nil, err
		}
		a.logger = logger
		a.closers = append(a.closers, closeLog)
	case quiet:
		a.logger = logging.Discard()
	default:
		a.logger = logging.New(level, os.Stderr)
	}

	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir, err = session.GetStateDir()
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	cfg.StateDir = stateDir

	// A broken store is not fatal: the session lives in memory only
	store, err := session.OpenStore(cfg.StateBackend, stateDir)
	if err != nil {
		a.logger.Warn("state store unavailable, session will not persist", "backend", cfg.StateBackend, "error", err)
		store = nil
	} else {
		a.store = store
		a.closers = append(a.closers, store.Close)
	}
	a.session = session.NewManager(store, a.logger)

	return a, nil
}

// newClient builds a chat client for the current session
func (a *app) newClient() (*client.Client, error) {
	source, err := dictation.NewCommandSource(a.config.DictationCommand)
	if err != nil {
		return nil, err
	}

	return client.New(client.Options{
		Config:    a.config,
		Session:   a.session,
		Dictation: source,
		Logger:    a.logger,
	})
}

// Close releases the store and the log file, most recent first
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withClient runs c in the background for as long as fn runs
func withClient(ctx context.Context, c *client.Client, fn func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)

	g.Go(func() error { return c.Run(runCtx) })
	g.Go(func() error {
		defer stop()
		return fn(gctx)
	})

	return g.Wait()
}

// waitReady blocks until c is connected and the history load has finished
func waitReady(ctx context.Context, c *client.Client, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.WaitConnected(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("could not connect within %s", timeout)
		}
		return err
	}

	select {
	case <-c.HistoryLoaded():
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Proceed without the transcript
		return nil
	}
}
