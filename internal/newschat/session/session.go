// Package session keeps the chat session identity and the theme preference
// across restarts.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrNoClearer is returned by Clear when no upstream has been bound.
var ErrNoClearer = errors.New("no upstream bound to clear the session")

// Theme is the colour scheme preference
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme validates a theme name
func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeLight, ThemeDark:
		return Theme(s), nil
	default:
		return "", fmt.Errorf("unknown theme: %q (expected %q or %q)", s, ThemeLight, ThemeDark)
	}
}

// Toggled returns the other theme
func (t Theme) Toggled() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Clearer discards the server-side history of a session
type Clearer interface {
	ClearSession(ctx context.Context, sessionID string) error
}

// Manager hands out the session id and theme preference
type Manager struct {
	store  Store
	logger *slog.Logger

	mu       sync.Mutex
	id       string
	degraded bool
	theme    Theme
	clearer  Clearer
}

// NewManager creates a manager over store. A nil store puts the manager in
// degraded mode: ids and themes live only as long as the process.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		logger:   logger.With("component", "session"),
		degraded: store == nil,
	}
}

// SessionID returns the persisted session id, creating and storing one on
// first use. The value is memoised for the lifetime of the manager.
func (m *Manager) SessionID() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.id != "" {
		return m.id, nil
	}

	if m.store != nil {
		id, ok, err := m.store.Get(KeySessionID)
		switch {
		case err != nil:
			m.logger.Warn("state store unavailable, using a temporary session", "error", err)
			m.degraded = true
		case ok && id != "":
			m.id = id
			return id, nil
		}
	}

	// A failed write leaves the manager degraded; the id is still usable
	id, err := m.mint()
	if id == "" {
		return "", err
	}
	return id, nil
}

// Rotate forgets the current session and starts a new one
func (m *Manager) Rotate() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil && !m.degraded {
		if err := m.store.Delete(KeySessionID); err != nil {
			return "", fmt.Errorf("failed to forget session id: %w", err)
		}
	}
	return m.mint()
}

// mint creates a new id and persists it when possible. Caller holds mu.
func (m *Manager) mint() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	m.id = u.String()

	if m.store == nil || m.degraded {
		return m.id, nil
	}
	if err := m.store.Set(KeySessionID, m.id); err != nil {
		m.logger.Warn("failed to persist session id", "error", err)
		m.degraded = true
		return m.id, fmt.Errorf("failed to persist session id: %w", err)
	}
	m.logger.Debug("created session", "session", ShortID(m.id))
	return m.id, nil
}

// Degraded reports whether state is kept in memory only
func (m *Manager) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// BindClearer sets the upstream used by Clear
func (m *Manager) BindClearer(c Clearer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearer = c
}

// Clear asks the upstream to discard the history of session id.
// The id itself is kept.
func (m *Manager) Clear(ctx context.Context, id string) error {
	m.mu.Lock()
	c := m.clearer
	m.mu.Unlock()

	if c == nil {
		return ErrNoClearer
	}
	if err := c.ClearSession(ctx, id); err != nil {
		return fmt.Errorf("clear session %s: %w", ShortID(id), err)
	}
	return nil
}

// Theme returns the saved theme, light when none is saved
func (m *Manager) Theme() Theme {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.theme != "" {
		return m.theme
	}

	m.theme = ThemeLight
	if m.store == nil {
		return m.theme
	}

	v, ok, err := m.store.Get(KeyTheme)
	if err != nil {
		m.logger.Warn("failed to read theme", "error", err)
		return m.theme
	}
	if !ok {
		return m.theme
	}
	if t, err := ParseTheme(v); err == nil {
		m.theme = t
	} else {
		m.logger.Warn("ignoring saved theme", "error", err)
	}
	return m.theme
}

// SetTheme saves the theme preference. The in-memory value changes even
// when persisting fails.
func (m *Manager) SetTheme(t Theme) error {
	if _, err := ParseTheme(string(t)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.theme = t
	if m.store == nil {
		return nil
	}
	if err := m.store.Set(KeyTheme, string(t)); err != nil {
		return fmt.Errorf("failed to save theme: %w", err)
	}
	return nil
}

// ToggleTheme switches between light and dark and returns the new theme
func (m *Manager) ToggleTheme() (Theme, error) {
	next := m.Theme().Toggled()
	return next, m.SetTheme(next)
}

// ShortID returns the shortened session ID (first 8 characters)
func ShortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
