// Package history fetches the server-side transcript of a session.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/longkey1/newschat/internal/newschat"
)

// DefaultTimeout bounds a fetch when no timeout is configured
const DefaultTimeout = 10 * time.Second

// ErrStatus is matched by every StatusError
var ErrStatus = errors.New("unexpected history status")

// StatusError is returned when the history endpoint answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("history API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("history API error: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Response represents the body returned by the history endpoint
type Response struct {
	History []Entry `json:"history"`
}

// Entry is one message as stored on the server. The role is optional on
// the wire; entries without one are dropped.
type Entry struct {
	Role      string             `json:"role"`
	Content   string             `json:"content"`
	Timestamp newschat.Timestamp `json:"timestamp"`
}

// Loader fetches session history over HTTP
type Loader struct {
	UserAgent string // sent when set

	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewLoader creates a loader for the API rooted at baseURL
func NewLoader(baseURL string, timeout time.Duration, logger *slog.Logger) *Loader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
		logger:  logger.With("component", "history"),
	}
}

// Fetch returns the stored messages of a session in server order
func (l *Loader) Fetch(ctx context.Context, sessionID string) ([]newschat.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	endpoint := l.baseURL + "/api/history/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if l.UserAgent != "" {
		req.Header.Set("User-Agent", l.UserAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result Response
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	messages := make([]newschat.Message, 0, len(result.History))
	for i, entry := range result.History {
		role, err := newschat.ParseRole(entry.Role)
		if err != nil {
			l.logger.Warn("dropping history entry", "index", i, "error", err)
			continue
		}
		messages = append(messages, newschat.Message{
			Role:      role,
			Content:   entry.Content,
			Timestamp: entry.Timestamp,
		})
	}

	l.logger.Debug("fetched history", "messages", len(messages))
	return messages, nil
}
