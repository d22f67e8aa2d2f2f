package history

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/longkey1/newschat/internal/newschat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	var gotPath, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.UserAgent()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"history": [
			{"role": "user", "content": "Hi", "timestamp": "2025-05-10T12:00:00.000Z"},
			{"content": "orphan", "timestamp": "t0"},
			{"role": "Assistant", "content": "Hello", "timestamp": 1746878401000}
		]}`))
	}))
	defer srv.Close()

	loader := NewLoader(srv.URL+"/", time.Second, nil)
	loader.UserAgent = "newschat/test"
	msgs, err := loader.Fetch(t.Context(), "s-1")
	require.NoError(t, err)

	assert.Equal(t, "/api/history/s-1", gotPath)
	assert.Equal(t, "newschat/test", gotAgent)
	assert.Equal(t, []newschat.Message{
		{Role: newschat.RoleUser, Content: "Hi", Timestamp: "2025-05-10T12:00:00.000Z"},
		{Role: newschat.RoleAssistant, Content: "Hello", Timestamp: "1746878401000"},
	}, msgs)
}

func TestFetch_EmptyHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	msgs, err := NewLoader(srv.URL, time.Second, nil).Fetch(t.Context(), "s-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrStatus)
				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
				assert.Equal(t, "boom", statusErr.Body)
			},
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"history": [`))
			},
			check: func(t *testing.T, err error) {
				assert.NotErrorIs(t, err, ErrStatus)
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, context.DeadlineExceeded)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewLoader(srv.URL, 50*time.Millisecond, nil).Fetch(t.Context(), "s-1")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestFetch_RequiresSessionID(t *testing.T) {
	_, err := NewLoader("http://localhost", time.Second, nil).Fetch(t.Context(), "")
	assert.Error(t, err)
}
