package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longkey1/newschat/internal/newschat"
	"github.com/longkey1/newschat/internal/newschat/config"
	"github.com/longkey1/newschat/internal/newschat/conversation"
	"github.com/longkey1/newschat/internal/newschat/session"
	"github.com/longkey1/newschat/internal/newschat/transport"
)

// newsServer answers chat messages with a streamed echo and acknowledges clears
type newsServer struct {
	upgrader websocket.Upgrader
	history  string

	mu     sync.Mutex
	joined []string
}

func (s *newsServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/history/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(s.history))
	})
	mux.HandleFunc("/ws", s.serveWS)
	return mux
}

func (s *newsServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	send := func(event string, data any) {
		raw, _ := transport.Encode(event, data)
		conn.WriteMessage(websocket.TextMessage, raw)
	}

	for {
		var f transport.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}

		switch f.Event {
		case newschat.CommandJoin:
			var id string
			json.Unmarshal(f.Data, &id)
			s.mu.Lock()
			s.joined = append(s.joined, id)
			s.mu.Unlock()

		case newschat.CommandChatMessage:
			var cmd newschat.ChatCommand
			json.Unmarshal(f.Data, &cmd)
			ts := "r-" + cmd.Message
			send("typing", true)
			send("chat chunk", newschat.Chunk{Text: "You said: ", Timestamp: newschat.Timestamp(ts)})
			send("chat chunk", newschat.Chunk{Text: cmd.Message, Timestamp: newschat.Timestamp(ts)})
			send("typing", false)
			send("chat complete", newschat.Message{Role: newschat.RoleAssistant, Content: "You said: " + cmd.Message, Timestamp: newschat.Timestamp(ts)})

		case newschat.CommandClearSession:
			send("session cleared", nil)
		}
	}
}

func (s *newsServer) Joined() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.joined...)
}

func startClient(t *testing.T, srv *newsServer) *Client {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	cfg := config.NewDefaultConfig(t.TempDir())
	cfg.APIURL = ts.URL
	cfg.HistoryTimeout = time.Second
	cfg.ResponseTimeout = 2 * time.Second
	cfg.ReconnectMinDelay = 10 * time.Millisecond
	cfg.ReconnectMaxDelay = 50 * time.Millisecond

	c, err := New(Options{Config: cfg, Session: session.NewManager(nil, nil)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, c.WaitConnected(waitCtx))
	return c
}

func waitHistory(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.HistoryLoaded():
	case <-time.After(2 * time.Second):
		t.Fatal("history load did not finish")
	}
}

func waitFor(t *testing.T, c *Client, cond func(conversation.Snapshot) bool) conversation.Snapshot {
	t.Helper()
	var last conversation.Snapshot
	require.Eventually(t, func() bool {
		last = c.Snapshot()
		return cond(last)
	}, 3*time.Second, 5*time.Millisecond)
	return last
}

func TestClient_SendStreamsReply(t *testing.T) {
	srv := &newsServer{history: `{"history": []}`}
	c := startClient(t, srv)
	waitHistory(t, c)

	assert.Equal(t, []string{c.SessionID()}, srv.Joined())
	assert.Equal(t, transport.StateConnected, c.ConnState())

	ok, err := c.Send(t.Context(), "Hi")
	require.NoError(t, err)
	require.True(t, ok)

	snap := waitFor(t, c, func(s conversation.Snapshot) bool { return !s.Loading && len(s.Messages) == 2 })
	assert.Equal(t, newschat.RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "Hi", snap.Messages[0].Content)
	assert.Equal(t, newschat.Message{
		Role:      newschat.RoleAssistant,
		Content:   "You said: Hi",
		Timestamp: "r-Hi",
	}, snap.Messages[1])
	assert.False(t, snap.Typing)
}

func TestClient_LoadsHistory(t *testing.T) {
	srv := &newsServer{history: `{"history": [
		{"role": "user", "content": "Earlier", "timestamp": "h1"},
		{"role": "assistant", "content": "Answer", "timestamp": "h2"}
	]}`}
	c := startClient(t, srv)
	waitHistory(t, c)

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Earlier", snap.Messages[0].Content)
	assert.Equal(t, "Answer", snap.Messages[1].Content)
}

func TestClient_HistoryFailureLeavesLogEmpty(t *testing.T) {
	srv := &newsServer{history: `{"history": [`}
	c := startClient(t, srv)
	waitHistory(t, c)

	assert.Empty(t, c.Snapshot().Messages)
}

func TestClient_ClearSession(t *testing.T) {
	srv := &newsServer{history: `{"history": []}`}
	c := startClient(t, srv)
	waitHistory(t, c)

	_, err := c.Send(t.Context(), "Hi")
	require.NoError(t, err)
	waitFor(t, c, func(s conversation.Snapshot) bool { return !s.Loading && len(s.Messages) == 2 })

	id := c.SessionID()
	require.NoError(t, c.Clear(t.Context()))

	snap := waitFor(t, c, func(s conversation.Snapshot) bool { return !s.ClearPending && !s.Loading })
	assert.Empty(t, snap.Messages)
	assert.Equal(t, id, c.SessionID())
}

func TestClient_ThemeAndSuggestions(t *testing.T) {
	srv := &newsServer{history: `{"history": []}`}
	c := startClient(t, srv)

	assert.Equal(t, session.ThemeLight, c.Theme())
	theme, err := c.ToggleTheme()
	require.NoError(t, err)
	assert.Equal(t, session.ThemeDark, theme)

	assert.Len(t, c.Suggestions(), 3)
	assert.False(t, c.CanDictate())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	cfg := config.NewDefaultConfig("")
	cfg.APIURL = "ftp://nope"
	_, err = New(Options{Config: cfg, Session: session.NewManager(nil, nil)})
	assert.Error(t, err)
}
