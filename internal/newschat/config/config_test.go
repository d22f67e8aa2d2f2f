package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadFrom resets viper, registers the defaults and reads the given file.
func loadFrom(t *testing.T, path string) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	def := NewDefaultConfig("state")
	viper.SetDefault("api_url", def.APIURL)
	viper.SetDefault("ws_path", def.WSPath)
	viper.SetDefault("state_backend", def.StateBackend)
	viper.SetDefault("state_dir", def.StateDir)
	viper.SetDefault("history_timeout", def.HistoryTimeout)
	viper.SetDefault("response_timeout", def.ResponseTimeout)
	viper.SetDefault("reconnect_min_delay", def.ReconnectMinDelay)
	viper.SetDefault("reconnect_max_delay", def.ReconnectMaxDelay)
	viper.SetDefault("reconnect_per_minute", def.ReconnectPerMinute)
	viper.SetDefault("ping_interval", def.PingInterval)
	viper.SetDefault("log_level", def.LogLevel)
	viper.SetDefault("suggestions", def.Suggestions)

	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())
	return LoadConfig()
}

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadFrom(t, writeFile(t, dir, ""))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.APIURL)
	assert.Equal(t, BackendFile, cfg.StateBackend)
	assert.Equal(t, filepath.Join(dir, "state"), cfg.StateDir)
	assert.Equal(t, 10*time.Second, cfg.HistoryTimeout)
	assert.Equal(t, 60*time.Second, cfg.ResponseTimeout)
	assert.Len(t, cfg.Suggestions, 3)
}

func TestLoadConfig_DurationsAndEnv(t *testing.T) {
	t.Setenv("NEWS_API", "https://news.example.com/")
	dir := t.TempDir()
	cfg, err := loadFrom(t, writeFile(t, dir, `
api_url = "${NEWS_API}"
state_backend = "sqlite"
state_dir = "/var/lib/newschat"
history_timeout = "3s"
reconnect_min_delay = "250ms"
`))
	require.NoError(t, err)

	assert.Equal(t, "https://news.example.com/", cfg.APIURL)
	assert.Equal(t, BackendSQLite, cfg.StateBackend)
	assert.Equal(t, "/var/lib/newschat", cfg.StateDir)
	assert.Equal(t, 3*time.Second, cfg.HistoryTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectMinDelay)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad backend", `state_backend = "redis"`},
		{"bad scheme", `api_url = "ftp://example.com"`},
		{"missing host", `api_url = "http://"`},
		{"inverted delays", "reconnect_min_delay = \"1m\"\nreconnect_max_delay = \"1s\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFrom(t, writeFile(t, t.TempDir(), tt.content))
			assert.Error(t, err)
		})
	}
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		apiURL string
		wsPath string
		want   string
	}{
		{"http://localhost:5000", "/ws", "ws://localhost:5000/ws"},
		{"https://news.example.com/", "/ws", "wss://news.example.com/ws"},
		{"https://news.example.com/chat", "socket", "wss://news.example.com/chat/socket"},
	}

	for _, tt := range tests {
		t.Run(tt.apiURL, func(t *testing.T) {
			cfg := NewDefaultConfig("")
			cfg.APIURL = tt.apiURL
			cfg.WSPath = tt.wsPath
			got, err := cfg.WebSocketURL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileRoundTripThroughViper(t *testing.T) {
	def := NewDefaultConfig("state")
	def.ResponseTimeout = 90 * time.Second

	var buf bytes.Buffer
	require.NoError(t, toml.NewEncoder(&buf).Encode(def.File()))

	dir := t.TempDir()
	cfg, err := loadFrom(t, writeFile(t, dir, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.ResponseTimeout)
	assert.Equal(t, def.PingInterval, cfg.PingInterval)
	assert.Equal(t, def.Suggestions, cfg.Suggestions)
}

func TestExpandEnvVar(t *testing.T) {
	t.Setenv("NEWSCHAT_TEST_VALUE", "value")

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "plain", false},
		{"$NEWSCHAT_TEST_VALUE", "value", false},
		{"${NEWSCHAT_TEST_VALUE}", "value", false},
		{"$NEWSCHAT_TEST_UNSET", "", false},
		{"$", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := expandEnvVar(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
