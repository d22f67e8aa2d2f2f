package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// State backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds the configuration for the chat client
type Config struct {
	APIURL             string        `toml:"api_url" mapstructure:"api_url"`                           // Upstream base URL (e.g., "http://localhost:5000")
	WSPath             string        `toml:"ws_path" mapstructure:"ws_path"`                           // Path of the event channel endpoint
	StateBackend       string        `toml:"state_backend" mapstructure:"state_backend"`               // "file" or "sqlite"
	StateDir           string        `toml:"state_dir" mapstructure:"state_dir"`                       // Where the session id and theme are kept
	HistoryTimeout     time.Duration `toml:"history_timeout" mapstructure:"history_timeout"`           // Bound on the history fetch
	ResponseTimeout    time.Duration `toml:"response_timeout" mapstructure:"response_timeout"`         // Bound on an outstanding request
	ReconnectMinDelay  time.Duration `toml:"reconnect_min_delay" mapstructure:"reconnect_min_delay"`   // First reconnect backoff
	ReconnectMaxDelay  time.Duration `toml:"reconnect_max_delay" mapstructure:"reconnect_max_delay"`   // Backoff ceiling
	ReconnectPerMinute int           `toml:"reconnect_per_minute" mapstructure:"reconnect_per_minute"` // Attempt rate cap
	PingInterval       time.Duration `toml:"ping_interval" mapstructure:"ping_interval"`               // Websocket heartbeat
	LogLevel           string        `toml:"log_level" mapstructure:"log_level"`
	LogFile            string        `toml:"log_file" mapstructure:"log_file"` // Empty = stderr (plain mode) or discarded (TUI)
	DictationCommand   string        `toml:"dictation_command" mapstructure:"dictation_command"`
	Suggestions        []string      `toml:"suggestions" mapstructure:"suggestions"`
}

// NewDefaultConfig returns a new Config with default values
func NewDefaultConfig(stateDir string) *Config {
	return &Config{
		APIURL:             "http://localhost:5000",
		WSPath:             "/ws",
		StateBackend:       BackendFile,
		StateDir:           stateDir,
		HistoryTimeout:     10 * time.Second,
		ResponseTimeout:    60 * time.Second,
		ReconnectMinDelay:  500 * time.Millisecond,
		ReconnectMaxDelay:  30 * time.Second,
		ReconnectPerMinute: 20,
		PingInterval:       25 * time.Second,
		LogLevel:           "info",
		LogFile:            "",
		DictationCommand:   "",
		Suggestions: []string{
			"India and Pakistan Ceasefire?",
			"News about Russia and Ukraine?",
			"What's happening in global politics?",
		},
	}
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand $VAR references in values that commonly come from the environment
	for _, field := range []*string{&config.APIURL, &config.StateDir, &config.LogFile, &config.DictationCommand} {
		expanded, err := expandEnvVar(*field)
		if err != nil {
			return nil, err
		}
		*field = expanded
	}

	if config.StateDir != "" {
		absPath, err := ResolvePath(config.StateDir)
		if err != nil {
			return nil, fmt.Errorf("error resolving state directory path '%s': %w", config.StateDir, err)
		}
		config.StateDir = absPath
	}

	if config.LogFile != "" {
		absPath, err := ResolvePath(config.LogFile)
		if err != nil {
			return nil, fmt.Errorf("error resolving log file path '%s': %w", config.LogFile, err)
		}
		config.LogFile = absPath
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the values that would otherwise fail late
func (c *Config) Validate() error {
	if _, err := c.BaseURL(); err != nil {
		return err
	}

	switch c.StateBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unsupported state backend: %s (expected %q or %q)", c.StateBackend, BackendFile, BackendSQLite)
	}

	if c.ReconnectMinDelay <= 0 || c.ReconnectMaxDelay < c.ReconnectMinDelay {
		return fmt.Errorf("invalid reconnect delays: min %s, max %s", c.ReconnectMinDelay, c.ReconnectMaxDelay)
	}

	return nil
}

// BaseURL parses the upstream base URL
func (c *Config) BaseURL() (*url.URL, error) {
	if c.APIURL == "" {
		return nil, fmt.Errorf("api_url is not configured. Set it in config file (api_url) or environment variable (API_URL)")
	}

	u, err := url.Parse(strings.TrimRight(c.APIURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api_url %q: %w", c.APIURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api_url %q: scheme must be http or https", c.APIURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid api_url %q: missing host", c.APIURL)
	}
	return u, nil
}

// WebSocketURL returns the event channel URL derived from the base URL
func (c *Config) WebSocketURL() (string, error) {
	u, err := c.BaseURL()
	if err != nil {
		return "", err
	}

	ws := *u
	switch u.Scheme {
	case "https":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}

	path := c.WSPath
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	ws.Path = strings.TrimRight(u.Path, "/") + path
	return ws.String(), nil
}

// File is the on-disk form written by `newschat init`. Durations are kept as
// strings ("10s") so the file stays readable; viper decodes them back.
type File struct {
	APIURL             string   `toml:"api_url"`
	WSPath             string   `toml:"ws_path"`
	StateBackend       string   `toml:"state_backend"`
	StateDir           string   `toml:"state_dir"`
	HistoryTimeout     string   `toml:"history_timeout"`
	ResponseTimeout    string   `toml:"response_timeout"`
	ReconnectMinDelay  string   `toml:"reconnect_min_delay"`
	ReconnectMaxDelay  string   `toml:"reconnect_max_delay"`
	ReconnectPerMinute int      `toml:"reconnect_per_minute"`
	PingInterval       string   `toml:"ping_interval"`
	LogLevel           string   `toml:"log_level"`
	LogFile            string   `toml:"log_file"`
	DictationCommand   string   `toml:"dictation_command"`
	Suggestions        []string `toml:"suggestions"`
}

// File converts the config to its on-disk form
func (c *Config) File() File {
	return File{
		APIURL:             c.APIURL,
		WSPath:             c.WSPath,
		StateBackend:       c.StateBackend,
		StateDir:           c.StateDir,
		HistoryTimeout:     c.HistoryTimeout.String(),
		ResponseTimeout:    c.ResponseTimeout.String(),
		ReconnectMinDelay:  c.ReconnectMinDelay.String(),
		ReconnectMaxDelay:  c.ReconnectMaxDelay.String(),
		ReconnectPerMinute: c.ReconnectPerMinute,
		PingInterval:       c.PingInterval.String(),
		LogLevel:           c.LogLevel,
		LogFile:            c.LogFile,
		DictationCommand:   c.DictationCommand,
		Suggestions:        c.Suggestions,
	}
}
