package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"INFO", false, true},
		{"warn", false, false},
		{"bogus", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(tt.level, &buf)

			logger.Debug("debug line")
			logger.Info("info line", "component", "test")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug line")))
			assert.Equal(t, tt.wantInfo, bytes.Contains(buf.Bytes(), []byte("info line")))
		})
	}
}

func TestNew_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	New("info", &buf).With("component", "transport").Warn("dropped frame", "reason", "bad json")

	out := buf.String()
	assert.Contains(t, out, "dropped frame")
	assert.Contains(t, out, "component=transport")
	assert.Contains(t, out, "bad json")
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "newschat.log")

	logger, closeFn, err := Open("info", path)
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
