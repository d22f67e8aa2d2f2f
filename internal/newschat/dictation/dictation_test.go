package dictation

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommandSource(t *testing.T) {
	tests := []struct {
		line    string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"whisper --lang en", "whisper --lang en", false},
		{`rec "my file.wav"`, `rec 'my file.wav'`, false},
		{`rec "unterminated`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			src, err := NewCommandSource(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, src.String())
			assert.Equal(t, tt.want != "", src.Configured())
		})
	}
}

func TestDictate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	src, err := NewCommandSource(`sh -c "printf '  what is\n new today  '"`)
	require.NoError(t, err)

	text, err := src.Dictate(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "what is new today", text)
}

func TestDictate_Failures(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	empty, err := NewCommandSource("")
	require.NoError(t, err)
	_, err = empty.Dictate(t.Context())
	assert.ErrorIs(t, err, ErrNotConfigured)

	failing, err := NewCommandSource(`sh -c "echo no microphone >&2; exit 3"`)
	require.NoError(t, err)
	_, err = failing.Dictate(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no microphone")

	silent, err := NewCommandSource("true")
	require.NoError(t, err)
	_, err = silent.Dictate(t.Context())
	assert.Error(t, err)
}
