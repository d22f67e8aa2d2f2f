package newschat

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Role
		wantErr bool
	}{
		{
			name:  "user",
			input: "user",
			want:  RoleUser,
		},
		{
			name:  "assistant with whitespace and case",
			input: " Assistant ",
			want:  RoleAssistant,
		},
		{
			name:  "unknown role kept verbatim",
			input: "moderator",
			want:  Role("moderator"),
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "whitespace only",
			input:   "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseRole() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseRole() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimestampUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Timestamp
		wantErr bool
	}{
		{
			name:  "iso string",
			input: `"2025-05-10T12:00:00.000Z"`,
			want:  "2025-05-10T12:00:00.000Z",
		},
		{
			name:  "epoch millis number",
			input: `1715342400000`,
			want:  "1715342400000",
		},
		{
			name:  "null",
			input: `null`,
			want:  "",
		},
		{
			name:    "boolean",
			input:   `true`,
			wantErr: true,
		},
		{
			name:    "object",
			input:   `{"a":1}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Timestamp
			err := json.Unmarshal([]byte(tt.input), &got)
			if (err != nil) != tt.wantErr {
				t.Errorf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("Unmarshal() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimestampTime(t *testing.T) {
	ref := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	minted := NewTimestamp(ref)
	if minted != "2025-05-10T12:00:00.000Z" {
		t.Fatalf("NewTimestamp() = %q", minted)
	}

	tests := []struct {
		name   string
		input  Timestamp
		want   time.Time
		wantOK bool
	}{
		{name: "minted", input: minted, want: ref, wantOK: true},
		{name: "epoch millis", input: Timestamp("1746878400000"), want: ref, wantOK: true},
		{name: "opaque", input: Timestamp("msg-42"), wantOK: false},
		{name: "empty", input: Timestamp(""), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.input.Time()
			if ok != tt.wantOK {
				t.Fatalf("Time() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("Time() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessageSameAs(t *testing.T) {
	a := Message{Role: RoleAssistant, Content: "Pong", Timestamp: "t1"}
	if !a.SameAs(a) {
		t.Error("message should be the same as itself")
	}

	b := a
	b.IsPartial = true
	if a.SameAs(b) {
		t.Error("partial and final messages must differ")
	}

	c := a
	c.Content = "Ping"
	if a.SameAs(c) {
		t.Error("messages with different content must differ")
	}
}
