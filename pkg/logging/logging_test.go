package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewJSON_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON("warn", &buf)

	log.Info().Msg("hidden")
	log.Warn().Str("event", "move").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "move", entry["event"])
	assert.Contains(t, entry, "time")
}

func TestNew_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions("info", &buf, true)

	log.Info().Str("direction", "forward").Msg("Moving")

	out := buf.String()
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "Moving")
	assert.Contains(t, out, "direction=forward")
}

func TestFields(t *testing.T) {
	f := Fields("a", 1, 2, "skipped", "b", true, "dangling")
	assert.Equal(t, map[string]any{"a": 1, "b": true}, f)
}

func TestChannelWriter(t *testing.T) {
	w := NewChannelWriter(2)
	log := NewWithOptions("debug", w, true)

	log.Info().Msg("one")
	log.Info().Msg("two")
	log.Info().Msg("three")

	assert.Equal(t, uint64(1), w.Dropped())
	first := <-w.Lines()
	assert.Contains(t, first, "one")
	assert.NotContains(t, first, "\n")
	assert.Contains(t, <-w.Lines(), "two")

	select {
	case l := <-w.Lines():
		t.Fatalf("unexpected line %q", l)
	default:
	}
}

func TestChannelWriter_DefaultSize(t *testing.T) {
	w := NewChannelWriter(0)
	assert.Equal(t, 10, cap(w.ch))
}
