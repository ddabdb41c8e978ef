// Package logging builds the zerolog loggers used by the panel and the
// simulated controller.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel maps a level name to a zerolog level. Unknown names fall back
// to info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "DISABLED", "OFF":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// New returns a console-formatted logger writing to w at the given level.
func New(level string, w io.Writer) zerolog.Logger {
	return NewWithOptions(level, w, false)
}

// NewWithOptions is New with control over terminal colors.
func NewWithOptions(level string, w io.Writer, noColor bool) zerolog.Logger {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	}
	return zerolog.New(cw).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// NewJSON returns a logger emitting JSON lines, used by the serve command.
func NewJSON(level string, w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Fields converts alternating key/value pairs to a zerolog field map. Pairs
// with a non-string key are skipped, as is a trailing key without a value.
func Fields(keysAndValues ...any) map[string]any {
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		switch key := keysAndValues[i].(type) {
		case string:
			fields[key] = keysAndValues[i+1]
		case fmt.Stringer:
			fields[key.String()] = keysAndValues[i+1]
		}
	}
	return fields
}
