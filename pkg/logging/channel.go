package logging

import (
	"strings"
	"sync/atomic"
)

// ChannelWriter is an io.Writer that forwards each log line to a buffered
// channel, for display in a terminal UI. Lines are dropped when the reader
// falls behind; Write never blocks.
type ChannelWriter struct {
	ch      chan string
	dropped atomic.Uint64
}

// NewChannelWriter creates a writer buffering up to size lines.
func NewChannelWriter(size int) *ChannelWriter {
	if size <= 0 {
		size = 10
	}
	return &ChannelWriter{ch: make(chan string, size)}
}

// Write sends p, minus its trailing newline, as one line.
func (w *ChannelWriter) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	select {
	case w.ch <- line:
	default:
		// Drop if channel full
		w.dropped.Add(1)
	}
	return len(p), nil
}

// Lines returns the channel receiving log lines.
func (w *ChannelWriter) Lines() <-chan string {
	return w.ch
}

// Dropped returns how many lines were discarded.
func (w *ChannelWriter) Dropped() uint64 {
	return w.dropped.Load()
}
