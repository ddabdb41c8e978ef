package teleop

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gwillem/roverpanel/pkg/protocol"
)

type sentCommand struct {
	Event   string
	Payload any
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentCommand
}

func (r *recordingSender) Emit(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentCommand{Event: event, Payload: payload})
}

func (r *recordingSender) snapshot() []sentCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sentCommand, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *recordingSender) events() []string {
	var out []string
	for _, c := range r.snapshot() {
		out = append(out, c.Event)
	}
	return out
}

func (r *recordingSender) count(event string) int {
	n := 0
	for _, c := range r.snapshot() {
		if c.Event == event {
			n++
		}
	}
	return n
}

// drives returns the move/stop commands as directions, stop as DirectionNone.
func (r *recordingSender) drives() []protocol.Direction {
	var out []protocol.Direction
	for _, c := range r.snapshot() {
		switch c.Event {
		case protocol.EventMove:
			out = append(out, c.Payload.(protocol.Move).Direction)
		case protocol.EventStop:
			out = append(out, protocol.DirectionNone)
		}
	}
	return out
}

func (r *recordingSender) servos() []protocol.Servo {
	var out []protocol.Servo
	for _, c := range r.snapshot() {
		if c.Event == protocol.EventServo {
			out = append(out, c.Payload.(protocol.Servo))
		}
	}
	return out
}

func (r *recordingSender) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// fakeClock fires timers synchronously from Advance, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()

		next.f()
	}
}

// pending returns the number of timers that have neither fired nor stopped.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
