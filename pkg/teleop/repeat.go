package teleop

import (
	"slices"
	"sync"
	"time"

	"github.com/gwillem/roverpanel/pkg/input"
	"github.com/gwillem/roverpanel/pkg/protocol"
)

// DefaultRepeatInterval is the press-and-hold repeat period.
const DefaultRepeatInterval = 120 * time.Millisecond

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. The system clock uses time.AfterFunc.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns the real-time clock.
func SystemClock() Clock {
	return systemClock{}
}

type repeat struct {
	gen   uint64
	owner input.Control
	timer Timer
	fn    func()
}

// Repeater runs at most one repeating callback per servo axis. Starting a
// second hold on an axis replaces the first.
//
// Start, Cancel and CancelAll must be called with mu held (or from a single
// goroutine when mu is private); timer callbacks take mu themselves.
type Repeater struct {
	mu       sync.Locker
	clock    Clock
	interval time.Duration

	gen     uint64
	repeats map[protocol.ServoAxis]*repeat
}

// NewRepeater creates a repeater whose callbacks run under mu.
func NewRepeater(mu sync.Locker, clock Clock, interval time.Duration) *Repeater {
	if clock == nil {
		clock = SystemClock()
	}
	if interval <= 0 {
		interval = DefaultRepeatInterval
	}
	return &Repeater{
		mu:       mu,
		clock:    clock,
		interval: interval,
		repeats:  make(map[protocol.ServoAxis]*repeat),
	}
}

// Start cancels any repeat running on axis, records owner as the control
// holding it, calls fn once, then calls it again every interval until
// cancelled.
func (r *Repeater) Start(axis protocol.ServoAxis, owner input.Control, fn func()) {
	r.Cancel(axis)

	r.gen++
	rep := &repeat{gen: r.gen, owner: owner, fn: fn}
	r.repeats[axis] = rep

	fn()
	// fn may have cancelled us
	if r.repeats[axis] == rep {
		rep.timer = r.schedule(axis, rep.gen)
	}
}

func (r *Repeater) schedule(axis protocol.ServoAxis, gen uint64) Timer {
	return r.clock.AfterFunc(r.interval, func() { r.tick(axis, gen) })
}

func (r *Repeater) tick(axis protocol.ServoAxis, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep, ok := r.repeats[axis]
	if !ok || rep.gen != gen {
		// cancelled after the timer fired
		return
	}
	rep.fn()
	if r.repeats[axis] == rep {
		rep.timer = r.schedule(axis, gen)
	}
}

// Cancel stops the repeat on axis. A callback already in flight is
// discarded.
func (r *Repeater) Cancel(axis protocol.ServoAxis) bool {
	rep, ok := r.repeats[axis]
	if !ok {
		return false
	}
	if rep.timer != nil {
		rep.timer.Stop()
	}
	delete(r.repeats, axis)
	return true
}

// Release cancels the repeat on axis only if owner started it, so letting
// go of a button that was superseded leaves the newer hold running.
func (r *Repeater) Release(axis protocol.ServoAxis, owner input.Control) bool {
	if rep, ok := r.repeats[axis]; !ok || rep.owner != owner {
		return false
	}
	return r.Cancel(axis)
}

// CancelAll stops every repeat.
func (r *Repeater) CancelAll() {
	for axis := range r.repeats {
		r.Cancel(axis)
	}
}

func (r *Repeater) Active(axis protocol.ServoAxis) bool {
	_, ok := r.repeats[axis]
	return ok
}

// Count returns the number of running repeats.
func (r *Repeater) Count() int {
	return len(r.repeats)
}

// Controls returns the controls owning a running repeat, sorted.
func (r *Repeater) Controls() []input.Control {
	out := make([]input.Control, 0, len(r.repeats))
	for _, rep := range r.repeats {
		out = append(out, rep.owner)
	}
	slices.Sort(out)
	return out
}
