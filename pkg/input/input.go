// Package input turns raw keyboard, mouse and touch events into panel
// operations: held-input membership changes, press-and-hold controls and
// one-shot actions.
package input

import (
	"strings"
	"unicode/utf8"

	"github.com/gwillem/roverpanel/pkg/protocol"
)

// ID identifies a held input: a normalized key name or an on-screen pad
// button.
type ID string

// Keyboard input ids used for driving.
const (
	KeyArrowUp    ID = "ArrowUp"
	KeyArrowDown  ID = "ArrowDown"
	KeyArrowLeft  ID = "ArrowLeft"
	KeyArrowRight ID = "ArrowRight"
	KeyW          ID = "w"
	KeyA          ID = "a"
	KeyS          ID = "s"
	KeyD          ID = "d"
)

// Control identifies an on-screen button.
type Control string

// Drive pad buttons. Holding one behaves like holding a movement key.
const (
	PadForward       Control = "pad:forward"
	PadBackward      Control = "pad:backward"
	PadLeft          Control = "pad:left"
	PadRight         Control = "pad:right"
	PadForwardLeft   Control = "pad:forward_left"
	PadForwardRight  Control = "pad:forward_right"
	PadBackwardLeft  Control = "pad:backward_left"
	PadBackwardRight Control = "pad:backward_right"
	PadStop          Control = "pad:stop"
)

// Servo buttons repeat their nudge while held.
const (
	ServoPanLeft  Control = "servo:pan_left"
	ServoPanRight Control = "servo:pan_right"
	ServoTiltUp   Control = "servo:tilt_up"
	ServoTiltDown Control = "servo:tilt_down"
)

// PadControls returns the drive pad buttons in display order.
func PadControls() []Control {
	return []Control{
		PadForwardLeft, PadForward, PadForwardRight,
		PadLeft, PadStop, PadRight,
		PadBackwardLeft, PadBackward, PadBackwardRight,
	}
}

// ServoControls returns the servo hold buttons in display order.
func ServoControls() []Control {
	return []Control{ServoPanLeft, ServoTiltUp, ServoTiltDown, ServoPanRight}
}

// PadDirection returns the drive direction of a pad id.
func PadDirection(id ID) (protocol.Direction, bool) {
	c := Control(id)
	if !strings.HasPrefix(string(c), "pad:") || c == PadStop {
		return protocol.DirectionNone, false
	}
	d := protocol.Direction(strings.TrimPrefix(string(c), "pad:"))
	if !d.Valid() {
		return protocol.DirectionNone, false
	}
	return d, true
}

// EventKind classifies raw events.
type EventKind int

const (
	KeyDown EventKind = iota
	KeyUp
	PointerDown
	PointerUp
	PointerCancel
	PointerLeave
	TouchEnd
	Blur
)

func (k EventKind) String() string {
	switch k {
	case KeyDown:
		return "keydown"
	case KeyUp:
		return "keyup"
	case PointerDown:
		return "pointerdown"
	case PointerUp:
		return "pointerup"
	case PointerCancel:
		return "pointercancel"
	case PointerLeave:
		return "pointerleave"
	case TouchEnd:
		return "touchend"
	case Blur:
		return "blur"
	default:
		return "unknown"
	}
}

// Source is where an event originated.
type Source int

const (
	SourceWindow Source = iota
	SourceTextField
)

// Event is a raw input event from the UI toolkit.
type Event struct {
	Kind    EventKind
	Key     string  // keyboard events
	Control Control // pointer events
	Source  Source
}

// NormalizeKey lowercases single-character keys and leaves named keys such
// as ArrowUp untouched.
func NormalizeKey(key string) ID {
	if utf8.RuneCountInString(key) == 1 {
		return ID(strings.ToLower(key))
	}
	return ID(key)
}

// IsMovementKey reports whether id is one of the drive keys.
func IsMovementKey(id ID) bool {
	switch id {
	case KeyArrowUp, KeyArrowDown, KeyArrowLeft, KeyArrowRight, KeyW, KeyA, KeyS, KeyD:
		return true
	}
	return false
}
