package input

import "github.com/gwillem/roverpanel/pkg/protocol"

// Op is what a normalized event asks the session to do.
type Op int

const (
	OpIgnore Op = iota
	OpPress
	OpRelease
	OpClear
	OpAction
	OpHoldStart
	OpHoldRelease
)

func (o Op) String() string {
	switch o {
	case OpIgnore:
		return "ignore"
	case OpPress:
		return "press"
	case OpRelease:
		return "release"
	case OpClear:
		return "clear"
	case OpAction:
		return "action"
	case OpHoldStart:
		return "hold-start"
	case OpHoldRelease:
		return "hold-release"
	default:
		return "unknown"
	}
}

// ActionKind enumerates one-shot actions.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionStop
	ActionNudge
	ActionSpeedPreset
	ActionSpeedStep
	ActionBuzzerToggle
	ActionDetectionToggle
	ActionCenterServos
	ActionLEDOff
	ActionLEDCycle
	ActionConfidenceStep
	ActionDetectionRefresh
)

// ConfidenceStep is the detection confidence change per key press, in
// hundredths.
const ConfidenceStep = 5

// Action is a discrete command. Axis and Delta apply to nudges, Value to
// speed presets and steps, and to confidence steps in hundredths.
type Action struct {
	Kind  ActionKind
	Axis  protocol.ServoAxis
	Delta int
	Value int
}

// Result is the outcome of normalizing one event.
type Result struct {
	Op      Op
	Input   ID
	Control Control
	Action  Action
}

var ignore = Result{Op: OpIgnore}

// Normalizer maps raw events to results. Step sizes come from config.
type Normalizer struct {
	ServoStep    int
	SpeedStep    int
	SpeedPresets map[ID]int
}

// DefaultSpeedPresets maps number keys to absolute speeds.
func DefaultSpeedPresets() map[ID]int {
	return map[ID]int{
		"1": 40,
		"2": 80,
		"3": 120,
		"4": 180,
		"5": 255,
	}
}

// NewNormalizer returns a normalizer with the default speed presets.
func NewNormalizer(servoStep, speedStep int) *Normalizer {
	return &Normalizer{
		ServoStep:    servoStep,
		SpeedStep:    speedStep,
		SpeedPresets: DefaultSpeedPresets(),
	}
}

// Normalize classifies ev. Events from text fields are always ignored.
func (n *Normalizer) Normalize(ev Event) Result {
	if ev.Source == SourceTextField {
		return ignore
	}

	switch ev.Kind {
	case Blur:
		return Result{Op: OpClear}
	case KeyDown:
		return n.keyDown(NormalizeKey(ev.Key))
	case KeyUp:
		id := NormalizeKey(ev.Key)
		if IsMovementKey(id) {
			return Result{Op: OpRelease, Input: id}
		}
		return ignore
	case PointerDown:
		return n.pointerDown(ev.Control)
	case PointerUp, PointerCancel, PointerLeave, TouchEnd:
		return n.pointerRelease(ev.Control)
	}
	return ignore
}

func (n *Normalizer) keyDown(id ID) Result {
	if IsMovementKey(id) {
		return Result{Op: OpPress, Input: id}
	}

	switch id {
	case " ", "x", "Escape":
		return action(Action{Kind: ActionStop})
	case "j":
		return action(n.nudge(protocol.ServoPan, 1))
	case "l":
		return action(n.nudge(protocol.ServoPan, -1))
	case "i":
		return action(n.nudge(protocol.ServoTilt, 1))
	case "k":
		return action(n.nudge(protocol.ServoTilt, -1))
	case "-":
		return action(Action{Kind: ActionSpeedStep, Value: -n.SpeedStep})
	case "=", "+":
		return action(Action{Kind: ActionSpeedStep, Value: n.SpeedStep})
	case "b":
		return action(Action{Kind: ActionBuzzerToggle})
	case "v":
		return action(Action{Kind: ActionDetectionToggle})
	case "h":
		return action(Action{Kind: ActionCenterServos})
	case "o":
		return action(Action{Kind: ActionLEDOff})
	case "c":
		return action(Action{Kind: ActionLEDCycle})
	case "[":
		return action(Action{Kind: ActionConfidenceStep, Value: -ConfidenceStep})
	case "]":
		return action(Action{Kind: ActionConfidenceStep, Value: ConfidenceStep})
	case "r":
		return action(Action{Kind: ActionDetectionRefresh})
	}

	if speed, ok := n.SpeedPresets[id]; ok {
		return action(Action{Kind: ActionSpeedPreset, Value: speed})
	}
	return ignore
}

func (n *Normalizer) pointerDown(c Control) Result {
	if c == PadStop {
		return action(Action{Kind: ActionStop})
	}
	if _, ok := PadDirection(ID(c)); ok {
		return Result{Op: OpPress, Input: ID(c)}
	}
	if a, ok := n.HoldAction(c); ok {
		return Result{Op: OpHoldStart, Control: c, Action: a}
	}
	return ignore
}

// pointerRelease is the single release path shared by pointerup,
// pointercancel, pointerleave and touchend.
func (n *Normalizer) pointerRelease(c Control) Result {
	if _, ok := PadDirection(ID(c)); ok {
		return Result{Op: OpRelease, Input: ID(c)}
	}
	if _, ok := n.HoldAction(c); ok {
		return Result{Op: OpHoldRelease, Control: c}
	}
	return ignore
}

// HoldAction returns the nudge repeated while a servo control is held.
func (n *Normalizer) HoldAction(c Control) (Action, bool) {
	switch c {
	case ServoPanLeft:
		return n.nudge(protocol.ServoPan, 1), true
	case ServoPanRight:
		return n.nudge(protocol.ServoPan, -1), true
	case ServoTiltUp:
		return n.nudge(protocol.ServoTilt, 1), true
	case ServoTiltDown:
		return n.nudge(protocol.ServoTilt, -1), true
	}
	return Action{}, false
}

func (n *Normalizer) nudge(axis protocol.ServoAxis, sign int) Action {
	return Action{Kind: ActionNudge, Axis: axis, Delta: sign * n.ServoStep}
}

func action(a Action) Result {
	return Result{Op: OpAction, Action: a}
}
