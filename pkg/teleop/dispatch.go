package teleop

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gwillem/roverpanel/pkg/auth"
	"github.com/gwillem/roverpanel/pkg/protocol"
)

// Sender delivers a command to the controller. It must not block; delivery
// is fire-and-forget.
type Sender interface {
	Emit(event string, payload any)
}

// Dispatcher turns intents and actions into outbound commands. Every
// command passes the auth gate; while locked, calls return false and send
// nothing. Drive commands are only sent when the intent changes.
//
// Dispatcher is not safe for concurrent use; Session serializes access.
type Dispatcher struct {
	out     Sender
	gate    *auth.Gate
	log     zerolog.Logger
	metrics *metrics

	lastSent protocol.Direction
	angles   map[protocol.ServoAxis]int
	speed    int
	ledColor int
}

// NewDispatcher creates a dispatcher with servos centered and the given
// starting speed.
func NewDispatcher(out Sender, gate *auth.Gate, speed int, log zerolog.Logger) (*Dispatcher, error) {
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		out:     out,
		gate:    gate,
		log:     log,
		metrics: m,
		angles: map[protocol.ServoAxis]int{
			protocol.ServoPan:  protocol.ServoHome,
			protocol.ServoTilt: protocol.ServoHome,
		},
		speed: protocol.ClampInt(speed, protocol.SpeedMin, protocol.SpeedMax),
	}, nil
}

func (d *Dispatcher) emit(event string, payload any) bool {
	attrs := metric.WithAttributes(attribute.String("command", event))
	if !d.gate.Unlocked() {
		d.metrics.gated.Add(context.Background(), 1, attrs)
		d.log.Debug().Str("command", event).Msg("dropped while locked")
		return false
	}
	d.out.Emit(event, payload)
	d.metrics.emitted.Add(context.Background(), 1, attrs)
	d.log.Debug().Str("command", event).Interface("payload", payload).Msg("sent")
	return true
}

func (d *Dispatcher) emitDrive(dir protocol.Direction) bool {
	if dir == protocol.DirectionNone {
		return d.emit(protocol.EventStop, protocol.Stop{})
	}
	return d.emit(protocol.EventMove, protocol.Move{Direction: dir})
}

// SetIntent sends a move or stop when dir differs from the last sent
// intent.
func (d *Dispatcher) SetIntent(dir protocol.Direction) bool {
	if dir == d.lastSent {
		d.metrics.suppressed.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("command", protocol.EventMove)))
		return false
	}
	if !d.emitDrive(dir) {
		return false
	}
	d.lastSent = dir
	return true
}

// EmergencyStop always sends stop, even when already stopped.
func (d *Dispatcher) EmergencyStop() bool {
	ok := d.emit(protocol.EventStop, protocol.Stop{})
	d.lastSent = protocol.DirectionNone
	return ok
}

// LastSent returns the last drive intent actually sent.
func (d *Dispatcher) LastSent() protocol.Direction {
	return d.lastSent
}

// NudgeServo moves axis by delta degrees from its current angle, clamped to
// the servo range, and sends the resulting absolute angle.
func (d *Dispatcher) NudgeServo(axis protocol.ServoAxis, delta int) bool {
	return d.SetServo(axis, d.angles[axis]+delta)
}

// SetServo sends an absolute servo angle.
func (d *Dispatcher) SetServo(axis protocol.ServoAxis, angle int) bool {
	angle = protocol.ClampInt(angle, protocol.ServoMin, protocol.ServoMax)
	if !d.emit(protocol.EventServo, protocol.Servo{ID: axis, Angle: angle}) {
		return false
	}
	d.angles[axis] = angle
	return true
}

// Angle returns the last angle sent (or adopted) for axis.
func (d *Dispatcher) Angle(axis protocol.ServoAxis) int {
	return d.angles[axis]
}

// AdoptAngle takes the controller's reported angle as the nudge base.
func (d *Dispatcher) AdoptAngle(axis protocol.ServoAxis, angle int) {
	d.angles[axis] = protocol.ClampInt(angle, protocol.ServoMin, protocol.ServoMax)
}

// SetSpeed sends an absolute speed clamped to [0,255].
func (d *Dispatcher) SetSpeed(v int) bool {
	v = protocol.ClampInt(v, protocol.SpeedMin, protocol.SpeedMax)
	if !d.emit(protocol.EventSpeed, protocol.Speed{Speed: v}) {
		return false
	}
	d.speed = v
	return true
}

// StepSpeed changes the speed relative to the current value.
func (d *Dispatcher) StepSpeed(delta int) bool {
	return d.SetSpeed(d.speed + delta)
}

func (d *Dispatcher) Speed() int {
	return d.speed
}

// AdoptSpeed takes the controller's reported speed as the step base.
func (d *Dispatcher) AdoptSpeed(v int) {
	d.speed = protocol.ClampInt(v, protocol.SpeedMin, protocol.SpeedMax)
}

// SetLED turns the LEDs on with a palette color in [0,6].
func (d *Dispatcher) SetLED(color int) bool {
	color = protocol.ClampInt(color, protocol.LEDMin, protocol.LEDMax)
	if !d.emit(protocol.EventLED, protocol.LED{Action: protocol.LEDActionOn, Color: &color}) {
		return false
	}
	d.ledColor = color
	return true
}

// CycleLED advances to the next palette color.
func (d *Dispatcher) CycleLED() bool {
	return d.SetLED((d.ledColor + 1) % (protocol.LEDMax + 1))
}

func (d *Dispatcher) LEDOff() bool {
	return d.emit(protocol.EventLED, protocol.LED{Action: protocol.LEDActionOff})
}

func (d *Dispatcher) ToggleBuzzer(on bool) bool {
	state := 0
	if on {
		state = 1
	}
	return d.emit(protocol.EventBuzzer, protocol.Buzzer{State: state})
}

func (d *Dispatcher) ToggleDetection(on bool) bool {
	return d.emit(protocol.EventDetectionToggle, protocol.DetectionToggle{Enabled: on})
}

// SetDetectionConfig sends a partial detection config. Confidence is
// clamped to [0,1]; blank class names are dropped. An update with nothing
// left to send is not emitted.
func (d *Dispatcher) SetDetectionConfig(cfg protocol.DetectionConfig) bool {
	var out protocol.DetectionConfig
	if cfg.Confidence != nil {
		c := protocol.ClampFloat(*cfg.Confidence, 0, 1)
		out.Confidence = &c
	}
	for _, class := range cfg.Classes {
		if class = strings.TrimSpace(class); class != "" {
			out.Classes = append(out.Classes, class)
		}
	}
	if out.Confidence == nil && len(out.Classes) == 0 {
		return false
	}
	return d.emit(protocol.EventDetectionConfig, out)
}

// ApplyScene asks the controller to load the detection classes for a scene.
func (d *Dispatcher) ApplyScene(scene string) bool {
	scene = strings.TrimSpace(scene)
	if scene == "" {
		return false
	}
	return d.emit(protocol.EventDetectionScene, protocol.DetectionScene{Scene: scene})
}
