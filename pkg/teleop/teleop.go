// Package teleop ties input handling, the auth gate, command dispatch,
// press-and-hold repeats and snapshot reconciliation into one panel session.
package teleop

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gwillem/roverpanel/pkg/auth"
	"github.com/gwillem/roverpanel/pkg/input"
	"github.com/gwillem/roverpanel/pkg/intent"
	"github.com/gwillem/roverpanel/pkg/protocol"
	"github.com/gwillem/roverpanel/pkg/reconcile"
)

// View is a snapshot of everything the UI renders.
type View struct {
	reconcile.Display

	Phase   auth.Phase
	AuthErr string
	Intent  protocol.Direction
	Held    []input.ID
	Holds   []input.Control
	Speed   int
	Pan     int
	Tilt    int
	Buzzer  bool

	// ControllerLocked is set when the controller reports this connection
	// as unauthenticated while the panel gate is open, typically after a
	// reconnect. Unlock re-sends the password in that state.
	ControllerLocked bool
}

// Detection confidence bounds the controller accepts.
const (
	DefaultConfidence = 0.35
	MinConfidence     = 0.05
)

// Config holds configuration for a session.
type Config struct {
	RepeatInterval time.Duration
	ServoStep      int
	SpeedStep      int
	Speed          int // starting speed until the first status arrives
	Clock          Clock
	Logger         zerolog.Logger
}

// Session is the state of one panel connected to one controller. All
// handlers and repeat callbacks run under a single mutex, so the session
// behaves like a single-threaded event loop.
type Session struct {
	mu sync.Mutex

	norm   *input.Normalizer
	active input.ActiveSet
	gate   auth.Gate
	disp   *Dispatcher
	rep    *Repeater
	rec    *reconcile.Reconciler
	out    Sender
	log    zerolog.Logger
	buzzer bool

	controllerLocked bool
	reauthErr        string

	viewCh chan View
}

// NewSession creates a session sending commands through out.
func NewSession(out Sender, cfg Config) (*Session, error) {
	if cfg.ServoStep <= 0 {
		cfg.ServoStep = 2
	}
	if cfg.SpeedStep <= 0 {
		cfg.SpeedStep = 10
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 40
	}

	s := &Session{
		norm:   input.NewNormalizer(cfg.ServoStep, cfg.SpeedStep),
		rec:    reconcile.New(),
		out:    out,
		log:    cfg.Logger,
		viewCh: make(chan View, 1),
	}

	disp, err := NewDispatcher(out, &s.gate, cfg.Speed, cfg.Logger)
	if err != nil {
		return nil, err
	}
	s.disp = disp
	s.rep = NewRepeater(&s.mu, cfg.Clock, cfg.RepeatInterval)
	return s, nil
}

// Views returns a channel that receives view updates. Only the latest view
// is kept when the reader falls behind.
func (s *Session) Views() <-chan View {
	return s.viewCh
}

// View returns the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	return View{
		Display: s.rec.Snapshot(),
		Phase:   s.gate.Phase(),
		AuthErr: s.authErr(),
		Intent:  s.disp.LastSent(),
		Held:    s.active.IDs(),
		Holds:   s.rep.Controls(),
		Speed:   s.disp.Speed(),
		Pan:     s.disp.Angle(protocol.ServoPan),
		Tilt:    s.disp.Angle(protocol.ServoTilt),
		Buzzer:  s.buzzer,

		ControllerLocked: s.controllerLocked,
	}
}

func (s *Session) authErr() string {
	if err := s.gate.Err(); err != "" {
		return err
	}
	return s.reauthErr
}

func (s *Session) publish() {
	v := s.viewLocked()
	select {
	case s.viewCh <- v:
	default:
		// Drop old view if channel full, replace with new
		select {
		case <-s.viewCh:
		default:
		}
		s.viewCh <- v
	}
}

// HandleInput applies a raw UI event.
func (s *Session) HandleInput(ev input.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.norm.Normalize(ev)
	switch res.Op {
	case input.OpIgnore:
		return
	case input.OpPress:
		if s.active.Add(res.Input) {
			s.syncIntent()
		}
	case input.OpRelease:
		if s.active.Remove(res.Input) {
			s.syncIntent()
		}
	case input.OpClear:
		s.releaseAll()
	case input.OpAction:
		s.do(res.Action)
	case input.OpHoldStart:
		a := res.Action
		s.rep.Start(a.Axis, res.Control, func() {
			s.disp.NudgeServo(a.Axis, a.Delta)
			s.publish()
		})
	case input.OpHoldRelease:
		if a, ok := s.norm.HoldAction(res.Control); ok {
			s.rep.Release(a.Axis, res.Control)
		}
	}
	s.publish()
}

func (s *Session) syncIntent() {
	s.disp.SetIntent(intent.Resolve(s.active.IDs()))
}

// releaseAll forgets every held input and stops every repeat. A moving
// robot gets a stop through the normal transition rule.
func (s *Session) releaseAll() {
	s.active.Clear()
	s.rep.CancelAll()
	s.syncIntent()
}

func (s *Session) do(a input.Action) {
	switch a.Kind {
	case input.ActionStop:
		s.emergencyStop()
	case input.ActionNudge:
		s.disp.NudgeServo(a.Axis, a.Delta)
	case input.ActionSpeedPreset:
		s.disp.SetSpeed(a.Value)
	case input.ActionSpeedStep:
		s.disp.StepSpeed(a.Value)
	case input.ActionBuzzerToggle:
		if s.disp.ToggleBuzzer(!s.buzzer) {
			s.buzzer = !s.buzzer
		}
	case input.ActionDetectionToggle:
		on := !s.rec.DetectionEnabled()
		if s.disp.ToggleDetection(on) {
			s.rec.SetDetectionEnabled(on)
		}
	case input.ActionCenterServos:
		s.disp.SetServo(protocol.ServoPan, protocol.ServoHome)
		s.disp.SetServo(protocol.ServoTilt, protocol.ServoHome)
	case input.ActionLEDOff:
		s.disp.LEDOff()
	case input.ActionLEDCycle:
		s.disp.CycleLED()
	case input.ActionConfidenceStep:
		s.stepConfidence(a.Value)
	case input.ActionDetectionRefresh:
		s.requestDetectionStatus()
	}
}

// stepConfidence moves the detection threshold by hundredths from the
// last value the controller reported.
func (s *Session) stepConfidence(hundredths int) {
	current := DefaultConfidence
	if d := s.rec.Snapshot().Detection; d != nil {
		current = d.Confidence
	}
	next := math.Round(current*100+float64(hundredths)) / 100
	next = protocol.ClampFloat(next, MinConfidence, 1)
	s.disp.SetDetectionConfig(protocol.DetectionConfig{Confidence: &next})
}

func (s *Session) requestDetectionStatus() {
	s.out.Emit(protocol.EventDetectionStatus, nil)
}

func (s *Session) emergencyStop() {
	s.active.Clear()
	s.rep.CancelAll()
	s.disp.EmergencyStop()
	s.log.Info().Msg("Emergency stop")
}

// EmergencyStop clears held inputs, cancels repeats and always sends stop.
func (s *Session) EmergencyStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergencyStop()
	s.publish()
}

// Unlock submits a password challenge. Once the gate is open it re-sends
// the password without changing the phase, so a controller connection that
// started locked can be authenticated again.
func (s *Session) Unlock(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate.Unlocked() {
		if password != "" {
			s.reauthErr = ""
			s.out.Emit(protocol.EventAuthenticate, protocol.Authenticate{Password: password})
			s.log.Info().Msg("Re-authenticating")
		}
		s.publish()
		return
	}
	if s.gate.Submit(password) {
		s.out.Emit(protocol.EventAuthenticate, protocol.Authenticate{Password: password})
		s.log.Info().Msg("Verifying password")
	}
	s.publish()
}

// SetDetectionConfig sends a partial detection config update.
func (s *Session) SetDetectionConfig(cfg protocol.DetectionConfig) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disp.SetDetectionConfig(cfg)
}

// ApplyScene asks the controller to switch detection classes to a scene.
func (s *Session) ApplyScene(scene string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disp.ApplyScene(scene)
}

// RequestDetectionStatus asks the controller to resend detection state.
// The controller answers this even for locked sessions.
func (s *Session) RequestDetectionStatus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestDetectionStatus()
}

// HandleMessage applies an inbound controller message.
func (s *Session) HandleMessage(in protocol.Inbound) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.apply(in); err != nil {
		s.log.Warn().Err(err).Str("event", in.Event).Msg("Ignoring malformed message")
		return
	}
	s.publish()
}

func (s *Session) apply(in protocol.Inbound) error {
	switch in.Event {
	case protocol.EventConnect:
		s.rec.SetConnected(true)
		s.log.Info().Msg("Connected")

	case protocol.EventDisconnect:
		s.rec.SetConnected(false)
		s.releaseAll()
		s.log.Warn().Msg("Disconnected")

	case protocol.EventAuthResult:
		var res protocol.AuthResult
		if err := in.Decode(&res); err != nil {
			return err
		}
		if s.gate.Unlocked() {
			s.controllerLocked = !res.Success
			s.reauthErr = ""
			if !res.Success {
				s.reauthErr = res.Message
				if s.reauthErr == "" {
					s.reauthErr = auth.MsgRejected
				}
				s.log.Warn().Str("reason", s.reauthErr).Msg("Re-authentication rejected")
			}
			break
		}
		s.gate.HandleResult(res.Success, res.Message)
		if s.gate.Unlocked() {
			s.controllerLocked = false
			s.log.Info().Msg("Unlocked")
		} else {
			s.log.Warn().Str("reason", s.gate.Err()).Msg("Unlock rejected")
		}

	case protocol.EventAuthState:
		var st protocol.AuthState
		if err := in.Decode(&st); err != nil {
			return err
		}
		wasUnlocked := s.gate.Unlocked()
		s.gate.HandleState(st.Authenticated)
		switch {
		case st.Authenticated:
			s.controllerLocked = false
			if !wasUnlocked {
				s.log.Info().Msg("Session already authenticated")
			}
		case wasUnlocked && !s.controllerLocked:
			s.controllerLocked = true
			s.log.Warn().Msg("Controller session is locked")
		}

	case protocol.EventStatus:
		var st protocol.Status
		if err := in.Decode(&st); err != nil {
			return err
		}
		s.rec.ApplyStatus(st)
		s.buzzer = st.Buzzer
		s.disp.AdoptSpeed(st.Speed)
		if !s.axisHeld(protocol.ServoPan) {
			s.disp.AdoptAngle(protocol.ServoPan, st.WAngle)
		}
		if !s.axisHeld(protocol.ServoTilt) {
			s.disp.AdoptAngle(protocol.ServoTilt, st.HAngle)
		}

	case protocol.EventSensors:
		var st protocol.Sensors
		if err := in.Decode(&st); err != nil {
			return err
		}
		s.rec.ApplySensors(st)

	case protocol.EventDetectionState:
		var st protocol.DetectionState
		if err := in.Decode(&st); err != nil {
			return err
		}
		s.rec.ApplyDetectionState(st)

	case protocol.EventDetectionResults:
		var results []protocol.Detection
		if err := in.Decode(&results); err != nil {
			return err
		}
		s.rec.ApplyResults(results)

	case protocol.EventDetectionClassUpdate:
		var u protocol.DetectionClassUpdate
		if err := in.Decode(&u); err != nil {
			return err
		}
		s.rec.ApplyClassUpdate(u)
		if !u.Success {
			s.log.Warn().Str("error", u.Error).Msg("Detection classes not updated")
		}

	default:
		s.log.Debug().Str("event", in.Event).Msg("Unhandled event")
	}
	return nil
}

// axisHeld reports whether a servo button for axis is being held.
func (s *Session) axisHeld(axis protocol.ServoAxis) bool {
	return s.rep.Active(axis)
}

// Close cancels every repeat. It does not send anything.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rep.CancelAll()
}
