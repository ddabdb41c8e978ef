package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/gwillem/roverpanel/pkg/protocol"
	"github.com/gwillem/roverpanel/pkg/robot"
	"github.com/gwillem/roverpanel/pkg/store"
)

type handlerFunc func(ctx context.Context, sess *session, in protocol.Inbound) error

// handlers maps gated events to their handler. authenticate and
// detection_status are handled before the gate.
func (s *Server) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		protocol.EventMove:            s.onMove,
		protocol.EventStop:            s.onStop,
		protocol.EventServo:           s.onServo,
		protocol.EventSpeed:           s.onSpeed,
		protocol.EventLED:             s.onLED,
		protocol.EventBuzzer:          s.onBuzzer,
		protocol.EventDetectionToggle: s.onDetectionToggle,
		protocol.EventDetectionConfig: s.onDetectionConfig,
		protocol.EventDetectionScene:  s.onDetectionScene,
	}
}

func (s *Server) handle(ctx context.Context, sess *session, in protocol.Inbound) {
	switch in.Event {
	case protocol.EventAuthenticate:
		s.onAuthenticate(ctx, sess, in)
		return
	case protocol.EventDetectionStatus:
		s.sendTo(sess, protocol.EventDetectionState, s.detectionSnapshot())
		return
	}

	h, ok := s.handlers()[in.Event]
	if !ok {
		s.log.Debug().Str("event", in.Event).Msg("Ignoring unknown event")
		return
	}

	if !s.authenticated(sess) {
		s.metrics.rejected.Add(ctx, 1, eventAttr(in.Event))
		s.sendTo(sess, protocol.EventAuthState, protocol.AuthState{Authenticated: false, Message: MsgUnlock})
		return
	}

	if err := h(ctx, sess, in); err != nil {
		s.log.Warn().Err(err).Str("event", in.Event).Str("session", sess.id).Msg("Command failed")
		return
	}
	s.metrics.handled.Add(ctx, 1, eventAttr(in.Event))
}

func (s *Server) authenticated(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sess.authed
}

// decode unmarshals an optional payload. A missing payload leaves v as is.
func decode(in protocol.Inbound, v any) error {
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(in.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", in.Event, err)
	}
	return nil
}

func (s *Server) onAuthenticate(ctx context.Context, sess *session, in protocol.Inbound) {
	var req protocol.Authenticate
	if err := decode(in, &req); err != nil {
		s.log.Debug().Err(err).Msg("Bad authenticate payload")
	}

	if !passwordMatches(req.Password, s.cfg.Password) {
		s.sendTo(sess, protocol.EventAuthResult, protocol.AuthResult{Success: false, Message: "Incorrect password."})
		s.logAccess(ctx, sess, store.EventAuthFail, "wrong password attempt")
		s.log.Warn().Str("session", sess.id).Str("ip", sess.ip).Msg("Authentication failed")
		return
	}

	s.mu.Lock()
	sess.authed = true
	s.mu.Unlock()
	s.sendTo(sess, protocol.EventAuthResult, protocol.AuthResult{Success: true})
	s.logAccess(ctx, sess, store.EventAuthSuccess, "")
	s.log.Info().Str("session", sess.id).Str("ip", sess.ip).Msg("Authenticated")
}

func (s *Server) onMove(ctx context.Context, _ *session, in protocol.Inbound) error {
	var req protocol.Move
	if err := decode(in, &req); err != nil {
		return err
	}
	dir := req.Direction
	if !dir.Valid() {
		dir = protocol.DirectionNone
	}
	return s.drive(ctx, dir)
}

func (s *Server) onStop(ctx context.Context, _ *session, _ protocol.Inbound) error {
	return s.drive(ctx, protocol.DirectionNone)
}

// drive runs the wheels in dir at the current speed. DirectionNone stops.
func (s *Server) drive(ctx context.Context, dir protocol.Direction) error {
	s.mu.Lock()
	cmds := robot.WheelCommands(dir, s.state.Speed)
	s.mu.Unlock()

	if err := s.cfg.Driver.Drive(ctx, cmds); err != nil {
		return fmt.Errorf("drive %s: %w", dir, err)
	}

	s.mu.Lock()
	s.state.setMotors(cmds)
	s.state.Direction = dir
	s.mu.Unlock()
	return nil
}

func (s *Server) onServo(ctx context.Context, _ *session, in protocol.Inbound) error {
	req := struct {
		ID    *int `json:"id"`
		Angle *int `json:"angle"`
	}{}
	if err := decode(in, &req); err != nil {
		return err
	}
	axis, angle := protocol.ServoPan, protocol.ServoHome
	if req.ID != nil {
		axis = protocol.ServoAxis(*req.ID)
	}
	if req.Angle != nil {
		angle = *req.Angle
	}
	angle = protocol.ClampInt(angle, protocol.ServoMin, protocol.ServoMax)

	name, ok := robot.ServoName(axis)
	if !ok {
		return fmt.Errorf("unknown servo id %d", axis)
	}
	if err := s.cfg.Driver.SetServo(ctx, name, angle); err != nil {
		return fmt.Errorf("set servo %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch axis {
	case protocol.ServoPan:
		s.state.WAngle = angle
	case protocol.ServoTilt:
		s.state.HAngle = angle
	}
	return nil
}

func (s *Server) onSpeed(_ context.Context, _ *session, in protocol.Inbound) error {
	req := struct {
		Speed *int `json:"speed"`
	}{}
	if err := decode(in, &req); err != nil {
		return err
	}
	speed := defaultSpeed
	if req.Speed != nil {
		speed = *req.Speed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Speed = protocol.ClampInt(speed, protocol.SpeedMin, protocol.SpeedMax)
	return nil
}

// LED actions beyond on and off.
const ledActionBrightness = "brightness"

func (s *Server) onLED(ctx context.Context, _ *session, in protocol.Inbound) error {
	req := struct {
		Action string `json:"action"`
		Color  int    `json:"color"`
		R      int    `json:"r"`
		G      int    `json:"g"`
		B      int    `json:"b"`
	}{Action: protocol.LEDActionOff}
	if err := decode(in, &req); err != nil {
		return err
	}

	switch req.Action {
	case protocol.LEDActionOn:
		color := protocol.ClampInt(req.Color, protocol.LEDMin, protocol.LEDMax)
		if err := s.cfg.Driver.SetLED(ctx, true, color); err != nil {
			return fmt.Errorf("led on: %w", err)
		}
		s.mu.Lock()
		s.state.LEDState, s.state.LEDColor = protocol.LEDActionOn, color
		s.mu.Unlock()
	case protocol.LEDActionOff:
		if err := s.cfg.Driver.SetLED(ctx, false, 0); err != nil {
			return fmt.Errorf("led off: %w", err)
		}
		s.mu.Lock()
		s.state.LEDState = protocol.LEDActionOff
		s.mu.Unlock()
	case ledActionBrightness:
		r := protocol.ClampInt(req.R, 0, 255)
		g := protocol.ClampInt(req.G, 0, 255)
		b := protocol.ClampInt(req.B, 0, 255)
		s.mu.Lock()
		s.state.LEDState = fmt.Sprintf("rgb(%d,%d,%d)", r, g, b)
		s.mu.Unlock()
	default:
		s.mu.Lock()
		s.state.LEDState = req.Action
		s.mu.Unlock()
	}
	return nil
}

func (s *Server) onBuzzer(ctx context.Context, _ *session, in protocol.Inbound) error {
	var req protocol.Buzzer
	if err := decode(in, &req); err != nil {
		return err
	}
	on := req.State != 0
	if err := s.cfg.Driver.SetBuzzer(ctx, on); err != nil {
		return fmt.Errorf("buzzer: %w", err)
	}
	s.mu.Lock()
	s.state.Buzzer = on
	s.mu.Unlock()
	return nil
}

func (s *Server) onDetectionToggle(_ context.Context, _ *session, in protocol.Inbound) error {
	var req protocol.DetectionToggle
	if err := decode(in, &req); err != nil {
		return err
	}
	s.mu.Lock()
	s.detection.Enabled = req.Enabled
	if !req.Enabled {
		s.detection.Detections = nil
	}
	s.mu.Unlock()
	s.log.Info().Bool("enabled", req.Enabled).Msg("Detection toggled")
	return nil
}

func (s *Server) onDetectionConfig(_ context.Context, sess *session, in protocol.Inbound) error {
	req := struct {
		Confidence *float64  `json:"confidence"`
		Classes    *[]string `json:"classes"`
	}{}
	if err := decode(in, &req); err != nil {
		return err
	}

	if req.Confidence != nil {
		s.mu.Lock()
		s.detection.Confidence = protocol.ClampFloat(*req.Confidence, 0.05, 1.0)
		s.mu.Unlock()
	}
	if req.Classes != nil {
		s.sendTo(sess, protocol.EventDetectionClassUpdate, s.setClasses(*req.Classes))
	}
	return nil
}

func (s *Server) onDetectionScene(ctx context.Context, sess *session, in protocol.Inbound) error {
	var req protocol.DetectionScene
	if err := decode(in, &req); err != nil {
		return err
	}
	scene := strings.TrimSpace(req.Scene)
	if scene == "" {
		s.sendTo(sess, protocol.EventDetectionClassUpdate, protocol.DetectionClassUpdate{Error: "No scene provided"})
		return nil
	}

	var classes []string
	if s.cfg.Store != nil {
		sc, err := s.cfg.Store.ContextFor(ctx, scene)
		if err != nil {
			return fmt.Errorf("scene %q: %w", scene, err)
		}
		classes = sc.Classes
	} else {
		classes = store.SuggestClasses(scene)
	}
	s.log.Info().Str("scene", scene).Strs("classes", classes).Msg("Scene context")
	s.sendTo(sess, protocol.EventDetectionClassUpdate, s.setClasses(classes))
	return nil
}

// setClasses replaces the detection classes when the model allows it.
func (s *Server) setClasses(raw []string) protocol.DetectionClassUpdate {
	var classes []string
	for _, c := range raw {
		if c = strings.TrimSpace(c); c != "" {
			classes = append(classes, c)
		}
	}

	switch {
	case len(classes) == 0:
		return protocol.DetectionClassUpdate{Error: "No valid classes provided"}
	case !s.cfg.DetectionAvailable:
		return protocol.DetectionClassUpdate{Error: "YOLO model not loaded"}
	case !IsWorldModel(s.cfg.Model):
		s.log.Warn().Str("model", s.cfg.Model).Msg("Model does not support custom classes")
		return protocol.DetectionClassUpdate{Error: fmt.Sprintf(
			"Model '%s' uses built-in classes and doesn't support dynamic class changes. "+
				"Only YOLOWorld models (e.g. yolov8s-worldv2.pt) support set_classes().", s.cfg.Model)}
	}

	s.mu.Lock()
	s.detection.Classes = classes
	s.mu.Unlock()
	s.log.Info().Strs("classes", classes).Msg("Detection classes updated")
	return protocol.DetectionClassUpdate{Success: true, Classes: slices.Clone(classes)}
}
