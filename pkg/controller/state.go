package controller

import (
	"slices"

	"github.com/gwillem/roverpanel/pkg/protocol"
	"github.com/gwillem/roverpanel/pkg/robot"
)

const (
	defaultSpeed = 40
	rangeMinMM   = 80
	rangeMaxMM   = 2000
	rangeStartMM = 1200
	rangeStepMM  = 35
	obstacleMM   = 150
)

type robotState struct {
	Speed     int
	WAngle    int
	HAngle    int
	Motors    map[robot.MotorName]robot.MotorCommand
	LEDState  string
	LEDColor  int
	Buzzer    bool
	Direction protocol.Direction

	// simulated range finder reading
	RangeMM int
}

func newRobotState() robotState {
	st := robotState{
		Speed:    defaultSpeed,
		WAngle:   protocol.ServoHome,
		HAngle:   protocol.ServoHome,
		Motors:   make(map[robot.MotorName]robot.MotorCommand),
		LEDState: protocol.LEDActionOff,
		RangeMM:  rangeStartMM,
	}
	st.setMotors(robot.WheelCommands(protocol.DirectionNone, 0))
	return st
}

func (st *robotState) setMotors(cmds []robot.MotorCommand) {
	for _, c := range cmds {
		st.Motors[c.Motor] = c
	}
}

type detectionState struct {
	Enabled    bool
	Confidence float64
	Classes    []string
	Detections []protocol.Detection
}

// status snapshots the robot state.
func (s *Server) status() protocol.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	motors := make(map[string]protocol.MotorState, len(s.state.Motors))
	for name, m := range s.state.Motors {
		motors[string(name)] = protocol.MotorState{ID: m.ID, Dir: m.Dir, Speed: m.Speed}
	}
	return protocol.Status{
		Speed:     s.state.Speed,
		WAngle:    s.state.WAngle,
		HAngle:    s.state.HAngle,
		Motors:    motors,
		LEDState:  s.state.LEDState,
		LEDColor:  s.state.LEDColor,
		Buzzer:    s.state.Buzzer,
		Direction: robot.DirectionLabel(s.state.Direction),
	}
}

func (s *Server) detectionSnapshot() protocol.DetectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return protocol.DetectionState{
		Enabled:       s.detection.Enabled,
		Confidence:    s.detection.Confidence,
		Classes:       slices.Clone(s.detection.Classes),
		YOLOAvailable: s.cfg.DetectionAvailable,
		Detections:    slices.Clone(s.detection.Detections),
	}
}

// sensors advances the simulated range finder one step and returns a
// reading. Driving forward closes in on an obstacle, reversing backs away.
func (s *Server) sensors() protocol.Sensors {
	s.mu.Lock()
	defer s.mu.Unlock()

	step := rangeStepMM * max(s.state.Speed, 1) / defaultSpeed
	switch s.state.Direction {
	case protocol.DirectionForward, protocol.DirectionForwardLeft, protocol.DirectionForwardRight:
		s.state.RangeMM -= step
	case protocol.DirectionBackward, protocol.DirectionBackwardLeft, protocol.DirectionBackwardRight:
		s.state.RangeMM += step
	case protocol.DirectionLeft, protocol.DirectionRight:
		// rotating sweeps past open space
		s.state.RangeMM = rangeStartMM
	}
	s.state.RangeMM = protocol.ClampInt(s.state.RangeMM, rangeMinMM, rangeMaxMM)

	mm := s.state.RangeMM
	var track protocol.LineTrack
	if mm <= obstacleMM {
		// the simulated track ends at the obstacle
		track = protocol.LineTrack{X1: 1, X2: 1, X3: 1, X4: 1}
	}
	return protocol.Sensors{UltrasonicMM: &mm, LineTrack: track}
}
