// Package robot drives the rover hardware: four wheel motors and a pan/tilt
// camera gimbal.
package robot

import "github.com/gwillem/roverpanel/pkg/protocol"

// MotorName identifies a wheel motor or a gimbal servo.
type MotorName string

// Wheel motors, front and rear on each side.
const (
	MotorL1 MotorName = "L1"
	MotorL2 MotorName = "L2"
	MotorR1 MotorName = "R1"
	MotorR2 MotorName = "R2"
)

// Gimbal servos. Their bus ids match protocol.ServoPan and ServoTilt.
const (
	ServoPan  MotorName = "pan"
	ServoTilt MotorName = "tilt"
)

// WheelMotors returns the wheel motors in order (matching motor ids 0-3).
func WheelMotors() []MotorName {
	return []MotorName{MotorL1, MotorL2, MotorR1, MotorR2}
}

// GimbalServos returns the gimbal servos in order (matching servo ids 1-2).
func GimbalServos() []MotorName {
	return []MotorName{ServoPan, ServoTilt}
}

// ServoName returns the gimbal servo for a protocol axis.
func ServoName(axis protocol.ServoAxis) (MotorName, bool) {
	switch axis {
	case protocol.ServoPan:
		return ServoPan, true
	case protocol.ServoTilt:
		return ServoTilt, true
	}
	return "", false
}

// Motor directions.
const (
	DirForward  = 0
	DirBackward = 1
)

// MotorCommand is the state of one wheel motor.
type MotorCommand struct {
	Motor MotorName
	ID    int
	Dir   int
	Speed int
}

// wheel pattern per side: direction and whether the side runs at all.
type side struct {
	dir int
	on  bool
}

var drivePatterns = map[protocol.Direction]struct{ left, right side }{
	protocol.DirectionForward:       {side{DirForward, true}, side{DirForward, true}},
	protocol.DirectionBackward:      {side{DirBackward, true}, side{DirBackward, true}},
	protocol.DirectionLeft:          {side{DirBackward, true}, side{DirForward, true}},
	protocol.DirectionRight:         {side{DirForward, true}, side{DirBackward, true}},
	protocol.DirectionForwardLeft:   {side{DirForward, false}, side{DirForward, true}},
	protocol.DirectionForwardRight:  {side{DirForward, true}, side{DirForward, false}},
	protocol.DirectionBackwardLeft:  {side{DirForward, false}, side{DirBackward, true}},
	protocol.DirectionBackwardRight: {side{DirBackward, true}, side{DirForward, false}},
}

// WheelCommands returns the motor states for driving in dir at speed. An
// unknown direction (including none) stops every motor.
func WheelCommands(dir protocol.Direction, speed int) []MotorCommand {
	speed = protocol.ClampInt(speed, protocol.SpeedMin, protocol.SpeedMax)
	p, ok := drivePatterns[dir]

	cmds := make([]MotorCommand, 0, 4)
	for i, name := range WheelMotors() {
		cmd := MotorCommand{Motor: name, ID: i}
		if ok {
			s := p.left
			if name == MotorR1 || name == MotorR2 {
				s = p.right
			}
			if s.on {
				cmd.Dir = s.dir
				cmd.Speed = speed
			}
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

// DirectionLabel is the human readable motion reported in status.
func DirectionLabel(dir protocol.Direction) string {
	switch dir {
	case protocol.DirectionForward:
		return "forward"
	case protocol.DirectionBackward:
		return "backward"
	case protocol.DirectionLeft:
		return "rotate_left"
	case protocol.DirectionRight:
		return "rotate_right"
	case protocol.DirectionForwardLeft:
		return "turn_left"
	case protocol.DirectionForwardRight:
		return "turn_right"
	case protocol.DirectionBackwardLeft:
		return "back_left"
	case protocol.DirectionBackwardRight:
		return "back_right"
	default:
		return "stopped"
	}
}
