package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

const gimbalBaudRate = 1_000_000

// Gimbal is the pan/tilt camera mount on a Feetech servo bus.
type Gimbal struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
}

// NewGimbal opens the bus on port and addresses the calibrated servos.
func NewGimbal(port string, cal Calibration) (*Gimbal, error) {
	if len(cal) == 0 {
		cal = DefaultCalibration()
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: gimbalBaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	group := feetech.NewServoGroupByIDs(bus, cal.ServoIDs()...)

	return &Gimbal{
		bus:         bus,
		group:       group,
		calibration: cal,
	}, nil
}

// Close closes the gimbal's bus connection.
func (g *Gimbal) Close() error {
	return g.bus.Close()
}

// Enable enables torque on both servos.
func (g *Gimbal) Enable(ctx context.Context) error {
	return g.group.EnableAll(ctx)
}

// Disable disables torque so the mount can be moved by hand.
func (g *Gimbal) Disable(ctx context.Context) error {
	return g.group.DisableAll(ctx)
}

// ReadAngles reads current servo angles in degrees.
func (g *Gimbal) ReadAngles(ctx context.Context) (map[MotorName]int, error) {
	rawPositions, err := g.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	angles := make(map[MotorName]int, len(rawPositions))
	for id, raw := range rawPositions {
		name, cal, ok := g.calibration.ByID(id)
		if !ok {
			continue
		}
		angles[name] = cal.Angle(raw)
	}
	return angles, nil
}

// WriteAngles moves servos to the given angles in degrees. Unknown servo
// names are ignored.
func (g *Gimbal) WriteAngles(ctx context.Context, angles map[MotorName]int) error {
	rawPositions := make(feetech.PositionMap, len(angles))
	for name, angle := range angles {
		cal, ok := g.calibration[name]
		if !ok {
			continue
		}
		rawPositions[cal.ID] = cal.Raw(angle)
	}
	if len(rawPositions) == 0 {
		return nil
	}

	if err := g.group.SetPositions(ctx, rawPositions); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

// Center moves both servos to 90 degrees.
func (g *Gimbal) Center(ctx context.Context) error {
	return g.WriteAngles(ctx, map[MotorName]int{ServoPan: 90, ServoTilt: 90})
}

// ProbeGimbal reports whether port has servos answering on the pan and
// tilt ids.
func ProbeGimbal(ctx context.Context, port string) (bool, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: gimbalBaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return false, fmt.Errorf("open bus: %w", err)
	}
	defer bus.Close()

	servos, err := bus.Scan(ctx, 1, 2)
	if err != nil {
		return false, fmt.Errorf("scan bus: %w", err)
	}

	ids := make(map[int]bool, len(servos))
	for _, s := range servos {
		ids[s.ID] = true
	}
	return ids[1] && ids[2], nil
}
