package robot

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Driver applies commands to rover hardware.
type Driver interface {
	Drive(ctx context.Context, cmds []MotorCommand) error
	SetServo(ctx context.Context, servo MotorName, angle int) error
	SetLED(ctx context.Context, on bool, color int) error
	SetBuzzer(ctx context.Context, on bool) error
	Close() error
}

// MockDriver logs every command and remembers the last state. It stands in
// for hardware that is not attached.
type MockDriver struct {
	log zerolog.Logger

	mu       sync.Mutex
	motors   map[MotorName]MotorCommand
	angles   map[MotorName]int
	ledOn    bool
	ledColor int
	buzzer   bool
}

func NewMockDriver(log zerolog.Logger) *MockDriver {
	return &MockDriver{
		log:    log,
		motors: make(map[MotorName]MotorCommand),
		angles: map[MotorName]int{ServoPan: 90, ServoTilt: 90},
	}
}

func (d *MockDriver) Drive(_ context.Context, cmds []MotorCommand) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range cmds {
		d.motors[c.Motor] = c
		d.log.Debug().Str("motor", string(c.Motor)).Int("dir", c.Dir).Int("speed", c.Speed).Msg("motor")
	}
	return nil
}

func (d *MockDriver) SetServo(_ context.Context, servo MotorName, angle int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.angles[servo] = angle
	d.log.Debug().Str("servo", string(servo)).Int("angle", angle).Msg("servo")
	return nil
}

func (d *MockDriver) SetLED(_ context.Context, on bool, color int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ledOn, d.ledColor = on, color
	d.log.Debug().Bool("on", on).Int("color", color).Msg("led")
	return nil
}

func (d *MockDriver) SetBuzzer(_ context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buzzer = on
	d.log.Debug().Bool("on", on).Msg("buzzer")
	return nil
}

func (d *MockDriver) Close() error { return nil }

// Motor returns the last command applied to a wheel motor.
func (d *MockDriver) Motor(name MotorName) MotorCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.motors[name]
}

// Angle returns the last angle set on a servo.
func (d *MockDriver) Angle(name MotorName) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.angles[name]
}

func (d *MockDriver) LED() (on bool, color int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ledOn, d.ledColor
}

func (d *MockDriver) Buzzer() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buzzer
}

// GimbalDriver sends servo commands to a real gimbal and everything else to
// a fallback driver.
type GimbalDriver struct {
	Driver
	gimbal *Gimbal
}

// NewGimbalDriver opens the gimbal on port, enables torque and centers it.
func NewGimbalDriver(ctx context.Context, port string, cal Calibration, fallback Driver) (*GimbalDriver, error) {
	g, err := NewGimbal(port, cal)
	if err != nil {
		return nil, err
	}
	if err := g.Enable(ctx); err != nil {
		g.Close()
		return nil, fmt.Errorf("enable gimbal: %w", err)
	}
	if err := g.Center(ctx); err != nil {
		g.Close()
		return nil, fmt.Errorf("center gimbal: %w", err)
	}
	return &GimbalDriver{Driver: fallback, gimbal: g}, nil
}

func (d *GimbalDriver) SetServo(ctx context.Context, servo MotorName, angle int) error {
	return d.gimbal.WriteAngles(ctx, map[MotorName]int{servo: angle})
}

// Close releases torque and closes the bus, then closes the fallback.
func (d *GimbalDriver) Close() error {
	d.gimbal.Disable(context.Background())
	if err := d.gimbal.Close(); err != nil {
		return fmt.Errorf("close gimbal: %w", err)
	}
	return d.Driver.Close()
}
