package robot

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/gwillem/roverpanel/pkg/protocol"
)

// ServoCalibration maps a gimbal servo's raw bus positions to angles.
// RangeMin is 0 degrees and RangeMax is 180 degrees; DriveMode 1 mirrors
// the mapping for servos mounted the other way round.
type ServoCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration holds calibration data for the gimbal, keyed by servo name.
type Calibration map[MotorName]ServoCalibration

// DefaultCalibration covers the full 0-4095 range of an STS servo for both
// axes.
func DefaultCalibration() Calibration {
	return Calibration{
		ServoPan:  {ID: int(protocol.ServoPan), RangeMin: 0, RangeMax: 4095},
		ServoTilt: {ID: int(protocol.ServoTilt), RangeMin: 0, RangeMax: 4095},
	}
}

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	var raw map[string]ServoCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration JSON: %w", err)
	}

	cal := make(Calibration, len(raw))
	for name, sc := range raw {
		cal[MotorName(name)] = sc
	}
	return cal, nil
}

// Angle converts a raw servo position to degrees in [0, 180].
func (c ServoCalibration) Angle(raw int) int {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return protocol.ServoHome
	}
	frac := float64(raw-c.HomingOffset-c.RangeMin) / rangeSize
	if c.DriveMode == 1 {
		frac = 1 - frac
	}
	angle := int(math.Round(frac * protocol.ServoMax))
	return protocol.ClampInt(angle, protocol.ServoMin, protocol.ServoMax)
}

// Raw converts an angle in degrees to a raw servo position. Angles outside
// [0, 180] are clamped.
func (c ServoCalibration) Raw(angle int) int {
	angle = protocol.ClampInt(angle, protocol.ServoMin, protocol.ServoMax)
	frac := float64(angle) / protocol.ServoMax
	if c.DriveMode == 1 {
		frac = 1 - frac
	}
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int(math.Round(frac*rangeSize)) + c.RangeMin + c.HomingOffset
}

// ServoIDs returns the bus ids of the calibrated servos.
func (c Calibration) ServoIDs() []int {
	ids := make([]int, 0, len(c))
	// Use GimbalServos() to ensure consistent ordering
	for _, name := range GimbalServos() {
		if sc, ok := c[name]; ok {
			ids = append(ids, sc.ID)
		}
	}
	return ids
}

// ByID returns servo name and calibration for a given bus id.
func (c Calibration) ByID(id int) (MotorName, ServoCalibration, bool) {
	for name, sc := range c {
		if sc.ID == id {
			return name, sc, true
		}
	}
	return "", ServoCalibration{}, false
}
