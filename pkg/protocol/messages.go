package protocol

// Direction is a resolved drive intent. DirectionNone means stop.
type Direction string

// Drive directions accepted by the controller.
const (
	DirectionNone          Direction = ""
	DirectionForward       Direction = "forward"
	DirectionBackward      Direction = "backward"
	DirectionLeft          Direction = "left"
	DirectionRight         Direction = "right"
	DirectionForwardLeft   Direction = "forward_left"
	DirectionForwardRight  Direction = "forward_right"
	DirectionBackwardLeft  Direction = "backward_left"
	DirectionBackwardRight Direction = "backward_right"
)

// AllDirections returns every non-stop direction.
func AllDirections() []Direction {
	return []Direction{
		DirectionForward,
		DirectionBackward,
		DirectionLeft,
		DirectionRight,
		DirectionForwardLeft,
		DirectionForwardRight,
		DirectionBackwardLeft,
		DirectionBackwardRight,
	}
}

// Valid reports whether d is a known direction or none.
func (d Direction) Valid() bool {
	if d == DirectionNone {
		return true
	}
	for _, known := range AllDirections() {
		if d == known {
			return true
		}
	}
	return false
}

func (d Direction) String() string {
	if d == DirectionNone {
		return "stop"
	}
	return string(d)
}

// ServoAxis identifies a camera servo. Values match controller servo ids.
type ServoAxis int

const (
	ServoPan  ServoAxis = 1
	ServoTilt ServoAxis = 2
)

func (a ServoAxis) String() string {
	switch a {
	case ServoPan:
		return "pan"
	case ServoTilt:
		return "tilt"
	default:
		return "unknown"
	}
}

// Actuator limits.
const (
	ServoMin  = 0
	ServoMax  = 180
	ServoHome = 90
	SpeedMin  = 0
	SpeedMax  = 255
	LEDMin    = 0
	LEDMax    = 6
)

// ClampInt limits v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampFloat limits v to [lo, hi].
func ClampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Outbound payloads.

type Authenticate struct {
	Password string `json:"password"`
}

type Move struct {
	Direction Direction `json:"direction"`
}

type Stop struct{}

type Servo struct {
	ID    ServoAxis `json:"id"`
	Angle int       `json:"angle"`
}

type Speed struct {
	Speed int `json:"speed"`
}

// LED actions.
const (
	LEDActionOn  = "on"
	LEDActionOff = "off"
)

type LED struct {
	Action string `json:"action"`
	Color  *int   `json:"color,omitempty"`
}

type Buzzer struct {
	State int `json:"state"`
}

type DetectionToggle struct {
	Enabled bool `json:"enabled"`
}

// DetectionConfig is a partial update; nil fields are left unchanged.
type DetectionConfig struct {
	Confidence *float64 `json:"confidence,omitempty"`
	Classes    []string `json:"classes,omitempty"`
}

type DetectionScene struct {
	Scene string `json:"scene"`
}

// Inbound payloads.

type AuthResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type AuthState struct {
	Authenticated bool   `json:"authenticated"`
	Message       string `json:"message,omitempty"`
}

// MotorState is the direction and speed of one wheel motor.
type MotorState struct {
	ID    int `json:"id"`
	Dir   int `json:"dir"`
	Speed int `json:"speed"`
}

type Status struct {
	Speed     int                   `json:"speed"`
	WAngle    int                   `json:"w_angle"`
	HAngle    int                   `json:"h_angle"`
	Motors    map[string]MotorState `json:"motors"`
	LEDState  string                `json:"led_state"`
	LEDColor  int                   `json:"led_color"`
	Buzzer    bool                  `json:"buzzer"`
	Direction string                `json:"direction"`
}

// LineTrack holds the four line-tracking sensor bits.
type LineTrack struct {
	X1 int `json:"x1"`
	X2 int `json:"x2"`
	X3 int `json:"x3"`
	X4 int `json:"x4"`
}

type Sensors struct {
	UltrasonicMM *int      `json:"ultrasonic_mm"`
	LineTrack    LineTrack `json:"line_track"`
	IRValue      *int      `json:"ir_value"`
}

type DetectionState struct {
	Enabled       bool        `json:"enabled"`
	Confidence    float64     `json:"confidence"`
	Classes       []string    `json:"classes"`
	YOLOAvailable bool        `json:"yolo_available"`
	Detections    []Detection `json:"detections,omitempty"`
}

// Detection is one object reported by the controller's detector.
type Detection struct {
	Class      string  `json:"class"`
	ID         int     `json:"id"`
	Confidence float64 `json:"confidence"`
	BBox       [4]int  `json:"bbox"`
}

type DetectionClassUpdate struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Classes []string `json:"classes,omitempty"`
}
