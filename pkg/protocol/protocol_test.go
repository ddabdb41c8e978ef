package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_StopHasEmptyObject(t *testing.T) {
	frame, err := Marshal(EventStop, Stop{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"stop","data":{}}`, string(frame))
}

func TestMarshal_LEDOffOmitsColor(t *testing.T) {
	frame, err := Marshal(EventLED, LED{Action: LEDActionOff})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"led","data":{"action":"off"}}`, string(frame))
}

func TestMarshal_DetectionConfigPartial(t *testing.T) {
	conf := 0.5
	frame, err := Marshal(EventDetectionConfig, DetectionConfig{Confidence: &conf})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"detection_config","data":{"confidence":0.5}}`, string(frame))
}

func TestUnmarshal_Status(t *testing.T) {
	in, err := Unmarshal([]byte(`{"event":"status","data":{"speed":40,"w_angle":90,"h_angle":80,"direction":"forward"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventStatus, in.Event)

	var st Status
	require.NoError(t, in.Decode(&st))
	assert.Equal(t, 40, st.Speed)
	assert.Equal(t, 80, st.HAngle)
	assert.Equal(t, "forward", st.Direction)
}

func TestUnmarshal_MissingEvent(t *testing.T) {
	_, err := Unmarshal([]byte(`{"data":{}}`))
	assert.Error(t, err)
}

func TestDecode_EmptyPayload(t *testing.T) {
	var st Status
	err := Inbound{Event: EventStatus}.Decode(&st)
	assert.ErrorContains(t, err, "empty payload")
}

func TestDirection_Valid(t *testing.T) {
	for _, d := range AllDirections() {
		assert.True(t, d.Valid(), d)
	}
	assert.True(t, DirectionNone.Valid())
	assert.False(t, Direction("sideways").Valid())
	assert.Equal(t, "stop", DirectionNone.String())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 180, ClampInt(182, ServoMin, ServoMax))
	assert.Equal(t, 0, ClampInt(-3, ServoMin, ServoMax))
	assert.Equal(t, 42, ClampInt(42, SpeedMin, SpeedMax))
	assert.Equal(t, 1.0, ClampFloat(1.4, 0, 1))
}
