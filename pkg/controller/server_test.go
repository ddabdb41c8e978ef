package controller

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/roverpanel/pkg/protocol"
	"github.com/gwillem/roverpanel/pkg/robot"
	"github.com/gwillem/roverpanel/pkg/store"
)

type fixture struct {
	srv    *Server
	driver *robot.MockDriver
	store  *store.Store
	url    string
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	st, err := store.Open(store.MemoryPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	driver := robot.NewMockDriver(zerolog.Nop())
	cfg := Config{
		Password:           "secret",
		DetectionAvailable: true,
		Model:              store.DefaultModel,
		StatusInterval:     time.Hour,
		SensorsInterval:    time.Hour,
		DetectionInterval:  time.Hour,
		Logger:             zerolog.Nop(),
		Driver:             driver,
		Store:              st,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	require.NoError(t, err)

	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	return &fixture{srv: srv, driver: driver, store: st, url: "ws" + strings.TrimPrefix(hs.URL, "http")}
}

type panel struct {
	t    *testing.T
	conn *ws.Conn
}

// connect dials and consumes the three greeting messages.
func (f *fixture) connect(t *testing.T) *panel {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	p := &panel{t: t, conn: conn}
	p.expect(protocol.EventStatus)
	p.expect(protocol.EventDetectionState)
	var st protocol.AuthState
	require.NoError(t, p.expect(protocol.EventAuthState).Decode(&st))
	assert.False(t, st.Authenticated)
	return p
}

func (p *panel) send(event string, payload any) {
	p.t.Helper()
	data, err := protocol.Marshal(event, payload)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteMessage(ws.TextMessage, data))
}

func (p *panel) sendRaw(frame string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteMessage(ws.TextMessage, []byte(frame)))
}

func (p *panel) next() protocol.Inbound {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := p.conn.ReadMessage()
	require.NoError(p.t, err)
	in, err := protocol.Unmarshal(msg)
	require.NoError(p.t, err)
	return in
}

// expect reads messages until one with event arrives.
func (p *panel) expect(event string) protocol.Inbound {
	p.t.Helper()
	for range 20 {
		if in := p.next(); in.Event == event {
			return in
		}
	}
	p.t.Fatalf("no %s message", event)
	return protocol.Inbound{}
}

func (p *panel) unlock() {
	p.t.Helper()
	p.send(protocol.EventAuthenticate, protocol.Authenticate{Password: "secret"})
	var res protocol.AuthResult
	require.NoError(p.t, p.expect(protocol.EventAuthResult).Decode(&res))
	require.True(p.t, res.Success)
}

// status asks for a detection_state round trip first so every earlier
// command has been applied, then snapshots the robot.
func (f *fixture) status(p *panel) protocol.Status {
	p.send(protocol.EventDetectionStatus, nil)
	p.expect(protocol.EventDetectionState)
	return f.srv.status()
}

func TestConnect_Greeting(t *testing.T) {
	f := newFixture(t, nil)
	conn, _, err := ws.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	defer conn.Close()
	p := &panel{t: t, conn: conn}

	var st protocol.Status
	require.NoError(t, p.next().Decode(&st))
	assert.Equal(t, 40, st.Speed)
	assert.Equal(t, 90, st.WAngle)
	assert.Equal(t, 90, st.HAngle)
	assert.Equal(t, "off", st.LEDState)
	assert.Equal(t, "stopped", st.Direction)
	assert.Len(t, st.Motors, 4)

	var det protocol.DetectionState
	require.NoError(t, p.next().Decode(&det))
	assert.False(t, det.Enabled)
	assert.InDelta(t, 0.35, det.Confidence, 1e-9)
	assert.Equal(t, DefaultClasses, det.Classes)
	assert.True(t, det.YOLOAvailable)

	in := p.next()
	assert.Equal(t, protocol.EventAuthState, in.Event)

	require.Eventually(t, func() bool { return f.srv.Sessions() == 1 }, time.Second, 10*time.Millisecond)
}

func TestLockedCommandsRejected(t *testing.T) {
	f := newFixture(t, nil)
	p := f.connect(t)

	p.send(protocol.EventMove, protocol.Move{Direction: protocol.DirectionForward})
	var st protocol.AuthState
	require.NoError(t, p.expect(protocol.EventAuthState).Decode(&st))
	assert.False(t, st.Authenticated)
	assert.Equal(t, MsgUnlock, st.Message)

	assert.Equal(t, 0, f.driver.Motor(robot.MotorL1).Speed)
	assert.Equal(t, "stopped", f.srv.status().Direction)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t, nil)
	p := f.connect(t)

	p.send(protocol.EventAuthenticate, protocol.Authenticate{Password: "nope"})
	var res protocol.AuthResult
	require.NoError(t, p.expect(protocol.EventAuthResult).Decode(&res))
	assert.False(t, res.Success)
	assert.Equal(t, "Incorrect password.", res.Message)

	p.unlock()

	entries, err := f.store.RecentAccess(context.Background(), 10)
	require.NoError(t, err)
	var events []string
	for _, e := range entries {
		events = append(events, e.Event)
	}
	assert.Equal(t, []string{store.EventAuthSuccess, store.EventAuthFail, store.EventConnect}, events)
	assert.Equal(t, "wrong password attempt", entries[1].Details)
	assert.Len(t, entries[0].SessionID, 16)
}

func TestEmptyPasswordNeverUnlocks(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Password = "" })
	p := f.connect(t)

	p.send(protocol.EventAuthenticate, protocol.Authenticate{Password: ""})
	var res protocol.AuthResult
	require.NoError(t, p.expect(protocol.EventAuthResult).Decode(&res))
	assert.False(t, res.Success)
}

func TestMoveAndStop(t *testing.T) {
	f := newFixture(t, nil)
	p := f.connect(t)
	p.unlock()

	p.send(protocol.EventSpeed, protocol.Speed{Speed: 100})
	p.send(protocol.EventMove, protocol.Move{Direction: protocol.DirectionForwardLeft})
	st := f.status(p)
	assert.Equal(t, "turn_left", st.Direction)
	assert.Equal(t, 100, st.Speed)
	assert.Equal(t, protocol.MotorState{ID: 0, Dir: robot.DirForward, Speed: 0}, st.Motors["L1"])
	assert.Equal(t, protocol.MotorState{ID: 2, Dir: robot.DirForward, Speed: 100}, st.Motors["R1"])
	assert.Equal(t, 100, f.driver.Motor(robot.MotorR2).Speed)

	p.send(protocol.EventMove, protocol.Move{Direction: "sideways"})
	assert.Equal(t, "stopped", f.status(p).Direction)

	p.send(protocol.EventMove, protocol.Move{Direction: protocol.DirectionBackward})
	p.send(protocol.EventStop, nil)
	st = f.status(p)
	assert.Equal(t, "stopped", st.Direction)
	for _, m := range st.Motors {
		assert.Zero(t, m.Speed)
	}
}

func TestServoAndSpeedClamp(t *testing.T) {
	f := newFixture(t, nil)
	p := f.connect(t)
	p.unlock()

	p.send(protocol.EventServo, protocol.Servo{ID: protocol.ServoTilt, Angle: 250})
	p.sendRaw(`{"event":"servo","data":{"angle":-5}}`)
	p.send(protocol.EventSpeed, protocol.Speed{Speed: 999})
	st := f.status(p)
	assert.Equal(t, 180, st.HAngle)
	assert.Equal(t, 0, st.WAngle, "id defaults to pan")
	assert.Equal(t, 255, st.Speed)
	assert.Equal(t, 180, f.driver.Angle(robot.ServoTilt))

	p.sendRaw(`{"event":"speed","data":{}}`)
	assert.Equal(t, 40, f.status(p).Speed)
}

func TestLEDAndBuzzer(t *testing.T) {
	f := newFixture(t, nil)
	p := f.connect(t)
	p.unlock()

	color := 9
	p.send(protocol.EventLED, protocol.LED{Action: protocol.LEDActionOn, Color: &color})
	p.send(protocol.EventBuzzer, protocol.Buzzer{State: 1})
	st := f.status(p)
	assert.Equal(t, "on", st.LEDState)
	assert.Equal(t, 6, st.LEDColor)
	assert.True(t, st.Buzzer)
	on, c := f.driver.LED()
	assert.True(t, on)
	assert.Equal(t, 6, c)

	p.sendRaw(`{"event":"led","data":{"action":"brightness","r":10,"g":20,"b":300}}`)
	assert.Equal(t, "rgb(10,20,255)", f.status(p).LEDState)

	p.send(protocol.EventLED, protocol.LED{Action: protocol.LEDActionOff})
	p.send(protocol.EventBuzzer, protocol.Buzzer{State: 0})
	st = f.status(p)
	assert.Equal(t, "off", st.LEDState)
	assert.False(t, st.Buzzer)
}

func TestDetectionConfig(t *testing.T) {
	f := newFixture(t, nil)
	p := f.connect(t)
	p.unlock()

	p.sendRaw(`{"event":"detection_config","data":{"confidence":0.01}}`)
	p.send(protocol.EventDetectionStatus, nil)
	var det protocol.DetectionState
	require.NoError(t, p.expect(protocol.EventDetectionState).Decode(&det))
	assert.InDelta(t, 0.05, det.Confidence, 1e-9)

	p.sendRaw(`{"event":"detection_config","data":{"classes":[" ", ""]}}`)
	var upd protocol.DetectionClassUpdate
	require.NoError(t, p.expect(protocol.EventDetectionClassUpdate).Decode(&upd))
	assert.False(t, upd.Success)
	assert.Equal(t, "No valid classes provided", upd.Error)

	p.sendRaw(`{"event":"detection_config","data":{"classes":[" cup ","chair"]}}`)
	upd = protocol.DetectionClassUpdate{}
	require.NoError(t, p.expect(protocol.EventDetectionClassUpdate).Decode(&upd))
	assert.True(t, upd.Success)
	assert.Equal(t, []string{"cup", "chair"}, upd.Classes)
	assert.Equal(t, []string{"cup", "chair"}, f.srv.detectionSnapshot().Classes)
}

func TestDetectionConfig_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		err    string
	}{
		{"unavailable", func(c *Config) { c.DetectionAvailable = false }, "YOLO model not loaded"},
		{"fixed classes", func(c *Config) { c.Model = "yolov8n.pt" }, "Model 'yolov8n.pt' uses built-in classes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mutate)
			p := f.connect(t)
			p.unlock()

			p.send(protocol.EventDetectionConfig, protocol.DetectionConfig{Classes: []string{"cup"}})
			var upd protocol.DetectionClassUpdate
			require.NoError(t, p.expect(protocol.EventDetectionClassUpdate).Decode(&upd))
			assert.False(t, upd.Success)
			assert.Contains(t, upd.Error, tt.err)
			assert.Equal(t, DefaultClasses, f.srv.detectionSnapshot().Classes)
		})
	}
}

func TestDetectionScene(t *testing.T) {
	f := newFixture(t, nil)
	p := f.connect(t)
	p.unlock()

	p.send(protocol.EventDetectionScene, protocol.DetectionScene{Scene: "/k/kitchen"})
	var upd protocol.DetectionClassUpdate
	require.NoError(t, p.expect(protocol.EventDetectionClassUpdate).Decode(&upd))
	assert.True(t, upd.Success)
	assert.Contains(t, upd.Classes, "refrigerator")
}

func TestDetectionScene_WithoutStore(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Store = nil })
	p := f.connect(t)
	p.unlock()

	p.send(protocol.EventDetectionScene, protocol.DetectionScene{Scene: "bus_station"})
	var upd protocol.DetectionClassUpdate
	require.NoError(t, p.expect(protocol.EventDetectionClassUpdate).Decode(&upd))
	assert.True(t, upd.Success)
	assert.Contains(t, upd.Classes, "bus")
}

func TestDetectionToggleAndResults(t *testing.T) {
	f := newFixture(t, nil)
	p := f.connect(t)
	p.unlock()

	_, ok := f.srv.detect()
	assert.False(t, ok, "disabled")

	p.send(protocol.EventDetectionToggle, protocol.DetectionToggle{Enabled: true})
	f.status(p)

	dets, ok := f.srv.detect()
	require.True(t, ok)
	require.Len(t, dets, 2)
	assert.Equal(t, "person", dets[0].Class)
	assert.Equal(t, "car", dets[1].Class)
	assert.GreaterOrEqual(t, dets[0].Confidence, 0.35)

	_, ok = f.srv.detect()
	assert.False(t, ok, "unchanged frame is not resent")
	assert.Len(t, f.srv.detectionSnapshot().Detections, 2)

	p.send(protocol.EventDetectionToggle, protocol.DetectionToggle{Enabled: false})
	f.status(p)
	assert.Empty(t, f.srv.detectionSnapshot().Detections)
}

func TestRun_Broadcasts(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.StatusInterval = 20 * time.Millisecond
		c.SensorsInterval = 20 * time.Millisecond
		c.DetectionInterval = 20 * time.Millisecond
	})
	p := f.connect(t)
	p.unlock()
	p.send(protocol.EventDetectionToggle, protocol.DetectionToggle{Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Run(ctx) }()

	p.expect(protocol.EventStatus)
	var sensors protocol.Sensors
	require.NoError(t, p.expect(protocol.EventSensors).Decode(&sensors))
	require.NotNil(t, sensors.UltrasonicMM)
	assert.Nil(t, sensors.IRValue)

	var dets []protocol.Detection
	require.NoError(t, p.expect(protocol.EventDetectionResults).Decode(&dets))
	assert.NotEmpty(t, dets)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSensors_Simulation(t *testing.T) {
	f := newFixture(t, nil)

	start := *f.srv.sensors().UltrasonicMM
	require.NoError(t, f.srv.drive(context.Background(), protocol.DirectionForward))
	closer := *f.srv.sensors().UltrasonicMM
	assert.Less(t, closer, start)

	for range 100 {
		f.srv.sensors()
	}
	s := f.srv.sensors()
	assert.Equal(t, rangeMinMM, *s.UltrasonicMM)
	assert.Equal(t, protocol.LineTrack{X1: 1, X2: 1, X3: 1, X4: 1}, s.LineTrack)

	require.NoError(t, f.srv.drive(context.Background(), protocol.DirectionRight))
	assert.Equal(t, rangeStartMM, *f.srv.sensors().UltrasonicMM)
}

func TestDisconnect_LogsAccess(t *testing.T) {
	f := newFixture(t, nil)
	p := f.connect(t)
	require.Eventually(t, func() bool { return f.srv.Sessions() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, p.conn.Close())
	require.Eventually(t, func() bool { return f.srv.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		entries, err := f.store.RecentAccess(context.Background(), 1)
		return err == nil && len(entries) == 1 && entries[0].Event == store.EventDisconnect
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMalformedFrameIgnored(t *testing.T) {
	f := newFixture(t, nil)
	p := f.connect(t)

	p.sendRaw(`garbage`)
	p.sendRaw(`{"event":"nonsense"}`)
	p.send(protocol.EventDetectionStatus, nil)
	p.expect(protocol.EventDetectionState)
}

func TestIsWorldModel(t *testing.T) {
	assert.True(t, IsWorldModel("yolov8s-worldv2.pt"))
	assert.True(t, IsWorldModel("YOLO-World.pt"))
	assert.False(t, IsWorldModel("yolov8n.pt"))
}
