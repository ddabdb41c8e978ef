package main

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/roverpanel/pkg/auth"
	"github.com/gwillem/roverpanel/pkg/input"
	"github.com/gwillem/roverpanel/pkg/logging"
	"github.com/gwillem/roverpanel/pkg/protocol"
	"github.com/gwillem/roverpanel/pkg/teleop"
)

type recorder struct {
	mu       sync.Mutex
	sent     []string
	payloads []any
}

// Emit records the event name, with the direction appended for moves.
func (r *recorder) Emit(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mv, ok := payload.(protocol.Move); ok {
		event += ":" + string(mv.Direction)
	}
	if a, ok := payload.(protocol.Authenticate); ok {
		event += ":" + a.Password
	}
	r.sent = append(r.sent, event)
	r.payloads = append(r.payloads, payload)
}

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	r.payloads = nil
	return out
}

func newTestPanel(t *testing.T, autoPass string) (panelModel, *teleop.Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	sess, err := teleop.NewSession(rec, teleop.Config{Clock: teleop.SystemClock(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	m := newPanelModel(sess, logging.NewChannelWriter(4), 600*time.Millisecond, autoPass)
	return m, sess, rec
}

func unlockPanel(t *testing.T, sess *teleop.Session, rec *recorder) {
	t.Helper()
	sess.Unlock("secret")
	sess.HandleMessage(protocol.NewInbound(protocol.EventAuthResult, protocol.AuthResult{Success: true}))
	require.Equal(t, auth.Unlocked, sess.View().Phase)
	rec.take()
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m panelModel, msg tea.Msg) panelModel {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(panelModel)
}

func TestPanel_SynthesizedRelease(t *testing.T) {
	m, sess, rec := newTestPanel(t, "")
	unlockPanel(t, sess, rec)

	m = update(t, m, keyRunes("w"))
	wFirst := m.keys.held[input.KeyW]
	m = update(t, m, keyRunes("w")) // terminal auto-repeat
	wLatest := m.keys.held[input.KeyW]
	m = update(t, m, keyRunes("a"))
	assert.Equal(t, []string{"move:forward", "move:forward_left"}, rec.take())

	m = update(t, m, releaseMsg{id: input.KeyA, token: m.keys.held[input.KeyA]})
	m = update(t, m, releaseMsg{id: input.KeyW, token: wFirst})
	assert.Equal(t, []string{"move:forward"}, rec.take(), "stale release check is ignored")

	update(t, m, releaseMsg{id: input.KeyW, token: wLatest})
	assert.Equal(t, []string{"stop"}, rec.take())
}

func TestPanel_PasswordFieldSwallowsKeys(t *testing.T) {
	m, _, rec := newTestPanel(t, "")

	m = update(t, m, keyRunes("u"))
	require.True(t, m.password.Focused())

	for _, r := range "wasd" {
		m = update(t, m, keyRunes(string(r)))
	}
	assert.Equal(t, "wasd", m.password.Value())
	assert.Empty(t, rec.take(), "typing never drives")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.password.Focused())
	assert.Empty(t, m.password.Value())
	assert.Equal(t, []string{"authenticate:wasd"}, rec.take())
}

func TestPanel_BlurReleasesEverything(t *testing.T) {
	m, sess, rec := newTestPanel(t, "")
	unlockPanel(t, sess, rec)

	m = update(t, m, keyRunes("w"))
	m = update(t, m, tea.BlurMsg{})
	assert.Equal(t, []string{"move:forward", "stop"}, rec.take())
	assert.Zero(t, m.keys.Held())
	assert.Empty(t, sess.View().Held)
}

func TestPanel_QuitStops(t *testing.T) {
	m, sess, rec := newTestPanel(t, "")
	unlockPanel(t, sess, rec)

	m = update(t, m, keyRunes("s"))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, next.(panelModel).quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, []string{"move:backward", "stop", "stop"}, rec.take())
}

func TestPanel_AutoUnlockOnConnect(t *testing.T) {
	m, sess, rec := newTestPanel(t, "secret")

	sess.HandleMessage(protocol.NewInbound(protocol.EventConnect, nil))
	m = update(t, m, viewMsg(sess.View()))
	assert.Equal(t, []string{"authenticate:secret"}, rec.take())

	// no second attempt while still connected
	update(t, m, viewMsg(sess.View()))
	assert.Empty(t, rec.take())
}

func TestPanel_SensorsFeedChart(t *testing.T) {
	m, sess, _ := newTestPanel(t, "")

	mm := 640
	data, err := json.Marshal(protocol.Sensors{UltrasonicMM: &mm})
	require.NoError(t, err)
	sess.HandleMessage(protocol.Inbound{Event: protocol.EventSensors, Data: data})

	m = update(t, m, viewMsg(sess.View()))
	require.NotNil(t, m.lastSensors)
	assert.Equal(t, 640, *m.lastSensors.UltrasonicMM)
}

func TestPanel_ReauthenticatesAfterReconnect(t *testing.T) {
	m, sess, rec := newTestPanel(t, "secret")
	unlockPanel(t, sess, rec)

	sess.HandleMessage(protocol.NewInbound(protocol.EventConnect, nil))
	update(t, m, viewMsg(sess.View()))
	assert.Equal(t, []string{"authenticate:secret"}, rec.take())
	assert.Equal(t, auth.Unlocked, sess.View().Phase)
}

func TestPanel_UnlockButtonWhileControllerLocked(t *testing.T) {
	m, sess, rec := newTestPanel(t, "")
	unlockPanel(t, sess, rec)

	sess.HandleMessage(protocol.NewInbound(protocol.EventAuthState, protocol.AuthState{Authenticated: false}))
	m = update(t, m, viewMsg(sess.View()))
	zone.NewGlobal()
	assert.Contains(t, m.renderAuth(), "controller session locked")

	m = update(t, m, keyRunes("u"))
	for _, r := range "secret" {
		m = update(t, m, keyRunes(string(r)))
	}
	update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"authenticate:secret"}, rec.take())
}

func TestPanel_RejectedPasswordRefocusesField(t *testing.T) {
	m, sess, rec := newTestPanel(t, "")

	m = update(t, m, keyRunes("u"))
	for _, r := range "bad" {
		m = update(t, m, keyRunes(string(r)))
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.False(t, m.password.Focused())
	assert.Equal(t, []string{"authenticate:bad"}, rec.take())

	sess.HandleMessage(protocol.NewInbound(protocol.EventAuthResult, protocol.AuthResult{Success: false}))
	m = update(t, m, viewMsg(sess.View()))
	assert.True(t, m.password.Focused())
	assert.Empty(t, m.password.Value())
	assert.Equal(t, auth.MsgRejected, m.view.AuthErr)
}

func TestPanel_NewPressCancelsLostRelease(t *testing.T) {
	m, sess, rec := newTestPanel(t, "")
	unlockPanel(t, sess, rec)

	m.pressControl(input.PadForward)
	// the release happened outside the terminal
	m.pressControl(input.PadLeft)
	m.releasePointer(input.PointerUp)
	assert.Equal(t, []string{"move:forward", "stop", "move:left", "stop"}, rec.take())
	assert.Empty(t, sess.View().Held)

	m.pressControl(input.ServoTiltUp)
	m.pressControl(input.ServoPanLeft)
	assert.Equal(t, []input.Control{input.ServoPanLeft}, sess.View().Holds)

	m.releasePointer(input.PointerUp)
	assert.Empty(t, sess.View().Holds)
	assert.Empty(t, m.pressed)
}

func TestPanel_SceneFieldSendsClassesOrScene(t *testing.T) {
	m, sess, rec := newTestPanel(t, "")
	unlockPanel(t, sess, rec)

	m.submitScene(" kitchen ")
	m.submitScene("cat, dog")
	m.submitScene("  ")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{protocol.EventDetectionScene, protocol.EventDetectionConfig}, rec.sent)
	assert.Equal(t, protocol.DetectionScene{Scene: "kitchen"}, rec.payloads[0])
	assert.Equal(t, []string{"cat", "dog"}, rec.payloads[1].(protocol.DetectionConfig).Classes)
}
