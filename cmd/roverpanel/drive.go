package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	zone "github.com/lrstanley/bubblezone"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/roverpanel/pkg/auth"
	"github.com/gwillem/roverpanel/pkg/input"
	"github.com/gwillem/roverpanel/pkg/logging"
	"github.com/gwillem/roverpanel/pkg/protocol"
	"github.com/gwillem/roverpanel/pkg/teleop"
	"github.com/gwillem/roverpanel/pkg/transport"
)

type DriveCommand struct {
	URL string `long:"url" description:"Controller websocket URL (overrides config)"`
}

const (
	maxLogs      = 5
	chartHeight  = 8
	distanceSet  = "distance"
	unlockZone   = "unlock"
	logBufferLen = 32
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	chartStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	buttonStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Width(5).Align(lipgloss.Center)
	activeStyle  = buttonStyle.BorderForeground(lipgloss.Color("11")).Foreground(lipgloss.Color("11")).Bold(true)
	stopStyle    = buttonStyle.Foreground(lipgloss.Color("9"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

var buttonLabels = map[input.Control]string{
	input.PadForwardLeft:   "↖",
	input.PadForward:       "↑",
	input.PadForwardRight:  "↗",
	input.PadLeft:          "←",
	input.PadStop:          "■",
	input.PadRight:         "→",
	input.PadBackwardLeft:  "↙",
	input.PadBackward:      "↓",
	input.PadBackwardRight: "↘",
	input.ServoPanLeft:     "◀",
	input.ServoTiltUp:      "▲",
	input.ServoTiltDown:    "▼",
	input.ServoPanRight:    "▶",
}

var title = cases.Title(language.English)

// Messages from the session
type viewMsg teleop.View
type logMsg string
type releaseMsg struct {
	id    input.ID
	token uint64
}

func waitForView(sess *teleop.Session) tea.Cmd {
	return func() tea.Msg {
		return viewMsg(<-sess.Views())
	}
}

func waitForLog(logs *logging.ChannelWriter) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-logs.Lines())
	}
}

type panelModel struct {
	sess     *teleop.Session
	logs     *logging.ChannelWriter
	keys     *keyReleaser
	window   time.Duration
	autoPass string

	password textinput.Model
	scene    textinput.Model
	chart    *streamlinechart.Model

	view        teleop.View
	lastSensors *protocol.Sensors
	pressed     input.Control // mouse button held on this control
	logLines    []string
	width       int
	height      int
	quitting    bool
}

func newPanelModel(sess *teleop.Session, logs *logging.ChannelWriter, window time.Duration, autoPass string) panelModel {
	pw := textinput.New()
	pw.Placeholder = "password"
	pw.EchoMode = textinput.EchoPassword
	pw.EchoCharacter = '•'
	pw.Prompt = "🔒 "
	pw.CharLimit = 128

	sc := textinput.New()
	sc.Placeholder = "scene (kitchen) or classes (cat, dog)"
	sc.Prompt = "scene> "
	sc.CharLimit = 64

	chart := streamlinechart.New(60, chartHeight, streamlinechart.WithYRange(0, 2000))
	chart.SetDataSetStyles(distanceSet, runes.ThinLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("51")))

	return panelModel{
		sess:     sess,
		logs:     logs,
		keys:     newKeyReleaser(),
		window:   window,
		autoPass: autoPass,
		password: pw,
		scene:    sc,
		chart:    &chart,
		view:     sess.View(),
	}
}

func (m *panelModel) addLog(msg string) {
	m.logLines = append(m.logLines, msg)
	if len(m.logLines) > maxLogs {
		m.logLines = m.logLines[len(m.logLines)-maxLogs:]
	}
}

func (m panelModel) Init() tea.Cmd {
	return tea.Batch(
		waitForView(m.sess),
		waitForLog(m.logs),
		textinput.Blink,
	)
}

func (m panelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(max(msg.Width-6, 30), chartHeight)
		return m, nil

	case tea.BlurMsg:
		m.releaseAll()
		return m, nil

	case tea.FocusMsg:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil

	case releaseMsg:
		if m.keys.Expire(msg.id, msg.token) {
			m.sess.HandleInput(input.Event{Kind: input.KeyUp, Key: string(msg.id)})
		}
		return m, nil

	case viewMsg:
		cmd := m.applyView(teleop.View(msg))
		return m, tea.Batch(cmd, waitForView(m.sess))

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.logs)
	}

	var pwCmd, sceneCmd tea.Cmd
	m.password, pwCmd = m.password.Update(msg)
	m.scene, sceneCmd = m.scene.Update(msg)
	return m, tea.Batch(pwCmd, sceneCmd)
}

func (m *panelModel) applyView(v teleop.View) tea.Cmd {
	prev := m.view
	m.view = v

	// a new controller connection starts locked even when the panel gate
	// is open; Unlock re-sends the password in that case
	if v.Connected && !prev.Connected && m.autoPass != "" {
		m.sess.Unlock(m.autoPass)
	}

	if v.Sensors != nil && v.Sensors != m.lastSensors {
		m.lastSensors = v.Sensors
		if v.Sensors.UltrasonicMM != nil {
			m.chart.PushDataSet(distanceSet, float64(*v.Sensors.UltrasonicMM))
			m.chart.DrawAll()
		}
	}

	rejected := v.AuthErr != "" &&
		(v.AuthErr != prev.AuthErr || prev.Phase == auth.Verifying && v.Phase == auth.Locked)
	if rejected && !m.scene.Focused() {
		m.releaseAll()
		m.password.Reset()
		return m.password.Focus()
	}
	return nil
}

// releaseAll drops every synthesized key hold and mouse hold and tells the
// session the panel lost focus.
func (m *panelModel) releaseAll() {
	m.keys.Reset()
	m.pressed = ""
	m.sess.HandleInput(input.Event{Kind: input.Blur})
}

func (m panelModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}

	if m.password.Focused() || m.scene.Focused() {
		return m.handleFieldKey(msg)
	}

	switch msg.String() {
	case "q":
		return m.quit()
	case "tab", "u":
		m.releaseAll()
		cmd := m.password.Focus()
		return m, cmd
	case "/":
		m.releaseAll()
		cmd := m.scene.Focus()
		return m, cmd
	}

	name := keyName(msg)
	id := input.NormalizeKey(name)
	if !input.IsMovementKey(id) {
		m.sess.HandleInput(input.Event{Kind: input.KeyDown, Key: name})
		return m, nil
	}

	first, token := m.keys.Press(id)
	if first {
		m.sess.HandleInput(input.Event{Kind: input.KeyDown, Key: name})
	}
	return m, tea.Tick(m.window, func(time.Time) tea.Msg {
		return releaseMsg{id: id, token: token}
	})
}

// handleFieldKey routes keys to the focused text field. The session sees
// them too, marked as text-field input, and ignores them.
func (m panelModel) handleFieldKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.sess.HandleInput(input.Event{Kind: input.KeyDown, Key: keyName(msg), Source: input.SourceTextField})

	switch msg.Type {
	case tea.KeyEnter:
		if m.password.Focused() {
			m.sess.Unlock(m.password.Value())
			m.password.Reset()
			m.password.Blur()
		} else {
			m.submitScene(m.scene.Value())
			m.scene.Reset()
			m.scene.Blur()
		}
		return m, nil
	case tea.KeyEsc, tea.KeyTab:
		m.password.Blur()
		m.scene.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	if m.password.Focused() {
		m.password, cmd = m.password.Update(msg)
	} else {
		m.scene, cmd = m.scene.Update(msg)
	}
	return m, cmd
}

// submitScene treats a comma separated entry as a class list and anything
// else as a scene name.
func (m *panelModel) submitScene(text string) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
	case strings.Contains(text, ","):
		m.sess.SetDetectionConfig(protocol.DetectionConfig{Classes: strings.Split(text, ",")})
	default:
		m.sess.ApplyScene(text)
	}
}

// pressControl starts a pointer hold on c. A hold whose release never
// reached the terminal is cancelled first.
func (m *panelModel) pressControl(c input.Control) {
	m.releasePointer(input.PointerCancel)
	m.pressed = c
	m.sess.HandleInput(input.Event{Kind: input.PointerDown, Control: c})
}

func (m *panelModel) releasePointer(kind input.EventKind) {
	if m.pressed == "" {
		return
	}
	m.sess.HandleInput(input.Event{Kind: kind, Control: m.pressed})
	m.pressed = ""
}

func (m *panelModel) handleMouse(msg tea.MouseMsg) {
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return
		}
		if zone.Get(unlockZone).InBounds(msg) {
			m.releasePointer(input.PointerCancel)
			m.password.Focus()
			return
		}
		for _, c := range allControls() {
			if zone.Get(string(c)).InBounds(msg) {
				m.pressControl(c)
				return
			}
		}

	case tea.MouseActionRelease:
		m.releasePointer(input.PointerUp)

	case tea.MouseActionMotion:
		if m.pressed != "" && !zone.Get(string(m.pressed)).InBounds(msg) {
			m.releasePointer(input.PointerLeave)
		}
	}
}

func (m panelModel) quit() (tea.Model, tea.Cmd) {
	m.releaseAll()
	m.sess.EmergencyStop()
	m.quitting = true
	return m, tea.Quit
}

func allControls() []input.Control {
	return append(input.PadControls(), input.ServoControls()...)
}

func (m panelModel) View() string {
	if m.quitting {
		return "Panel closed.\n"
	}

	var sb strings.Builder
	v := m.view

	// Header
	sb.WriteString(titleStyle.Render("Rover Panel"))
	if v.Connected {
		sb.WriteString(onlineStyle.Render("  ● online"))
	} else {
		sb.WriteString(offlineStyle.Render("  ○ offline"))
	}
	sb.WriteString(statusStyle.Render("  " + v.Phase.String()))
	sb.WriteString("\n")
	sb.WriteString(m.renderAuth())
	sb.WriteString("\n")

	controls := lipgloss.JoinVertical(lipgloss.Center, m.renderPad(), m.renderServos())
	info := lipgloss.JoinVertical(lipgloss.Left, m.renderStatus(), m.renderDetection())
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, controls, "  ", info))
	sb.WriteString("\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(m.scene.View())
	sb.WriteString("\n")

	var logLines string
	if len(m.logLines) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logLines, "\n")
	}
	sb.WriteString(boxStyle.Width(max(m.width-4, 40)).Render(logLines))
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render("wasd/arrows drive · space stop · ijkl camera · h center · 1-5 speed · -/= step · b buzzer · c/o led · v detect · [/] confidence · r refresh · u unlock · / scene"))

	return zone.Scan(sb.String())
}

func (m panelModel) renderAuth() string {
	v := m.view
	switch {
	case m.password.Focused():
		return m.password.View()
	case v.Phase == auth.Unlocked && !v.ControllerLocked:
		return onlineStyle.Render("Controls unlocked")
	case v.Phase == auth.Verifying:
		return statusStyle.Render("Verifying password…")
	}
	line := zone.Mark(unlockZone, titleStyle.Render("[ Unlock ]"))
	if v.ControllerLocked {
		line += " " + statusStyle.Render("controller session locked")
	}
	if v.AuthErr != "" {
		line += " " + errorStyle.Render(v.AuthErr)
	}
	return line
}

func (m panelModel) held(c input.Control) bool {
	return slices.Contains(m.view.Held, input.ID(c)) || slices.Contains(m.view.Holds, c)
}

func (m panelModel) button(c input.Control) string {
	style := buttonStyle
	switch {
	case m.held(c):
		style = activeStyle
	case c == input.PadStop:
		style = stopStyle
	}
	return zone.Mark(string(c), style.Render(buttonLabels[c]))
}

func (m panelModel) renderPad() string {
	pad := input.PadControls()
	var rows []string
	for i := 0; i < len(pad); i += 3 {
		row := make([]string, 0, 3)
		for _, c := range pad[i : i+3] {
			row = append(row, m.button(c))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m panelModel) renderServos() string {
	var row []string
	for _, c := range input.ServoControls() {
		row = append(row, m.button(c))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, row...)
}

func (m panelModel) renderStatus() string {
	v := m.view
	direction, led, distance, line := "-", "-", "-", "-"
	if v.Status != nil {
		direction = title.String(strings.ReplaceAll(v.Status.Direction, "_", " "))
		led = v.Status.LEDState
		if v.Status.LEDState == protocol.LEDActionOn {
			led = fmt.Sprintf("on (%d)", v.Status.LEDColor)
		}
	}
	if v.Sensors != nil {
		if v.Sensors.UltrasonicMM != nil {
			distance = fmt.Sprintf("%d mm", *v.Sensors.UltrasonicMM)
		}
		lt := v.Sensors.LineTrack
		line = fmt.Sprintf("%d%d%d%d", lt.X1, lt.X2, lt.X3, lt.X4)
	}
	buzzer := "off"
	if v.Buzzer {
		buzzer = "on"
	}

	rows := [][]string{
		{"Intent", title.String(strings.ReplaceAll(v.Intent.String(), "_", " ")), "Distance", distance},
		{"Motion", direction, "Line", line},
		{"Speed", fmt.Sprintf("%d", v.Speed), "LED", led},
		{"Pan", fmt.Sprintf("%d°", v.Pan), "Buzzer", buzzer},
		{"Tilt", fmt.Sprintf("%d°", v.Tilt), "", ""},
	}

	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col%2 == 0 {
				return labelStyle
			}
			return cellStyle
		}).
		Render()
}

func (m panelModel) renderDetection() string {
	v := m.view
	var sb strings.Builder

	state := "off"
	if v.DetectionEnabled {
		state = "on"
	}
	sb.WriteString("Detection " + state)
	if v.Detection != nil {
		if !v.Detection.YOLOAvailable {
			sb.WriteString(errorStyle.Render(" (unavailable)"))
		}
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  conf %.2f  %s", v.Detection.Confidence, strings.Join(v.Detection.Classes, ", "))))
	}
	if u := v.ClassUpdate; u != nil && !u.Success {
		sb.WriteString("\n" + errorStyle.Render(u.Error))
	}
	// Results are already empty while the toggle is off
	for _, d := range v.Results {
		sb.WriteString(fmt.Sprintf("\n  %s %.0f%%", d.Class, d.Confidence*100))
	}
	return boxStyle.Render(sb.String())
}

func (c *DriveCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.URL != "" {
		cfg.Panel.URL = c.URL
	}

	logs := logging.NewChannelWriter(logBufferLen)
	log := logging.NewWithOptions(cfg.LogLevel, logs, true)

	client := transport.New(transport.Config{URL: cfg.Panel.URL, Logger: log})
	sess, err := teleop.NewSession(client, teleop.Config{
		RepeatInterval: cfg.Panel.RepeatInterval(),
		ServoStep:      cfg.Panel.ServoStep,
		SpeedStep:      cfg.Panel.SpeedStep,
		Speed:          cfg.Panel.Speed,
		Clock:          teleop.SystemClock(),
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	defer client.Close()

	go func() {
		for in := range client.Events() {
			sess.HandleMessage(in)
		}
	}()

	zone.NewGlobal()
	window := cfg.Panel.ReleaseWindow()
	if window <= 0 {
		window = 600 * time.Millisecond
	}
	model := newPanelModel(sess, logs, window, cfg.Panel.Password)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithReportFocus())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running panel: %v\n", err)
		return err
	}
	return nil
}
