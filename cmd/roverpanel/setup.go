package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/roverpanel/pkg/config"
	"github.com/gwillem/roverpanel/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	SkipGimbal bool `long:"skip-gimbal" description:"Do not scan for or calibrate a camera gimbal"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Rover Panel Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Step 1: connection and passwords
	if err := askSettings(cfg); err != nil {
		fmt.Println()
		return nil
	}

	// Save before touching hardware
	if err := cfg.SaveTo(opts.Config); err != nil {
		return err
	}

	// Step 2: gimbal
	if !c.SkipGimbal {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Camera Gimbal ━━━"))
		fmt.Println()
		if port := scanForGimbal(); port != "" {
			cfg.Controller.GimbalPort = port
			cal, err := calibrateGimbal(port)
			if err != nil {
				return err
			}
			cfg.Controller.Calibration = cal
			if err := cfg.SaveTo(opts.Config); err != nil {
				return err
			}
		}
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start the controller with: " + headerStyle.Render("roverpanel serve"))
	fmt.Println("Drive with:                " + headerStyle.Render("roverpanel drive"))
	return nil
}

func askSettings(cfg *config.Config) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Controller URL").
				Description("Websocket endpoint the panel connects to").
				Value(&cfg.Panel.URL).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "ws://") && !strings.HasPrefix(s, "wss://") {
						return fmt.Errorf("must start with ws:// or wss://")
					}
					return nil
				}),
			huh.NewInput().
				Title("Panel password").
				Description("Sent automatically on connect; leave empty to type it in the panel").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Panel.Password),
		).Title("Panel"),
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Value(&cfg.Controller.Listen),
			huh.NewInput().
				Title("Admin password").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Controller.Password).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("password required")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Object detection available?").
				Value(&cfg.Controller.DetectionAvailable),
			huh.NewInput().
				Title("Detection model").
				Description("World models accept custom classes").
				Value(&cfg.Controller.Model),
		).Title("Controller"),
	)
	return form.Run()
}

// scanForGimbal probes every serial port for the pan and tilt servos and
// asks which one to use. It returns "" when there is none or the user
// skips.
func scanForGimbal() string {
	fmt.Println("Scanning for a pan/tilt gimbal...")

	ports, err := robot.ListPorts()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return ""
	}

	var found []string
	for _, port := range ports {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := robot.ProbeGimbal(ctx, port)
		cancel()
		if err == nil && ok {
			fmt.Printf("  Found gimbal on %s\n", port)
			found = append(found, port)
		}
	}

	if len(found) == 0 {
		fmt.Println("No gimbal found. The controller will simulate the servos.")
		return ""
	}

	options := make([]huh.Option[string], 0, len(found)+1)
	for _, port := range found {
		options = append(options, huh.NewOption(port, port))
	}
	options = append(options, huh.NewOption("Skip, simulate the servos", ""))

	port := found[0]
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the camera gimbal on?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return port
}

func calibrateGimbal(port string) (robot.Calibration, error) {
	fmt.Printf("Calibrating gimbal on %s\n", port)
	fmt.Println()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	found, err := bus.Scan(ctx, 1, 2)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("scan bus: %w", err)
	}

	ctx = context.Background()
	servoMap := make(map[robot.MotorName]*feetech.Servo)
	for _, s := range found {
		name, ok := map[int]robot.MotorName{1: robot.ServoPan, 2: robot.ServoTilt}[s.ID]
		if !ok {
			continue
		}
		servo := feetech.NewServo(bus, s.ID, s.Model)
		// Disable torque so the mount can be moved by hand
		servo.Disable(ctx)
		servoMap[name] = servo
	}
	if len(servoMap) != 2 {
		return nil, fmt.Errorf("expected pan and tilt servos on %s", port)
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Turn the camera fully left and right, then fully up and down.")
	fmt.Println()

	servos := robot.GimbalServos()
	curPositions := make(map[robot.MotorName]int)
	minPositions := make(map[robot.MotorName]int)
	maxPositions := make(map[robot.MotorName]int)
	for _, name := range servos {
		pos, _ := servoMap[name].Position(ctx)
		curPositions[name] = pos
		minPositions[name] = pos
		maxPositions[name] = pos
	}

	model := newCalibrationModel(servos, servoMap, curPositions, minPositions, maxPositions)
	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("run calibration: %w", err)
	}
	cm := finalModel.(calibrationModel)

	var inverted []robot.MotorName
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[robot.MotorName]().
				Title("Mounted the other way round?").
				Description("Selected servos get their direction mirrored").
				Options(
					huh.NewOption("pan", robot.ServoPan),
					huh.NewOption("tilt", robot.ServoTilt),
				).
				Value(&inverted),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	calibration := make(robot.Calibration)
	for i, name := range servos {
		sc := robot.ServoCalibration{
			ID:       i + 1,
			RangeMin: cm.minPositions[name],
			RangeMax: cm.maxPositions[name],
		}
		for _, inv := range inverted {
			if inv == name {
				sc.DriveMode = 1
			}
		}
		calibration[name] = sc
	}

	fmt.Println(successStyle.Render("Gimbal calibrated."))
	return calibration, nil
}

// Calibration TUI model
type calibrationModel struct {
	servos       []robot.MotorName
	servoMap     map[robot.MotorName]*feetech.Servo
	curPositions map[robot.MotorName]int
	minPositions map[robot.MotorName]int
	maxPositions map[robot.MotorName]int
	quitting     bool
}

type tickMsg time.Time

func newCalibrationModel(
	servos []robot.MotorName,
	servoMap map[robot.MotorName]*feetech.Servo,
	curPositions, minPositions, maxPositions map[robot.MotorName]int,
) calibrationModel {
	return calibrationModel{
		servos:       servos,
		servoMap:     servoMap,
		curPositions: curPositions,
		minPositions: minPositions,
		maxPositions: maxPositions,
	}
}

func calibrationTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return calibrationTick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		ctx := context.Background()
		for _, name := range m.servos {
			pos, err := m.servoMap[name].Position(ctx)
			if err != nil {
				continue
			}
			m.observe(name, pos)
		}
		return m, calibrationTick()
	}

	return m, nil
}

func (m calibrationModel) observe(name robot.MotorName, pos int) {
	m.curPositions[name] = pos
	if pos < m.minPositions[name] {
		m.minPositions[name] = pos
	}
	if pos > m.maxPositions[name] {
		m.maxPositions[name] = pos
	}
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableServoStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.servos))
	ranges := make([]int, 0, len(m.servos))
	for _, name := range m.servos {
		rangeSize := m.maxPositions[name] - m.minPositions[name]
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", m.curPositions[name]),
			fmt.Sprintf("%d", m.minPositions[name]),
			fmt.Sprintf("%d", m.maxPositions[name]),
			fmt.Sprintf("%d", rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Servo", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableServoStyle
			case 1:
				return tableCurrentStyle
			case 4:
				// half a turn is plenty for a camera mount
				if row >= 0 && row < len(ranges) && ranges[row] > 1000 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))

	return sb.String()
}
