package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/roverpanel/pkg/robot"
)

type PortsCommand struct {
	Probe bool `long:"probe" description:"Scan each port for pan/tilt servos"`
}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := robot.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	rows := make([][]string, 0, len(ports))
	for _, port := range ports {
		row := []string{port}
		if c.Probe {
			row = append(row, probeLabel(port))
		}
		rows = append(rows, row)
	}

	headers := []string{"Port"}
	if c.Probe {
		headers = append(headers, "Gimbal")
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Println(t.Render())
	return nil
}

func probeLabel(port string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, err := robot.ProbeGimbal(ctx, port)
	switch {
	case err != nil:
		return dimStyle.Render("error: " + err.Error())
	case ok:
		return successStyle.Render("pan/tilt found")
	default:
		return dimStyle.Render("-")
	}
}
