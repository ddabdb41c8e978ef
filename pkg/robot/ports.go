package robot

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// ListPorts returns the serial ports a gimbal bus could be on. Bluetooth
// ports on macOS are skipped.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	return filterPorts(ports), nil
}

func filterPorts(ports []string) []string {
	out := make([]string, 0, len(ports))
	for _, port := range ports {
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		out = append(out, port)
	}
	return out
}
