// Package roverpanel is a teleoperation panel for a wheeled camera rover.
//
// The panel turns keyboard, mouse and focus events into drive, gimbal and
// detection commands, sends them to the rover controller over a WebSocket,
// and keeps a local picture of the robot in sync with what the controller
// reports back.
//
// # Installation
//
//	go install github.com/gwillem/roverpanel/cmd/roverpanel@latest
//
// # Usage
//
// Run setup once to write roverpanel.json and, optionally, calibrate the
// pan/tilt gimbal:
//
//	roverpanel setup
//
// Start the controller next to the hardware:
//
//	roverpanel serve
//
// Then drive it from a terminal:
//
//	roverpanel drive --url ws://rover.local:5000/ws
//
// # Packages
//
//   - cmd/roverpanel: CLI with setup, serve, drive, ports, scenes and access commands
//   - pkg/input: key and touch normalization into held controls
//   - pkg/intent: held controls to a single drive intent
//   - pkg/auth: session unlock gate
//   - pkg/teleop: command dispatcher and hold-to-repeat timers
//   - pkg/reconcile: panel view of robot state
//   - pkg/protocol: message envelope and payloads
//   - pkg/transport: reconnecting WebSocket client
//   - pkg/controller: WebSocket controller serving the rover
//   - pkg/robot: wheel mapping, gimbal servos and calibration
//   - pkg/store: access log and scene context database
//   - pkg/config: JSON file and environment configuration
//   - pkg/logging: zerolog setup
package roverpanel
