// Package protocol defines the messages exchanged between the panel and the
// robot controller.
//
// Every frame on the wire is a JSON text message of the form
//
//	{"event": "move", "data": {"direction": "forward"}}
package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound event names (panel -> controller).
const (
	EventAuthenticate    = "authenticate"
	EventMove            = "move"
	EventStop            = "stop"
	EventServo           = "servo"
	EventSpeed           = "speed"
	EventLED             = "led"
	EventBuzzer          = "buzzer"
	EventDetectionToggle = "detection_toggle"
	EventDetectionConfig = "detection_config"
	EventDetectionStatus = "detection_status"
	EventDetectionScene  = "detection_scene"
)

// Inbound event names (controller -> panel).
const (
	EventAuthResult           = "auth_result"
	EventAuthState            = "auth_state"
	EventStatus               = "status"
	EventSensors              = "sensors"
	EventDetectionState       = "detection_state"
	EventDetectionResults     = "detection_results"
	EventDetectionClassUpdate = "detection_class_update"

	// Connection lifecycle events are synthesized by the transport.
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Envelope is a single frame on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a decoded envelope received from the controller.
type Inbound struct {
	Event string
	Data  json.RawMessage
}

// Decode unmarshals the inbound payload into v.
func (in Inbound) Decode(v any) error {
	if len(in.Data) == 0 {
		return fmt.Errorf("decode %s: empty payload", in.Event)
	}
	if err := json.Unmarshal(in.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", in.Event, err)
	}
	return nil
}

// Marshal builds a wire frame for event with the given payload.
func Marshal(event string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		raw = b
	}
	data, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", event, err)
	}
	return data, nil
}

// Unmarshal parses a wire frame.
func Unmarshal(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Inbound{}, fmt.Errorf("parse envelope: %w", err)
	}
	if env.Event == "" {
		return Inbound{}, fmt.Errorf("parse envelope: missing event")
	}
	return Inbound{Event: env.Event, Data: env.Data}, nil
}

// NewInbound builds an Inbound from a payload value. Mostly useful in tests
// and for synthetic lifecycle events.
func NewInbound(event string, payload any) Inbound {
	in := Inbound{Event: event}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			in.Data = b
		}
	}
	return in
}
