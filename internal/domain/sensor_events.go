package domain

import "encoding/json"

const MessageTypeSpaceOccupancy = "space_occupancy"

// GenericSensorEvent is parsed first to route on message_type.
type GenericSensorEvent struct {
	DeviceID    string          `json:"device_id"`
	MessageType string          `json:"message_type"`
	Timestamp   string          `json:"timestamp"` // RFC 3339, set by the device
	RawPayload  json.RawMessage `json:"-"`
}

// SpaceOccupancyEvent is reported by a bay sensor when a vehicle arrives or leaves.
type SpaceOccupancyEvent struct {
	GenericSensorEvent
	SpaceNumber  string `json:"space_number"`
	Occupied     bool   `json:"occupied"`
	SessionID    string `json:"session_id"`
	Plate        string `json:"plate,omitempty"`
	VehicleClass string `json:"vehicle_class,omitempty"`
}
