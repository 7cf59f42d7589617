package types

import "time"

// Telemetry represents a telemetry message from a station
type Telemetry struct {
	StationID   string    `json:"station_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature_c,omitempty"`
	Humidity    *float64  `json:"humidity_pct,omitempty"`
	Pressure    *float64  `json:"pressure_hpa,omitempty"`
	RSSI        *int      `json:"rssi_dbm,omitempty"`
	Address     string    `json:"address,omitempty"`
	Sequence    *int      `json:"sequence,omitempty"`
}

// StationHealth is the retained last-seen state of a station.
type StationHealth struct {
	StationID string    `json:"station_id"`
	LastSeen  time.Time `json:"last_seen"`
	Healthy   bool      `json:"healthy"`
}

// TelemetryHandler consumes telemetry produced by a source (BLE, local sensor).
type TelemetryHandler func(Telemetry) error
