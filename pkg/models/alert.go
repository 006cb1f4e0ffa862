package models

import "time"

// AlertStatus is the dashboard label for a sensor's latest state.
type AlertStatus string

const (
	StatusUnknown   AlertStatus = "Unknown"
	StatusOpen      AlertStatus = "Open"
	StatusClosed    AlertStatus = "Closed"
	StatusNormal    AlertStatus = "Normal"
	StatusDanger    AlertStatus = "Danger"
	StatusTriggered AlertStatus = "Triggered"
	StatusIdle      AlertStatus = "Idle"
)

// AlertState is derived on every evaluation and never stored.
type AlertState struct {
	SensorClass SensorClass `json:"sensor_class"`
	Alert       bool        `json:"alert"`
	Status      AlertStatus `json:"status"`
	Value       *float64    `json:"value,omitempty"`
	RecordedAt  *time.Time  `json:"timestamp,omitempty"`
}
