package models

import (
	"time"

	"github.com/google/uuid"
)

// SensorClass identifies one time series kind. Each class has its own table.
type SensorClass string

const (
	SensorDoor         SensorClass = "door"
	SensorVibration    SensorClass = "vibration"
	SensorProximityIn  SensorClass = "proximityIn"
	SensorProximityOut SensorClass = "proximityOut"
)

// SensorClasses lists every known class in a stable order.
var SensorClasses = []SensorClass{SensorDoor, SensorVibration, SensorProximityIn, SensorProximityOut}

// ParseSensorClass returns the class named by s.
func ParseSensorClass(s string) (SensorClass, bool) {
	for _, c := range SensorClasses {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// IsProximity reports whether c is one of the customer counter classes.
func (c SensorClass) IsProximity() bool {
	return c == SensorProximityIn || c == SensorProximityOut
}

// Direction returns the proximity direction for c. Only meaningful when IsProximity is true.
func (c SensorClass) Direction() Direction {
	if c == SensorProximityOut {
		return DirectionOut
	}
	return DirectionIn
}

// Direction is the side of an entry/exit proximity pair.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ParseDirection returns the direction named by s.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case DirectionIn, DirectionOut:
		return Direction(s), true
	}
	return "", false
}

// SensorClass maps a direction to the class holding its committed customer counts.
func (d Direction) SensorClass() SensorClass {
	if d == DirectionOut {
		return SensorProximityOut
	}
	return SensorProximityIn
}

// Reading is one immutable row of a tenant's time series.
// RecordedAt is assigned by the server; ObservedAt is only set for committed
// customer counts, where the aggregation process reports when it counted.
type Reading struct {
	ID          int64       `db:"id"          json:"id"`
	TenantID    uuid.UUID   `db:"tenant_id"   json:"-"`
	SensorClass SensorClass `db:"-"           json:"sensor_class"`
	Value       float64     `db:"value"       json:"value"`
	RecordedAt  time.Time   `db:"recorded_at" json:"timestamp"`
	ObservedAt  *time.Time  `db:"observed_at" json:"observed_at,omitempty"`
}
