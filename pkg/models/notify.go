package models

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DoorEvent is broadcast after a door reading has been persisted.
type DoorEvent struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	RecordID   int64     `json:"record_id"`
	DoorState  int       `json:"door_state"`
	RecordedAt time.Time `json:"recorded_at"`
}

// DoorPublisher delivers door state changes to live subscribers.
// Delivery is best effort; a failed publish never fails the write that caused it.
type DoorPublisher interface {
	Publish(ctx context.Context, event DoorEvent) error
	// Name returns the backend identifier (e.g., "mqtt", "redis").
	Name() string
	Close() error
}
