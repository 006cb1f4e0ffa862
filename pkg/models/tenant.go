// Package models contains shared data models used across the sensordash codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an account scope. Every reading, counter and trigger flag belongs to exactly one tenant.
type Tenant struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
