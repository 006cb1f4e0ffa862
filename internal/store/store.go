package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrUnknownTenant is returned when a write references a tenant that does not exist.
var ErrUnknownTenant = errors.New("unknown tenant")

// ErrUnknownClass is returned for a sensor class with no backing table.
var ErrUnknownClass = errors.New("unknown sensor class")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	ReadingStore
	PurgeReadings(ctx context.Context, class models.SensorClass) (int64, error)
	UpdateCountValue(ctx context.Context, tenantID uuid.UUID, class models.SensorClass, id int64, value float64) error
}

// ReadingStore is the narrow view of the time-series tables used on the request path.
type ReadingStore interface {
	// AppendReading inserts r and returns its id. RecordedAt must already be set.
	AppendReading(ctx context.Context, r *models.Reading) (int64, error)
	// LatestReadings returns at most n rows newest first.
	LatestReadings(ctx context.Context, tenantID uuid.UUID, class models.SensorClass, n int) ([]models.Reading, error)
	// AllReadings returns every row for the tenant oldest first.
	AllReadings(ctx context.Context, tenantID uuid.UUID, class models.SensorClass) ([]models.Reading, error)
}

var classTables = map[models.SensorClass]string{
	models.SensorDoor:         "door_readings",
	models.SensorVibration:    "vibration_readings",
	models.SensorProximityIn:  "customer_in_counts",
	models.SensorProximityOut: "customer_out_counts",
}

// TableFor returns the table backing class. Table names are never built from request input.
func TableFor(class models.SensorClass) (string, error) {
	t, ok := classTables[class]
	if !ok {
		return "", ErrUnknownClass
	}
	return t, nil
}
