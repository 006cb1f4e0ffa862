// Package ingest validates device readings, assigns their server timestamps,
// persists them, and keeps the in-memory proximity edge counters.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/metrics"
	"github.com/kiranshivaraju/sensordash/internal/store"
	"github.com/kiranshivaraju/sensordash/internal/telemetry"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// maxAppendAttempts bounds retries when another writer already holds the
// assigned recorded_at for the series.
const maxAppendAttempts = 3

const publishTimeout = 5 * time.Second

// TriggerStore persists the proximity alert flags set by the dashboard.
type TriggerStore interface {
	SetProximityTrigger(ctx context.Context, tenantID uuid.UUID, direction string, on bool) error
}

// IngestResult describes what a single sensor event produced.
// RecordID is zero for proximity levels, which update counters instead of a table.
type IngestResult struct {
	RecordID int64
	Edge     bool
	Counter  int64
}

// Gateway is the single write path for sensor data.
type Gateway struct {
	store     store.ReadingStore
	triggers  TriggerStore
	publisher models.DoorPublisher
	metrics   *metrics.Metrics
	timeout   time.Duration

	clock    *SeriesClock
	counters *EdgeCounters
	levels   *LevelDetector

	publishing sync.WaitGroup
}

// NewGateway creates a Gateway. publisher and m may be nil.
func NewGateway(st store.ReadingStore, triggers TriggerStore, publisher models.DoorPublisher, m *metrics.Metrics, timeout time.Duration) *Gateway {
	return &Gateway{
		store:     st,
		triggers:  triggers,
		publisher: publisher,
		metrics:   m,
		timeout:   timeout,
		clock:     NewSeriesClock(nil),
		counters:  NewEdgeCounters(),
		levels:    NewLevelDetector(),
	}
}

// UseClock replaces the series clock, mainly so tests can freeze time.
func (g *Gateway) UseClock(c *SeriesClock) {
	g.clock = c
}

// Ingest validates and stores one reading for tenantID.
//
// Door values must be 0 or 1 and vibration values finite and non-negative.
// Proximity values are digital levels: a 0 to 1 transition counts one edge
// and nothing is written to storage.
func (g *Gateway) Ingest(ctx context.Context, tenantID uuid.UUID, class models.SensorClass, value float64) (IngestResult, error) {
	start := time.Now()
	res, err := g.ingest(ctx, tenantID, class, value)
	g.metrics.ObserveIngest(string(class), ingestStatus(err), time.Since(start))
	return res, err
}

func (g *Gateway) ingest(ctx context.Context, tenantID uuid.UUID, class models.SensorClass, value float64) (IngestResult, error) {
	if tenantID == uuid.Nil {
		return IngestResult{}, telemetry.ErrUnauthorized
	}

	switch class {
	case models.SensorDoor:
		if value != 0 && value != 1 {
			return IngestResult{}, telemetry.Invalid("value", "must be 0 or 1 for door")
		}
	case models.SensorVibration:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return IngestResult{}, telemetry.Invalid("value", "must be a finite number")
		}
		if value < 0 {
			return IngestResult{}, telemetry.Invalid("value", "must not be negative")
		}
	case models.SensorProximityIn, models.SensorProximityOut:
		if value != 0 && value != 1 {
			return IngestResult{}, telemetry.Invalid("value", "must be 0 or 1 for proximity")
		}
		dir := class.Direction()
		if !g.levels.Observe(tenantID, dir, value == 1) {
			return IngestResult{Counter: g.counters.Load(tenantID, dir)}, nil
		}
		return IngestResult{Edge: true, Counter: g.RecordEdge(tenantID, dir)}, nil
	default:
		return IngestResult{}, telemetry.Invalid("sensorClass", fmt.Sprintf("%q is not a known sensor class", class))
	}

	r := &models.Reading{TenantID: tenantID, SensorClass: class, Value: value}
	id, err := g.append(ctx, r)
	if err != nil {
		return IngestResult{}, err
	}

	if class == models.SensorDoor {
		g.publishDoor(models.DoorEvent{
			TenantID:   tenantID,
			RecordID:   id,
			DoorState:  int(value),
			RecordedAt: r.RecordedAt,
		})
	}

	return IngestResult{RecordID: id}, nil
}

// RecordEdge counts one proximity edge and returns the running total.
func (g *Gateway) RecordEdge(tenantID uuid.UUID, dir models.Direction) int64 {
	n := g.counters.Increment(tenantID, dir)
	g.metrics.ObserveEdge(string(dir))
	return n
}

// ReadAndResetCounter returns the edges counted since the last reset and zeroes the counter.
func (g *Gateway) ReadAndResetCounter(tenantID uuid.UUID, dir models.Direction) int64 {
	return g.counters.Swap(tenantID, dir)
}

// Counter returns the current uncommitted edge count without resetting it.
func (g *Gateway) Counter(tenantID uuid.UUID, dir models.Direction) int64 {
	return g.counters.Load(tenantID, dir)
}

// CommitCount persists a customer count for dir. observedAt is the device's own
// timestamp and is kept alongside the server-assigned recorded_at.
func (g *Gateway) CommitCount(ctx context.Context, tenantID uuid.UUID, dir models.Direction, count int64, observedAt time.Time) (int64, error) {
	if tenantID == uuid.Nil {
		return 0, telemetry.ErrUnauthorized
	}
	if count < 0 {
		return 0, telemetry.Invalid("count", "must not be negative")
	}

	r := &models.Reading{TenantID: tenantID, SensorClass: dir.SensorClass(), Value: float64(count)}
	if !observedAt.IsZero() {
		t := observedAt.UTC()
		r.ObservedAt = &t
	}
	return g.append(ctx, r)
}

// SetTrigger stores the externally controlled proximity alert flag.
func (g *Gateway) SetTrigger(ctx context.Context, tenantID uuid.UUID, dir models.Direction, on bool) error {
	if tenantID == uuid.Nil {
		return telemetry.ErrUnauthorized
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.triggers.SetProximityTrigger(ctx, tenantID, string(dir), on); err != nil {
		return telemetry.Storage("set proximity trigger", err)
	}
	return nil
}

// Wait blocks until in-flight door notifications have finished.
func (g *Gateway) Wait() {
	g.publishing.Wait()
}

func (g *Gateway) append(ctx context.Context, r *models.Reading) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var err error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		r.RecordedAt = g.clock.Next(r.TenantID, r.SensorClass)

		var id int64
		id, err = g.store.AppendReading(ctx, r)
		switch {
		case err == nil:
			return id, nil
		case errors.Is(err, store.ErrDuplicateKey):
			continue
		case errors.Is(err, store.ErrUnknownTenant):
			return 0, telemetry.ErrUnauthorized
		default:
			return 0, telemetry.Storage("append reading", err)
		}
	}
	return 0, telemetry.Storage("append reading", err)
}

func (g *Gateway) publishDoor(event models.DoorEvent) {
	if g.publisher == nil {
		return
	}

	g.publishing.Add(1)
	go func() {
		defer g.publishing.Done()

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := g.publisher.Publish(ctx, event); err != nil {
			g.metrics.ObserveNotifyFailure(g.publisher.Name())
			slog.Warn("door notification failed",
				"tenant_id", event.TenantID,
				"record_id", event.RecordID,
				"backend", g.publisher.Name(),
				"error", err,
			)
		}
	}()
}

func ingestStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, telemetry.ErrValidation):
		return "invalid"
	case errors.Is(err, telemetry.ErrUnauthorized):
		return "unauthorized"
	default:
		return "storage_error"
	}
}
