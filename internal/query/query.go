// Package query serves time-window reads over a tenant's sensor history.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/metrics"
	"github.com/kiranshivaraju/sensordash/internal/store"
	"github.com/kiranshivaraju/sensordash/internal/telemetry"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

const (
	DefaultLatestN = 10
	MaxLatestN     = 100
)

// Order is the direction of a result set.
type Order string

const (
	NewestFirst Order = "desc"
	OldestFirst Order = "asc"
)

// Window selects which part of the history to read.
type Window struct {
	all bool
	n   int
}

// Latest selects the n most recent readings, newest first. n is clamped to [1, MaxLatestN].
func Latest(n int) Window {
	if n < 1 {
		n = 1
	}
	if n > MaxLatestN {
		n = MaxLatestN
	}
	return Window{n: n}
}

// All selects the whole retained history, oldest first.
func All() Window {
	return Window{all: true}
}

func (w Window) Order() Order {
	if w.all {
		return OldestFirst
	}
	return NewestFirst
}

func (w Window) String() string {
	if w.all {
		return "all"
	}
	return "latest"
}

// N returns the row bound for Latest windows and zero for All.
func (w Window) N() int {
	return w.n
}

// Engine reads windows through the store with a bounded timeout.
type Engine struct {
	store   store.ReadingStore
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewEngine(st store.ReadingStore, m *metrics.Metrics, timeout time.Duration) *Engine {
	return &Engine{store: st, metrics: m, timeout: timeout}
}

// Query returns the window for the tenant's class. An empty history is an
// empty, non-nil slice.
func (e *Engine) Query(ctx context.Context, tenantID uuid.UUID, class models.SensorClass, w Window) ([]models.Reading, error) {
	rows, err := e.query(ctx, tenantID, class, w)
	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.ObserveQuery(string(class), w.String(), status)
	return rows, err
}

func (e *Engine) query(ctx context.Context, tenantID uuid.UUID, class models.SensorClass, w Window) ([]models.Reading, error) {
	if _, ok := models.ParseSensorClass(string(class)); !ok {
		return nil, telemetry.Invalid("sensorClass", fmt.Sprintf("%q is not a known sensor class", class))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var (
		rows []models.Reading
		err  error
	)
	if w.all {
		rows, err = e.store.AllReadings(ctx, tenantID, class)
	} else {
		n := w.n
		if n == 0 {
			n = DefaultLatestN
		}
		rows, err = e.store.LatestReadings(ctx, tenantID, class, n)
	}
	if err != nil {
		return nil, telemetry.Storage("query "+w.String(), err)
	}
	if rows == nil {
		rows = []models.Reading{}
	}
	return rows, nil
}

// Chronological returns a copy of a newest-first slice in oldest-first order,
// the order charts plot in.
func Chronological(rows []models.Reading) []models.Reading {
	out := make([]models.Reading, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r
	}
	return out
}
