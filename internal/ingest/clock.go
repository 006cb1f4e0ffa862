package ingest

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

type seriesKey struct {
	tenantID uuid.UUID
	class    models.SensorClass
}

// SeriesClock hands out recorded_at values that never go backwards within a
// (tenant, class) series, even when the wall clock steps back or two writes
// land in the same microsecond.
type SeriesClock struct {
	now func() time.Time

	mu   sync.Mutex
	last map[seriesKey]time.Time
}

func NewSeriesClock(now func() time.Time) *SeriesClock {
	if now == nil {
		now = time.Now
	}
	return &SeriesClock{now: now, last: make(map[seriesKey]time.Time)}
}

// Next returns a timestamp strictly after the previous one issued for the series.
// Postgres stores microseconds, so values are truncated to that precision.
func (c *SeriesClock) Next(tenantID uuid.UUID, class models.SensorClass) time.Time {
	t := c.now().UTC().Truncate(time.Microsecond)
	key := seriesKey{tenantID: tenantID, class: class}

	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[key]; ok && !t.After(last) {
		t = last.Add(time.Microsecond)
	}
	c.last[key] = t
	return t
}
