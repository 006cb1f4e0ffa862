package ingest

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

type counterKey struct {
	tenantID  uuid.UUID
	direction models.Direction
}

// EdgeCounters holds the uncommitted edge count per tenant and direction.
// Counters live in memory only; a restart loses whatever was not committed.
type EdgeCounters struct {
	counters sync.Map // counterKey -> *atomic.Int64
}

func NewEdgeCounters() *EdgeCounters {
	return &EdgeCounters{}
}

func (c *EdgeCounters) counter(tenantID uuid.UUID, dir models.Direction) *atomic.Int64 {
	key := counterKey{tenantID: tenantID, direction: dir}
	if v, ok := c.counters.Load(key); ok {
		return v.(*atomic.Int64)
	}
	v, _ := c.counters.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Increment adds one edge and returns the new value.
func (c *EdgeCounters) Increment(tenantID uuid.UUID, dir models.Direction) int64 {
	return c.counter(tenantID, dir).Add(1)
}

// Swap returns the current value and sets it to zero in one step, so an edge
// landing concurrently is counted in exactly one window.
func (c *EdgeCounters) Swap(tenantID uuid.UUID, dir models.Direction) int64 {
	return c.counter(tenantID, dir).Swap(0)
}

func (c *EdgeCounters) Load(tenantID uuid.UUID, dir models.Direction) int64 {
	return c.counter(tenantID, dir).Load()
}
