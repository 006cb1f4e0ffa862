package ingest

import (
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// LevelDetector turns a stream of 0/1 digital levels into rising edges.
// The initial level of every input is low.
type LevelDetector struct {
	mu     sync.Mutex
	levels map[counterKey]bool
}

func NewLevelDetector() *LevelDetector {
	return &LevelDetector{levels: make(map[counterKey]bool)}
}

// Observe records level and reports whether it is a low to high transition.
func (d *LevelDetector) Observe(tenantID uuid.UUID, dir models.Direction, high bool) bool {
	key := counterKey{tenantID: tenantID, direction: dir}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.levels[key]
	d.levels[key] = high
	return high && !prev
}
