// Package retention runs the daily purge of the sensor time-series tables.
package retention

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kiranshivaraju/sensordash/internal/cache"
	"github.com/kiranshivaraju/sensordash/internal/metrics"
	"github.com/kiranshivaraju/sensordash/internal/store"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// lastRunTTL keeps the shared last-run record around for a little over two cycles.
const lastRunTTL = 50 * time.Hour

// State is the scheduler's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateFiring
)

func (s State) String() string {
	if s == StateFiring {
		return "firing"
	}
	return "idle"
}

// Purger removes every row of a class's table across all tenants.
type Purger interface {
	PurgeReadings(ctx context.Context, class models.SensorClass) (int64, error)
}

// Recorder shares the last run with other instances. Optional.
type Recorder interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config describes when and what to purge.
type Config struct {
	Hour         int
	Minute       int
	Location     *time.Location
	Classes      []models.SensorClass
	TableTimeout time.Duration
}

// TableResult is the outcome of purging one table.
type TableResult struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
	Error string `json:"error,omitempty"`
}

// Run summarizes one firing.
type Run struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Tables     []TableResult `json:"tables"`
}

// OK reports whether every table was purged.
func (r Run) OK() bool {
	for _, t := range r.Tables {
		if t.Error != "" {
			return false
		}
	}
	return true
}

// Scheduler fires once a day at Config.Hour:Config.Minute in Config.Location.
// It takes no lock against ingestion: rows written while a table is being
// purged may or may not survive.
type Scheduler struct {
	purger   Purger
	recorder Recorder
	metrics  *metrics.Metrics
	cfg      Config

	now   func() time.Time
	timer func(d time.Duration) (<-chan time.Time, func() bool)

	state atomic.Int32

	mu      sync.RWMutex
	lastRun *Run
	nextRun time.Time
}

// NewScheduler creates a Scheduler. recorder and m may be nil.
func NewScheduler(p Purger, recorder Recorder, m *metrics.Metrics, cfg Config) *Scheduler {
	return &Scheduler{
		purger:   p,
		recorder: recorder,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
		timer: func(d time.Duration) (<-chan time.Time, func() bool) {
			t := time.NewTimer(d)
			return t.C, t.Stop
		},
	}
}

// NextFiring returns the first hh:mm in loc strictly after now. Days are
// stepped by calendar date so DST transitions keep the wall-clock time.
func NextFiring(now time.Time, hh, mm int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hh, mm, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hh, mm, 0, 0, loc)
	}
	return next
}

// Run blocks until ctx is cancelled, firing at each scheduled time.
// A failed firing is logged and the scheduler waits for the next day.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("retention scheduler started",
		"purge_at", time.Date(0, 1, 1, s.cfg.Hour, s.cfg.Minute, 0, 0, time.UTC).Format("15:04"),
		"timezone", s.cfg.Location.String(),
		"tables", s.tables(),
	)

	// fired is the last slot purged. The next slot is always strictly after
	// it, so a wall clock stepped back across midnight cannot fire it twice.
	var fired time.Time
	for {
		now := s.now()
		from := now
		if !fired.IsZero() && fired.After(from) {
			from = fired
		}
		next := NextFiring(from, s.cfg.Hour, s.cfg.Minute, s.cfg.Location)
		s.mu.Lock()
		s.nextRun = next
		s.mu.Unlock()

		wait := next.Sub(now)
		c, stop := s.timer(wait)
		slog.Debug("retention purge scheduled", "next_run", next, "wait", wait.String())

		select {
		case <-ctx.Done():
			stop()
			slog.Info("retention scheduler stopped")
			return
		case <-c:
			s.Fire(ctx)
			fired = next
		}
	}
}

// Fire purges every configured table once. Each table gets its own timeout and
// a failure on one table does not stop the others. Nothing is retried within a
// firing. Returns false when a firing was already in progress.
func (s *Scheduler) Fire(ctx context.Context) (Run, bool) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateFiring)) {
		slog.Warn("retention firing skipped, previous firing still running")
		return Run{}, false
	}
	defer s.state.Store(int32(StateIdle))

	run := Run{StartedAt: s.now().UTC()}
	for _, class := range s.cfg.Classes {
		run.Tables = append(run.Tables, s.purge(ctx, class))
	}
	run.FinishedAt = s.now().UTC()

	s.mu.Lock()
	s.lastRun = &run
	s.mu.Unlock()
	s.record(ctx, run)

	if run.OK() {
		slog.Info("retention purge completed", "tables", len(run.Tables))
	} else {
		slog.Error("retention purge completed with failures", "tables", len(run.Tables))
	}
	return run, true
}

func (s *Scheduler) purge(ctx context.Context, class models.SensorClass) TableResult {
	table, err := store.TableFor(class)
	if err != nil {
		table = string(class)
	}
	res := TableResult{Table: table}

	tctx, cancel := context.WithTimeout(ctx, s.cfg.TableTimeout)
	defer cancel()

	rows, err := s.purger.PurgeReadings(tctx, class)
	if err != nil {
		res.Error = err.Error()
		s.metrics.ObservePurge(table, "error", 0)
		slog.Error("retention purge failed", "table", table, "error", err)
		return res
	}

	res.Rows = rows
	s.metrics.ObservePurge(table, "success", rows)
	slog.Info("retention purge table done", "table", table, "rows", rows)
	return res
}

func (s *Scheduler) record(ctx context.Context, run Run) {
	if s.recorder == nil {
		return
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, s.cfg.TableTimeout)
	defer cancel()
	if err := s.recorder.Set(rctx, cache.LastPurgeKey(), payload, lastRunTTL); err != nil {
		slog.Warn("failed to record retention run", "error", err)
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// LastRun returns the most recent firing seen by this instance.
func (s *Scheduler) LastRun() (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return Run{}, false
	}
	return *s.lastRun, true
}

// NextRun returns the time the scheduler is currently waiting for.
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRun
}

func (s *Scheduler) tables() []string {
	out := make([]string, 0, len(s.cfg.Classes))
	for _, c := range s.cfg.Classes {
		if t, err := store.TableFor(c); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// Getter reads a shared value. cache.Cache satisfies it.
type Getter interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// LoadLastRun reads the last run recorded by any instance.
func LoadLastRun(ctx context.Context, g Getter) (Run, bool, error) {
	raw, found, err := g.Get(ctx, cache.LastPurgeKey())
	if err != nil || !found {
		return Run{}, false, err
	}
	var run Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

// DefaultClasses returns the classes purged daily. Customer counts are only
// included when asked for explicitly.
func DefaultClasses(includeCustomerCounts bool) []models.SensorClass {
	classes := []models.SensorClass{models.SensorDoor, models.SensorVibration}
	if includeCustomerCounts {
		classes = append(classes, models.SensorProximityIn, models.SensorProximityOut)
	}
	return classes
}
