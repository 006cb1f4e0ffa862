package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/sensordash/internal/api/response"
	"github.com/kiranshivaraju/sensordash/internal/config"
	"github.com/kiranshivaraju/sensordash/internal/retention"
)

const healthCheckTimeout = 2 * time.Second

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SharedCache is pinged for health and holds the last purge run recorded by any instance.
type SharedCache interface {
	Pinger
	retention.Getter
}

// RetentionStatus reports the local scheduler's state.
type RetentionStatus interface {
	State() retention.State
	NextRun() time.Time
	LastRun() (retention.Run, bool)
}

type retentionView struct {
	State   string         `json:"state"`
	NextRun *time.Time     `json:"next_run,omitempty"`
	LastRun *retention.Run `json:"last_run,omitempty"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /health. sched may be nil.
func NewHealthHandler(db Pinger, c SharedCache, sched RetentionStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(ctx); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(ctx); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		body := map[string]any{
			"status":   "ok",
			"services": checks,
		}
		if sched != nil {
			body["retention"] = retentionStatus(ctx, c, sched)
		}
		response.JSON(w, body)
	}
}

// retentionStatus prefers the run shared through the cache, since the
// firing instance may not be the one answering.
func retentionStatus(ctx context.Context, c retention.Getter, sched RetentionStatus) retentionView {
	view := retentionView{State: sched.State().String()}
	if next := sched.NextRun(); !next.IsZero() {
		view.NextRun = &next
	}

	if run, found, err := retention.LoadLastRun(ctx, c); err == nil && found {
		view.LastRun = &run
	} else if run, ok := sched.LastRun(); ok {
		view.LastRun = &run
	}
	return view
}

// NewPollConfigHandler returns an http.HandlerFunc for GET /poll-config with
// the canonical poll interval for each data class, in seconds.
func NewPollConfigHandler(cfg config.PollingConfig) http.HandlerFunc {
	body := map[string]int{
		"readingsSeconds": seconds(cfg.Readings),
		"alertsSeconds":   seconds(cfg.Alerts),
		"logsSeconds":     seconds(cfg.Logs),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, body)
	}
}

func seconds(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}
