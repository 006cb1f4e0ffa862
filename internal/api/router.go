package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/sensordash/internal/api/middleware"
	"github.com/kiranshivaraju/sensordash/internal/api/response"
	"github.com/kiranshivaraju/sensordash/internal/config"
	"github.com/kiranshivaraju/sensordash/internal/metrics"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Metrics   *metrics.Metrics
	Polling   config.PollingConfig

	HealthHandler http.HandlerFunc

	IngestHandler       http.HandlerFunc
	RecordEdgeHandler   http.HandlerFunc
	ResetCounterHandler http.HandlerFunc
	CommitCountHandler  http.HandlerFunc

	LatestReadings    http.HandlerFunc
	AllReadings       http.HandlerFunc
	AlertHandler      http.HandlerFunc
	CounterHandler    http.HandlerFunc
	PollConfigHandler http.HandlerFunc

	TriggerHandler      http.HandlerFunc
	CorrectCountHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if deps.Metrics != nil {
		r.Use(mw.Metrics(deps.Metrics))
	}

	// Public
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		// Devices and the counter aggregation process
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeIngest))
			r.Use(deps.RateLimit.Limit)

			r.Post("/sensor-events", orNotImplemented(deps.IngestHandler))
			r.Post("/proximity/{direction}/edges", orNotImplemented(deps.RecordEdgeHandler))
			r.Post("/proximity/{direction}/counter/reset", orNotImplemented(deps.ResetCounterHandler))
			r.Post("/proximity/{direction}/counts", orNotImplemented(deps.CommitCountHandler))
		})

		// Dashboard polls
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeRead))

			r.With(mw.PollHints(deps.Polling.Readings)).
				Get("/readings/{sensorClass}/latest", orNotImplemented(deps.LatestReadings))
			r.With(mw.PollHints(deps.Polling.Logs)).
				Get("/readings/{sensorClass}/all", orNotImplemented(deps.AllReadings))
			r.With(mw.PollHints(deps.Polling.Alerts)).
				Get("/alerts/{sensorClass}", orNotImplemented(deps.AlertHandler))
			r.With(mw.PollHints(deps.Polling.Readings)).
				Get("/proximity/{direction}/counter", orNotImplemented(deps.CounterHandler))
			r.Get("/poll-config", orNotImplemented(deps.PollConfigHandler))
		})

		// Dashboard controls
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeControl))

			r.Post("/proximity/{direction}/trigger", orNotImplemented(deps.TriggerHandler))
			r.Patch("/customers/{direction}/{id}", orNotImplemented(deps.CorrectCountHandler))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
