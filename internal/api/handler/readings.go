package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/api/response"
	"github.com/kiranshivaraju/sensordash/internal/query"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// Querier reads a tenant's time series.
type Querier interface {
	Query(ctx context.Context, tenantID uuid.UUID, class models.SensorClass, w query.Window) ([]models.Reading, error)
}

type readingView struct {
	ID         int64      `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Value      float64    `json:"value"`
	ObservedAt *time.Time `json:"observedAt,omitempty"`
}

type readingsResponse struct {
	SensorClass models.SensorClass `json:"sensorClass"`
	Window      string             `json:"window"`
	Order       query.Order        `json:"order"`
	Readings    []readingView      `json:"readings"`
}

// NewLatestReadingsHandler returns an http.HandlerFunc for
// GET /readings/{sensorClass}/latest?n=N. Readings are newest first.
func NewLatestReadingsHandler(q Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := query.DefaultLatestN
		if raw := r.URL.Query().Get("n"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 {
				badRequest(w, "n must be a positive integer")
				return
			}
			n = v
		}
		serveReadings(w, r, q, query.Latest(n))
	}
}

// NewAllReadingsHandler returns an http.HandlerFunc for
// GET /readings/{sensorClass}/all. Readings are oldest first.
func NewAllReadingsHandler(q Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveReadings(w, r, q, query.All())
	}
}

func serveReadings(w http.ResponseWriter, r *http.Request, q Querier, win query.Window) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	class, ok := models.ParseSensorClass(chi.URLParam(r, "sensorClass"))
	if !ok {
		badRequest(w, "sensorClass must be one of door, vibration, proximityIn, proximityOut")
		return
	}

	rows, err := q.Query(r.Context(), tenantID, class, win)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	views := make([]readingView, len(rows))
	for i, row := range rows {
		views[i] = readingView{
			ID:         row.ID,
			Timestamp:  row.RecordedAt,
			Value:      row.Value,
			ObservedAt: row.ObservedAt,
		}
	}

	response.JSON(w, readingsResponse{
		SensorClass: class,
		Window:      win.String(),
		Order:       win.Order(),
		Readings:    views,
	})
}
