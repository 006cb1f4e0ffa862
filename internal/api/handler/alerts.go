package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/api/response"
	"github.com/kiranshivaraju/sensordash/internal/telemetry"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// AlertEvaluator derives the current alert state for a class.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, tenantID uuid.UUID, class models.SensorClass) (models.AlertState, error)
}

type alertResponse struct {
	SensorClass models.SensorClass `json:"sensorClass"`
	Alert       bool               `json:"alert"`
	Status      models.AlertStatus `json:"status"`
	Value       *float64           `json:"value,omitempty"`
	Timestamp   *time.Time         `json:"timestamp,omitempty"`
	Degraded    bool               `json:"degraded,omitempty"`
}

// NewAlertHandler returns an http.HandlerFunc for GET /alerts/{sensorClass}.
//
// A storage failure does not fail the poll: the dashboard gets alert false,
// status Unknown and degraded true, and tries again on its next tick.
func NewAlertHandler(e AlertEvaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(w, r)
		if !ok {
			return
		}

		class, ok := models.ParseSensorClass(chi.URLParam(r, "sensorClass"))
		if !ok {
			badRequest(w, "sensorClass must be one of door, vibration, proximityIn, proximityOut")
			return
		}

		state, err := e.Evaluate(r.Context(), tenantID, class)
		degraded := false
		if err != nil {
			if !errors.Is(err, telemetry.ErrStorage) {
				writeServiceError(w, r, err)
				return
			}
			slog.Warn("alert evaluation degraded",
				"tenant_id", tenantID,
				"sensor_class", class,
				"error", err,
			)
			degraded = true
			state = models.AlertState{SensorClass: class, Status: models.StatusUnknown}
		}

		response.JSON(w, alertResponse{
			SensorClass: class,
			Alert:       state.Alert,
			Status:      state.Status,
			Value:       state.Value,
			Timestamp:   state.RecordedAt,
			Degraded:    degraded,
		})
	}
}
