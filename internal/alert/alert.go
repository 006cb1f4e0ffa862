// Package alert derives dashboard alert states from the most recent reading.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/metrics"
	"github.com/kiranshivaraju/sensordash/internal/telemetry"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// VibrationThreshold is the magnitude at or above which vibration raises an alert.
const VibrationThreshold = 70.0

// LatestReader returns at most n readings newest first.
type LatestReader interface {
	LatestReadings(ctx context.Context, tenantID uuid.UUID, class models.SensorClass, n int) ([]models.Reading, error)
}

// TriggerReader returns the proximity alert flag set from the dashboard.
type TriggerReader interface {
	GetProximityTrigger(ctx context.Context, tenantID uuid.UUID, direction string) (bool, error)
}

// Derive maps the latest reading of class to an AlertState. latest may be nil.
// Proximity alerts are not value driven; see Evaluator.
func Derive(class models.SensorClass, latest *models.Reading) models.AlertState {
	state := models.AlertState{SensorClass: class, Status: models.StatusUnknown}
	if latest == nil {
		return state
	}

	v := latest.Value
	at := latest.RecordedAt
	state.Value = &v
	state.RecordedAt = &at

	switch class {
	case models.SensorDoor:
		if v == 0 {
			state.Status = models.StatusClosed
		} else {
			state.Status = models.StatusOpen
		}
	case models.SensorVibration:
		if v >= VibrationThreshold {
			state.Alert = true
			state.Status = models.StatusDanger
		} else {
			state.Status = models.StatusNormal
		}
	case models.SensorProximityIn, models.SensorProximityOut:
		state.Status = models.StatusIdle
	}
	return state
}

// Evaluator reads the latest reading per class and applies Derive.
type Evaluator struct {
	readings LatestReader
	triggers TriggerReader
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func NewEvaluator(readings LatestReader, triggers TriggerReader, m *metrics.Metrics, timeout time.Duration) *Evaluator {
	return &Evaluator{readings: readings, triggers: triggers, metrics: m, timeout: timeout}
}

// Evaluate returns the alert state for the tenant's class. A class with no
// readings yields no alert and status Unknown. Storage failures are returned
// wrapped in telemetry.ErrStorage so callers can degrade to Unknown.
func (e *Evaluator) Evaluate(ctx context.Context, tenantID uuid.UUID, class models.SensorClass) (models.AlertState, error) {
	state, err := e.evaluate(ctx, tenantID, class)
	e.metrics.ObserveAlert(string(class), result(state, err))
	return state, err
}

func (e *Evaluator) evaluate(ctx context.Context, tenantID uuid.UUID, class models.SensorClass) (models.AlertState, error) {
	if _, ok := models.ParseSensorClass(string(class)); !ok {
		return models.AlertState{}, telemetry.Invalid("sensorClass", fmt.Sprintf("%q is not a known sensor class", class))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.readings.LatestReadings(ctx, tenantID, class, 1)
	if err != nil {
		return Derive(class, nil), telemetry.Storage("latest reading", err)
	}

	var latest *models.Reading
	if len(rows) > 0 {
		latest = &rows[0]
	}
	state := Derive(class, latest)

	if class.IsProximity() {
		on, err := e.triggers.GetProximityTrigger(ctx, tenantID, string(class.Direction()))
		if err != nil {
			return Derive(class, nil), telemetry.Storage("proximity trigger", err)
		}
		state.Alert = on
		if on {
			state.Status = models.StatusTriggered
		} else if latest != nil {
			state.Status = models.StatusIdle
		}
	}
	return state, nil
}

func result(state models.AlertState, err error) string {
	switch {
	case err != nil:
		return "error"
	case state.Alert:
		return "alert"
	case state.Status == models.StatusUnknown:
		return "unknown"
	default:
		return "clear"
	}
}
