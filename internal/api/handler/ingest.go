package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/api/response"
	"github.com/kiranshivaraju/sensordash/internal/ingest"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// Ingester is the write path the sensor-events handler depends on.
type Ingester interface {
	Ingest(ctx context.Context, tenantID uuid.UUID, class models.SensorClass, value float64) (ingest.IngestResult, error)
}

type sensorEventRequest struct {
	TenantID    *string         `json:"tenantId"`
	SensorClass string          `json:"sensorClass"`
	Value       json.RawMessage `json:"value"`
}

// NewIngestHandler returns an http.HandlerFunc for POST /sensor-events.
//
// The tenant always comes from the API key. A tenantId in the body is only
// checked against it, so a device cannot write into another tenant's series.
// Stored readings answer 201 {id}; proximity levels update counters and
// answer 202 {edge, counter}.
func NewIngestHandler(svc Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(w, r)
		if !ok {
			return
		}

		var req sensorEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "Invalid JSON body")
			return
		}

		if req.TenantID != nil {
			claimed, err := uuid.Parse(*req.TenantID)
			if err != nil || claimed != tenantID {
				response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN",
					"tenantId does not match the API key", nil)
				return
			}
		}

		class, ok := models.ParseSensorClass(req.SensorClass)
		if !ok {
			badRequest(w, "sensorClass must be one of door, vibration, proximityIn, proximityOut")
			return
		}

		value, err := parseNumber(req.Value)
		if err != nil {
			badRequest(w, err.Error())
			return
		}

		res, err := svc.Ingest(r.Context(), tenantID, class, value)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		if class.IsProximity() {
			response.Accepted(w, map[string]any{
				"edge":    res.Edge,
				"counter": res.Counter,
			})
			return
		}
		response.Created(w, map[string]int64{"id": res.RecordID})
	}
}
