package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/api/response"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// Proximity is the edge counter and trigger surface of the ingestion gateway.
type Proximity interface {
	RecordEdge(tenantID uuid.UUID, dir models.Direction) int64
	ReadAndResetCounter(tenantID uuid.UUID, dir models.Direction) int64
	Counter(tenantID uuid.UUID, dir models.Direction) int64
	CommitCount(ctx context.Context, tenantID uuid.UUID, dir models.Direction, count int64, observedAt time.Time) (int64, error)
	SetTrigger(ctx context.Context, tenantID uuid.UUID, dir models.Direction, on bool) error
}

type counterResponse struct {
	Direction models.Direction `json:"direction"`
	Counter   int64            `json:"counter"`
}

// proximityTarget resolves the tenant and {direction} or writes the error.
func proximityTarget(w http.ResponseWriter, r *http.Request) (uuid.UUID, models.Direction, bool) {
	tenantID, ok := tenantFrom(w, r)
	if !ok {
		return uuid.Nil, "", false
	}
	dir, ok := models.ParseDirection(chi.URLParam(r, "direction"))
	if !ok {
		badRequest(w, "direction must be in or out")
		return uuid.Nil, "", false
	}
	return tenantID, dir, true
}

// NewTriggerHandler returns an http.HandlerFunc for
// POST /proximity/{direction}/trigger with body {value: boolean}.
func NewTriggerHandler(p Proximity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, dir, ok := proximityTarget(w, r)
		if !ok {
			return
		}

		var req struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "Invalid JSON body")
			return
		}
		on, err := parseBool(req.Value)
		if err != nil {
			badRequest(w, err.Error())
			return
		}

		if err := p.SetTrigger(r.Context(), tenantID, dir, on); err != nil {
			writeServiceError(w, r, err)
			return
		}

		response.JSON(w, map[string]any{
			"direction": dir,
			"value":     on,
		})
	}
}

// NewRecordEdgeHandler returns an http.HandlerFunc for POST /proximity/{direction}/edges.
// Each call counts one detection.
func NewRecordEdgeHandler(p Proximity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, dir, ok := proximityTarget(w, r)
		if !ok {
			return
		}
		response.JSON(w, counterResponse{Direction: dir, Counter: p.RecordEdge(tenantID, dir)})
	}
}

// NewCounterHandler returns an http.HandlerFunc for GET /proximity/{direction}/counter.
func NewCounterHandler(p Proximity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, dir, ok := proximityTarget(w, r)
		if !ok {
			return
		}
		response.JSON(w, counterResponse{Direction: dir, Counter: p.Counter(tenantID, dir)})
	}
}

// NewResetCounterHandler returns an http.HandlerFunc for
// POST /proximity/{direction}/counter/reset. The response carries the count
// that was taken; edges arriving after the swap start the next period.
func NewResetCounterHandler(p Proximity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, dir, ok := proximityTarget(w, r)
		if !ok {
			return
		}
		response.JSON(w, counterResponse{Direction: dir, Counter: p.ReadAndResetCounter(tenantID, dir)})
	}
}

// NewCommitCountHandler returns an http.HandlerFunc for
// POST /proximity/{direction}/counts with body {count, timestamp?}.
func NewCommitCountHandler(p Proximity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, dir, ok := proximityTarget(w, r)
		if !ok {
			return
		}

		var req struct {
			Count     json.RawMessage `json:"count"`
			Timestamp string          `json:"timestamp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "Invalid JSON body")
			return
		}

		count, ok := parseCount(w, req.Count)
		if !ok {
			return
		}

		var observedAt time.Time
		if req.Timestamp != "" {
			t, err := time.Parse(time.RFC3339, req.Timestamp)
			if err != nil {
				badRequest(w, "timestamp must be a valid RFC3339 timestamp")
				return
			}
			observedAt = t
		}

		id, err := p.CommitCount(r.Context(), tenantID, dir, count, observedAt)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Created(w, map[string]int64{"id": id})
	}
}

// parseCount reads a non-negative whole number or writes 400.
func parseCount(w http.ResponseWriter, raw json.RawMessage) (int64, bool) {
	f, err := parseNumber(raw)
	if err != nil {
		badRequest(w, "count must be a number or numeric string")
		return 0, false
	}
	if f < 0 || f != float64(int64(f)) {
		badRequest(w, "count must be a non-negative whole number")
		return 0, false
	}
	return int64(f), true
}
