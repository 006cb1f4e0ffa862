package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/api/response"
	"github.com/kiranshivaraju/sensordash/internal/store"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// CountCorrector edits the value of one committed customer count.
type CountCorrector interface {
	UpdateCountValue(ctx context.Context, tenantID uuid.UUID, class models.SensorClass, id int64, value float64) error
}

// NewCorrectCountHandler returns an http.HandlerFunc for
// PATCH /customers/{direction}/{id} with body {count}. Only the value
// changes; recorded_at stays as written. A row belonging to another tenant
// is reported as not found.
func NewCorrectCountHandler(s CountCorrector, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, dir, ok := proximityTarget(w, r)
		if !ok {
			return
		}

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id < 1 {
			badRequest(w, "id must be a positive integer")
			return
		}

		var req struct {
			Count json.RawMessage `json:"count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "Invalid JSON body")
			return
		}
		count, ok := parseCount(w, req.Count)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		err = s.UpdateCountValue(ctx, tenantID, dir.SensorClass(), id, float64(count))
		switch {
		case err == nil:
		case errors.Is(err, store.ErrNotFound):
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Customer count not found", nil)
			return
		default:
			writeStoreError(w, r, "update customer count", err)
			return
		}

		response.JSON(w, map[string]any{
			"id":        id,
			"direction": dir,
			"count":     count,
		})
	}
}
