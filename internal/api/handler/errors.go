package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/sensordash/internal/api/middleware"
	"github.com/kiranshivaraju/sensordash/internal/api/response"
	"github.com/kiranshivaraju/sensordash/internal/telemetry"
)

// storageRetryAfter is the back-off advertised to clients on 503.
const storageRetryAfter = 5 * time.Second

// tenantFrom returns the authenticated tenant or writes 401.
func tenantFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
		return uuid.Nil, false
	}
	return tenantID, true
}

// writeServiceError maps the telemetry taxonomy onto HTTP.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, telemetry.ErrUnauthorized):
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "No valid tenant for this request", nil)
	case errors.Is(err, telemetry.ErrValidation):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", validationMessage(err), nil)
	case errors.Is(err, telemetry.ErrStorage):
		slog.Warn("storage unavailable",
			"method", r.Method,
			"path", r.URL.Path,
			"timeout", telemetry.IsTimeout(err),
			"error", err,
		)
		response.StorageUnavailable(w, storageRetryAfter)
	default:
		slog.Error("unexpected error", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

// validationMessage strips the sentinel prefix so clients see "value must be 0 or 1 for door".
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, telemetry.ErrValidation.Error()+": "); i >= 0 {
		return msg[i+len(telemetry.ErrValidation.Error())+2:]
	}
	return msg
}

// writeStoreError reports a raw store failure as storage unavailable.
func writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	writeServiceError(w, r, telemetry.Storage(op, err))
}

func badRequest(w http.ResponseWriter, message string) {
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", message, nil)
}
