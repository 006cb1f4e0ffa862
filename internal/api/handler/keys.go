package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/api/response"
	"github.com/kiranshivaraju/sensordash/internal/store"
	"github.com/kiranshivaraju/sensordash/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	rawKeyPrefix  = "sd_"
	rawKeyBytes   = 24
	keyPrefixLen  = 8
	maxKeyNameLen = 100
)

var validScopes = map[string]bool{
	models.ScopeIngest:  true,
	models.ScopeRead:    true,
	models.ScopeControl: true,
	models.ScopeAdmin:   true,
}

// KeyStore manages a tenant's API keys.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /admin/keys.
// The raw key is returned once; only its bcrypt hash is stored.
func NewCreateKeyHandler(s KeyStore, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(w, r)
		if !ok {
			return
		}

		var req struct {
			Name   string   `json:"name"`
			Scopes []string `json:"scopes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "Invalid JSON body")
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || len(req.Name) > maxKeyNameLen {
			badRequest(w, "name is required and must be at most 100 characters")
			return
		}
		if len(req.Scopes) == 0 {
			badRequest(w, "scopes must not be empty")
			return
		}
		for _, sc := range req.Scopes {
			if !validScopes[sc] {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown scope",
					map[string]string{"scope": sc})
				return
			}
		}

		rawKey, err := generateRawKey()
		if err != nil {
			slog.Error("generate api key failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create key", nil)
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("hash api key failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create key", nil)
			return
		}

		now := time.Now().UTC()
		key := &models.APIKey{
			ID:        uuid.New(),
			TenantID:  tenantID,
			Name:      req.Name,
			KeyHash:   string(hash),
			KeyPrefix: rawKey[:keyPrefixLen],
			Scopes:    req.Scopes,
			CreatedAt: now,
			UpdatedAt: now,
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := s.CreateAPIKey(ctx, key); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "API key with this name already exists", nil)
				return
			}
			writeStoreError(w, r, "create api key", err)
			return
		}

		slog.Info("api key created", "tenant_id", tenantID, "key_id", key.ID, "scopes", key.Scopes)

		response.Created(w, map[string]any{
			"id":         key.ID,
			"name":       key.Name,
			"key":        rawKey,
			"key_prefix": key.KeyPrefix,
			"scopes":     key.Scopes,
			"created_at": key.CreatedAt,
		})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /admin/keys.
func NewListKeysHandler(s KeyStore, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		keys, err := s.ListAPIKeys(ctx, tenantID)
		if err != nil {
			writeStoreError(w, r, "list api keys", err)
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}
		response.JSON(w, map[string]any{"keys": keys})
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /admin/keys/{keyID}.
func NewRevokeKeyHandler(s KeyStore, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(w, r)
		if !ok {
			return
		}

		keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			badRequest(w, "Invalid key ID")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := s.RevokeAPIKey(ctx, keyID, tenantID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "API key not found", nil)
				return
			}
			writeStoreError(w, r, "revoke api key", err)
			return
		}

		slog.Info("api key revoked", "tenant_id", tenantID, "key_id", keyID)
		response.NoContent(w)
	}
}

func generateRawKey() (string, error) {
	b := make([]byte, rawKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return rawKeyPrefix + hex.EncodeToString(b), nil
}
