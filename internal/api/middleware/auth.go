package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/api/response"
	"github.com/kiranshivaraju/sensordash/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	keyPrefixLen     = 8
	lookupRetryAfter = 5 * time.Second
)

// KeyLookup is the slice of the store the tenant resolver needs.
type KeyLookup interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// Auth resolves API keys to tenants and checks scopes.
type Auth struct {
	keys    KeyLookup
	timeout time.Duration

	touching sync.WaitGroup
}

// NewAuth creates a new Auth middleware. timeout bounds every key store call.
func NewAuth(keys KeyLookup, timeout time.Duration) *Auth {
	return &Auth{keys: keys, timeout: timeout}
}

// Wait blocks until pending last-used updates have finished.
func (a *Auth) Wait() {
	a.touching.Wait()
}

// Authenticate validates the Bearer token, looks up the API key, and sets
// tenant_id, key_prefix, and scopes in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if len(rawKey) < keyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		prefix := rawKey[:keyPrefixLen]

		lookupCtx, cancel := context.WithTimeout(r.Context(), a.timeout)
		keys, err := a.keys.GetAPIKeyByPrefix(lookupCtx, prefix)
		cancel()
		if err != nil {
			slog.Error("api key lookup failed", "key_prefix", prefix, "error", err)
			response.StorageUnavailable(w, lookupRetryAfter)
			return
		}

		var matched bool
		for _, key := range keys {
			if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) == nil {
				ctx := r.Context()
				ctx = SetTenantID(ctx, key.TenantID)
				ctx = SetKeyPrefix(ctx, prefix)
				ctx = setScopes(ctx, key.Scopes)
				r = r.WithContext(ctx)
				matched = true

				a.touch(key.ID)
				break
			}
		}

		if !matched {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// touch records key use off the request path. Updates are bounded by the
// store timeout and drained by Wait on shutdown.
func (a *Auth) touch(id uuid.UUID) {
	a.touching.Add(1)
	go func() {
		defer a.touching.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.keys.UpdateAPIKeyLastUsed(ctx, id); err != nil {
			slog.Warn("update api key last used failed", "key_id", id, "error", err)
		}
	}()
}

// RequireScope returns middleware that checks whether the authenticated
// API key has the specified scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes := getScopes(r)
			for _, s := range scopes {
				if s == scope {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
