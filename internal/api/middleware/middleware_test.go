package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/sensordash/internal/api/middleware"
	"github.com/kiranshivaraju/sensordash/internal/metrics"
	"github.com/kiranshivaraju/sensordash/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- Mock key store ---

type mockKeys struct {
	keys []*models.APIKey
	err  error

	// stall makes the call block until its context ends.
	stallLookup bool
	stallUpdate bool

	mu          sync.Mutex
	used        []uuid.UUID
	hadDeadline bool
}

func (m *mockKeys) GetAPIKeyByPrefix(ctx context.Context, _ string) ([]*models.APIKey, error) {
	if m.stallLookup {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.keys, m.err
}

func (m *mockKeys) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, ok := ctx.Deadline()
	m.mu.Lock()
	m.used = append(m.used, id)
	m.hadDeadline = ok
	m.mu.Unlock()

	if m.stallUpdate {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// --- Mock counter ---

type mockCounter struct {
	counter int64
	err     error
	lastKey string
}

func (m *mockCounter) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.lastKey = key
	m.counter++
	return m.counter, m.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func hashKey(t *testing.T, rawKey string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

func withKeyPrefix(req *http.Request, prefix string) *http.Request {
	return req.WithContext(mw.SetKeyPrefix(req.Context(), prefix))
}

// ========================================
// Auth Middleware Tests
// ========================================

func TestAuth_MissingAuthHeader(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{}, time.Second)
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errBody(t, w)["code"])
}

func TestAuth_InvalidBearerFormat(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{}, time.Second)
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_KeyTooShort(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{}, time.Second)
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer short")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_KeyNotFound(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{keys: []*models.APIKey{}}, time.Second)
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer sd_test1234567890")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_LookupFailureIsStorageError(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{err: errors.New("connection refused")}, time.Second)
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer sd_test1234567890")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "STORAGE_UNAVAILABLE", errBody(t, w)["code"])
}

func TestAuth_StalledLookupTimesOut(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{stallLookup: true}, 50*time.Millisecond)
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer sd_test1234567890")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(w, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("key lookup was not bounded by the store timeout")
	}
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "STORAGE_UNAVAILABLE", errBody(t, w)["code"])
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestAuth_LastUsedUpdateIsBoundedAndDrained(t *testing.T) {
	rawKey := "sd_stall1234567890abcdef"
	keyID := uuid.New()
	ms := &mockKeys{
		keys: []*models.APIKey{{
			ID:       keyID,
			TenantID: uuid.New(),
			KeyHash:  hashKey(t, rawKey),
			Scopes:   []string{models.ScopeRead},
		}},
		stallUpdate: true,
	}
	auth := mw.NewAuth(ms, 50*time.Millisecond)
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	drained := make(chan struct{})
	go func() {
		auth.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the last-used update timed out")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	assert.Equal(t, []uuid.UUID{keyID}, ms.used)
	assert.True(t, ms.hadDeadline)
}

func TestAuth_WrongPassword(t *testing.T) {
	rawKey := "sd_test1234567890abcdef"
	ms := &mockKeys{keys: []*models.APIKey{{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		KeyHash:   hashKey(t, "different_key_entirely"),
		KeyPrefix: rawKey[:8],
		Scopes:    []string{models.ScopeRead},
	}}}
	auth := mw.NewAuth(ms, time.Second)
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_ValidKey(t *testing.T) {
	rawKey := "sd_test1234567890abcdef"
	tenantID := uuid.New()
	keyID := uuid.New()
	ms := &mockKeys{keys: []*models.APIKey{{
		ID:        keyID,
		TenantID:  tenantID,
		KeyHash:   hashKey(t, rawKey),
		KeyPrefix: rawKey[:8],
		Scopes:    []string{models.ScopeRead, models.ScopeAdmin},
	}}}
	auth := mw.NewAuth(ms, time.Second)

	var gotTenantID uuid.UUID
	var gotOK bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenantID, gotOK = mw.GetTenantID(r)
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.Authenticate(inner)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotOK)
	assert.Equal(t, tenantID, gotTenantID)

	assert.Eventually(t, func() bool {
		ms.mu.Lock()
		defer ms.mu.Unlock()
		return len(ms.used) == 1 && ms.used[0] == keyID
	}, time.Second, 10*time.Millisecond)
}

func TestAuth_MatchesAmongSharedPrefix(t *testing.T) {
	rawKey := "sd_share_second_key"
	tenantID := uuid.New()
	ms := &mockKeys{keys: []*models.APIKey{
		{ID: uuid.New(), TenantID: uuid.New(), KeyHash: hashKey(t, "sd_share_first_key"), Scopes: []string{models.ScopeRead}},
		{ID: uuid.New(), TenantID: tenantID, KeyHash: hashKey(t, rawKey), Scopes: []string{models.ScopeRead}},
	}}
	auth := mw.NewAuth(ms, time.Second)

	var got uuid.UUID
	handler := auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = mw.GetTenantID(r)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, tenantID, got)
}

func TestAuth_RequireScope_Allowed(t *testing.T) {
	rawKey := "sd_admin_1234567890abcdef"
	ms := &mockKeys{keys: []*models.APIKey{{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		KeyHash:   hashKey(t, rawKey),
		KeyPrefix: rawKey[:8],
		Scopes:    []string{models.ScopeRead, models.ScopeAdmin},
	}}}
	auth := mw.NewAuth(ms, time.Second)

	handler := auth.Authenticate(auth.RequireScope(models.ScopeAdmin)(okHandler()))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_RequireScope_Denied(t *testing.T) {
	rawKey := "sd_read__1234567890abcdef"
	ms := &mockKeys{keys: []*models.APIKey{{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		KeyHash:   hashKey(t, rawKey),
		KeyPrefix: rawKey[:8],
		Scopes:    []string{models.ScopeRead},
	}}}
	auth := mw.NewAuth(ms, time.Second)

	handler := auth.Authenticate(auth.RequireScope(models.ScopeIngest)(okHandler()))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errBody(t, w)["code"])
}

func TestGetTenantID_NilIsNotAuthenticated(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req = req.WithContext(mw.SetTenantID(req.Context(), uuid.Nil))

	_, ok := mw.GetTenantID(req)
	assert.False(t, ok)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCounter{counter: 0}
	rl := mw.NewRateLimit(mc, 60)

	handler := rl.Limit(okHandler())

	req := withKeyPrefix(httptest.NewRequest("POST", "/sensor-events", nil), "sd_test1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, "ratelimit:sd_test1", mc.lastKey)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCounter{counter: 60} // next IncrWithExpiry will return 61
	rl := mw.NewRateLimit(mc, 60)

	handler := rl.Limit(okHandler())

	req := withKeyPrefix(httptest.NewRequest("POST", "/sensor-events", nil), "sd_over1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
}

func TestRateLimit_FailsOpenOnCacheError(t *testing.T) {
	mc := &mockCounter{err: errors.New("redis down")}
	rl := mw.NewRateLimit(mc, 1)

	handler := rl.Limit(okHandler())

	req := withKeyPrefix(httptest.NewRequest("POST", "/sensor-events", nil), "sd_down1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_NoKeyPrefix_PassThrough(t *testing.T) {
	mc := &mockCounter{}
	rl := mw.NewRateLimit(mc, 60)

	handler := rl.Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, mc.counter)
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Poll Hints / Metrics Middleware Tests
// ========================================

func TestPollHints_SetsHeaders(t *testing.T) {
	handler := mw.PollHints(6 * time.Second)(okHandler())

	before := time.Now().UTC().Add(-time.Second)
	req := httptest.NewRequest("GET", "/alerts/door", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "6", w.Header().Get("X-Poll-Interval"))

	servedAt, err := time.Parse(time.RFC3339Nano, w.Header().Get("X-Served-At"))
	require.NoError(t, err)
	assert.True(t, servedAt.After(before))
}

func TestPollHints_RoundsToWholeSeconds(t *testing.T) {
	handler := mw.PollHints(3600 * time.Millisecond)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	secs, err := strconv.Atoi(w.Header().Get("X-Poll-Interval"))
	require.NoError(t, err)
	assert.Equal(t, 4, secs)
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	m := metrics.New("test")

	r := chi.NewRouter()
	r.Use(mw.Metrics(m))
	r.Get("/alerts/{sensorClass}", okHandler())

	for _, class := range []string{"door", "vibration"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/alerts/"+class, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/alerts/{sensorClass}", "GET", "2xx")))
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	m := metrics.New("test")

	r := chi.NewRouter()
	r.Use(mw.Metrics(m))
	r.Get("/health", okHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("unmatched", "GET", "4xx")))
}
