package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tryon-backend/internal/ratelimit"
	"github.com/angelmondragon/tryon-backend/pkg/db/models"
)

type stubLimiter struct {
	decision ratelimit.Decision
	calls    int
	tenantID string
	tier     string
}

func (s *stubLimiter) Check(_ context.Context, tenantID, tier string) ratelimit.Decision {
	s.calls++
	s.tenantID = tenantID
	s.tier = tier
	return s.decision
}

func TestRateLimitRequiresTenant(t *testing.T) {
	limiter := &stubLimiter{}
	handler := RateLimit(limiter, nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Zero(t, limiter.calls)
}

func TestRateLimitAllowedSetsHeaders(t *testing.T) {
	tenant := newTenant(true, "pro")
	limiter := &stubLimiter{decision: ratelimit.Decision{
		Outcome:   ratelimit.OutcomeAllowed,
		Window:    ratelimit.WindowMinute,
		Limit:     60,
		Remaining: 59,
		Reset:     1700000040,
	}}
	handler := RateLimit(limiter, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(WithTenant(context.Background(), tenant))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "60", resp.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "59", resp.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, "1700000040", resp.Header().Get(HeaderRateLimitReset))
	assert.Equal(t, tenant.ID.String(), limiter.tenantID)
	assert.Equal(t, "pro", limiter.tier)
}

func TestRateLimitDegradedPassesThrough(t *testing.T) {
	tenant := newTenant(true, "")
	limiter := &stubLimiter{decision: ratelimit.Decision{
		Outcome:   ratelimit.OutcomeDegraded,
		Window:    ratelimit.WindowMinute,
		Limit:     10,
		Remaining: 10,
		Reset:     1700000040,
	}}
	handler := RateLimit(limiter, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(WithTenant(context.Background(), tenant))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "10", resp.Header().Get(HeaderRateLimitRemaining))
}

func TestRateLimitDeniedWritesEnvelope(t *testing.T) {
	tenant := newTenant(true, "starter")
	reset := time.Now().Add(30 * time.Minute).Unix()
	limiter := &stubLimiter{decision: ratelimit.Decision{
		Outcome:   ratelimit.OutcomeDenied,
		Window:    ratelimit.WindowHour,
		Limit:     500,
		Remaining: 0,
		Reset:     reset,
	}}
	called := false
	handler := RateLimit(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(WithTenant(context.Background(), tenant))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.False(t, called)
	assert.Equal(t, "500", resp.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "0", resp.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, strconv.FormatInt(reset, 10), resp.Header().Get(HeaderRateLimitReset))

	retry, err := strconv.ParseInt(resp.Header().Get("Retry-After"), 10, 64)
	require.NoError(t, err)
	assert.Greater(t, retry, int64(0))
	assert.LessOrEqual(t, retry, int64(30*60))

	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body.Error.Code)
	assert.Equal(t, "hour", body.Error.Details["window"])
	assert.EqualValues(t, reset, body.Error.Details["reset"])
}

func TestRetryAfterFloor(t *testing.T) {
	now := time.Unix(1700000000, 0)
	assert.Equal(t, int64(1), retryAfter(1699999990, now))
	assert.Equal(t, int64(40), retryAfter(1700000040, now))
}

func TestQuotaGateComposesAuthAndLimit(t *testing.T) {
	tenant := newTenant(true, "pro")
	limiter := &stubLimiter{decision: ratelimit.Decision{
		Outcome: ratelimit.OutcomeAllowed, Window: ratelimit.WindowMinute, Limit: 60, Remaining: 42, Reset: 1700000040,
	}}
	gate := QuotaGate(QuotaGateParams{
		JWT:            testJWT,
		AllowedOrigins: []string{"https://shop.example.com"},
		Tenants:        stubTenants{tenants: map[uuid.UUID]*models.Tenant{tenant.ID: tenant}},
		Limiter:        limiter,
	})
	handler := gate(okHandler())

	t.Run("unauthenticated request never reaches the limiter", func(t *testing.T) {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
		assert.Zero(t, limiter.calls)
	})

	t.Run("authenticated request is counted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+mintTestToken(t, tenant.ID, nil))
		req.Header.Set("Origin", "https://shop.example.com")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, 1, limiter.calls)
		assert.Equal(t, "42", resp.Header().Get(HeaderRateLimitRemaining))
		assert.Equal(t, "https://shop.example.com", resp.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, strings.ToLower(resp.Header().Get("Access-Control-Expose-Headers")), strings.ToLower(HeaderRateLimitRemaining))
	})

	t.Run("preflight is answered before auth", func(t *testing.T) {
		before := limiter.calls
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		assert.Less(t, resp.Code, 300)
		assert.Equal(t, before, limiter.calls)
	})
}
