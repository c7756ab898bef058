package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tryon-backend/internal/dispatch"
	"github.com/angelmondragon/tryon-backend/internal/ledger"
	"github.com/angelmondragon/tryon-backend/internal/ratelimit"
	paddlewebhook "github.com/angelmondragon/tryon-backend/internal/webhooks/paddle"
	pkgAuth "github.com/angelmondragon/tryon-backend/pkg/auth"
	"github.com/angelmondragon/tryon-backend/pkg/config"
	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	"github.com/angelmondragon/tryon-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/metrics"
	"github.com/angelmondragon/tryon-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubTenants struct{ tenant *models.Tenant }

func (s stubTenants) Get(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	if s.tenant != nil && s.tenant.ID == id {
		return s.tenant, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
}

type stubLimiter struct{ decision ratelimit.Decision }

func (s stubLimiter) Check(context.Context, string, string) ratelimit.Decision { return s.decision }

type stubSubmitter struct{ calls int }

func (s *stubSubmitter) Submit(context.Context, dispatch.SubmitInput) (*dispatch.SubmitResult, error) {
	s.calls++
	return &dispatch.SubmitResult{GenerationID: uuid.New(), Status: enums.GenerationStatusQueued, BilledVia: enums.BilledViaCredits}, nil
}

type stubCredits struct{}

func (stubCredits) GetBalance(_ context.Context, id uuid.UUID) (ledger.Balance, error) {
	return ledger.Balance{TenantID: id, Balance: 3}, nil
}

func (stubCredits) ListTransactions(context.Context, uuid.UUID, pagination.Params) (ledger.TransactionPage, error) {
	return ledger.TransactionPage{}, nil
}

type stubProcessor struct{}

func (stubProcessor) Process(context.Context, []byte, string) (paddlewebhook.Result, error) {
	return paddlewebhook.Result{EventID: "evt_1"}, nil
}

func testRouter(t *testing.T, decision ratelimit.Decision) (http.Handler, *models.Tenant, *stubSubmitter, config.JWTConfig) {
	t.Helper()
	jwtCfg := config.JWTConfig{Secret: "secret", Issuer: "tryon", ExpirationMinutes: 30}
	cfg := &config.Config{
		App:  config.AppConfig{Env: "dev"},
		JWT:  jwtCfg,
		CORS: config.CORSConfig{AllowedOrigins: []string{"https://shop.example.com"}},
	}
	tenant := &models.Tenant{ID: uuid.New(), Name: "acme", Channel: enums.ChannelB2C, CreditMode: enums.CreditModeAbsorb, Active: true}
	submitter := &stubSubmitter{}

	reg := prometheus.NewRegistry()
	m := metrics.NewBillingMetrics(reg)
	m.LedgerOp("deduct", "applied")

	router := NewRouter(RouterParams{
		Config:      cfg,
		DB:          stubPinger{},
		Redis:       stubPinger{},
		Tenants:     stubTenants{tenant: tenant},
		Limiter:     stubLimiter{decision: decision},
		Generations: submitter,
		Credits:     stubCredits{},
		Paddle:      stubProcessor{},
		Gatherer:    reg,
	})
	return router, tenant, submitter, jwtCfg
}

func allowed() ratelimit.Decision {
	return ratelimit.Decision{Outcome: ratelimit.OutcomeAllowed, Window: ratelimit.WindowMinute, Limit: 60, Remaining: 59, Reset: 1700000040}
}

func bearer(t *testing.T, cfg config.JWTConfig, tenantID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg, time.Now(), pkgAuth.AccessTokenPayload{TenantID: tenantID})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router, _, _, _ := testRouter(t, allowed())

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tryon_ledger_operations_total")
}

func TestRouterGenerationsRequireAuth(t *testing.T) {
	router, _, submitter, _ := testRouter(t, allowed())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/generations", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, submitter.calls)
}

func TestRouterGenerationsAccepted(t *testing.T) {
	router, tenant, submitter, jwtCfg := testRouter(t, allowed())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generations", strings.NewReader(`{"input_urls":["https://cdn.example.com/a.jpg"]}`))
	req.Header.Set("Authorization", bearer(t, jwtCfg, tenant.ID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, submitter.calls)
	assert.Equal(t, "59", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRouterRateLimited(t *testing.T) {
	router, tenant, submitter, jwtCfg := testRouter(t, ratelimit.Decision{
		Outcome: ratelimit.OutcomeDenied, Window: ratelimit.WindowMinute, Limit: 60, Remaining: 0, Reset: time.Now().Add(time.Minute).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set("Authorization", bearer(t, jwtCfg, tenant.ID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Zero(t, submitter.calls)
}

func TestRouterPaddleWebhookBypassesQuotaGate(t *testing.T) {
	router, _, _, _ := testRouter(t, allowed())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paddle", strings.NewReader(`{}`))
	req.Header.Set("Paddle-Signature", "ts=1;h1=abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}
