package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/tryon-backend/api/responses"
	"github.com/angelmondragon/tryon-backend/internal/ratelimit"
	"github.com/angelmondragon/tryon-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// QuotaChecker counts one request against a tenant's quota.
type QuotaChecker interface {
	Check(ctx context.Context, tenantID, tier string) ratelimit.Decision
}

// RateLimit enforces the authenticated tenant's quota and reports it in
// X-RateLimit-* headers. It must run after Auth.
func RateLimit(limiter QuotaChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tenant := TenantFromContext(ctx)
			if tenant == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}

			decision := limiter.Check(ctx, tenant.ID.String(), tenant.Tier())
			writeQuotaHeaders(w, decision)

			if !decision.Allowed() {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"window": string(decision.Window),
						"limit":  decision.Limit,
						"reset":  decision.Reset,
					}), "ratelimit.blocked")
				}
				err := pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded").
					WithDetails(map[string]any{
						"window": string(decision.Window),
						"limit":  decision.Limit,
						"reset":  decision.Reset,
					})
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter(decision.Reset, time.Now()), 10))
				responses.WriteError(ctx, nil, w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeQuotaHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	h := w.Header()
	h.Set(HeaderRateLimitLimit, strconv.FormatInt(d.Limit, 10))
	h.Set(HeaderRateLimitRemaining, strconv.FormatInt(d.Remaining, 10))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(d.Reset, 10))
}

func retryAfter(reset int64, now time.Time) int64 {
	secs := reset - now.Unix()
	if secs < 1 {
		return 1
	}
	return secs
}

type QuotaGateParams struct {
	JWT            config.JWTConfig
	AllowedOrigins []string
	Tenants        TenantLoader
	Limiter        QuotaChecker
	Logger         *logger.Logger
}

// QuotaGate composes CORS, authentication and rate limiting in that order.
func QuotaGate(params QuotaGateParams) func(http.Handler) http.Handler {
	cors := CORS(params.AllowedOrigins)
	auth := Auth(params.JWT, params.Tenants, params.Logger)
	limit := RateLimit(params.Limiter, params.Logger)
	return func(next http.Handler) http.Handler {
		return cors(auth(limit(next)))
	}
}
