package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tryon-backend/api/responses"
	pkgAuth "github.com/angelmondragon/tryon-backend/pkg/auth"
	"github.com/angelmondragon/tryon-backend/pkg/config"
	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
)

// TenantLoader resolves the tenant named by a token.
type TenantLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// Auth validates a bearer token, loads the tenant and seeds the request
// context with it.
func Auth(cfg config.JWTConfig, tenants TenantLoader, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			tenant, err := tenants.Get(r.Context(), claims.TenantID)
			if err != nil {
				if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown tenant"))
					return
				}
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !tenant.Active {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "tenant is inactive"))
				return
			}

			ctx := WithTenant(r.Context(), tenant)
			if claims.SessionID != "" {
				ctx = context.WithValue(ctx, ctxSessionID, claims.SessionID)
			}
			if claims.ShopperID != nil && *claims.ShopperID != uuid.Nil {
				ctx = WithShopperID(ctx, *claims.ShopperID)
			}

			if logg != nil {
				ctx = logg.WithTenantID(ctx, tenant.ID.String())
				if claims.ShopperID != nil {
					ctx = logg.WithShopperID(ctx, claims.ShopperID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
