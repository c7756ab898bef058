package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/tryon-backend/pkg/db/models"
)

type contextKey string

const (
	ctxTenant    contextKey = "tenant"
	ctxShopperID contextKey = "shopper_id"
	ctxSessionID contextKey = "session_id"
	ctxRequestID contextKey = "request_id"
)

// TenantFromContext returns the authenticated tenant, or nil.
func TenantFromContext(ctx context.Context) *models.Tenant {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxTenant).(*models.Tenant); ok {
		return v
	}
	return nil
}

func ShopperIDFromContext(ctx context.Context) *uuid.UUID {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxShopperID).(uuid.UUID); ok {
		return &v
	}
	return nil
}

func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSessionID).(string); ok {
		return v
	}
	return ""
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRequestID).(string); ok {
		return v
	}
	return ""
}

// WithTenant injects the authenticated tenant into the context.
func WithTenant(ctx context.Context, tenant *models.Tenant) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxTenant, tenant)
}

// WithShopperID injects the end shopper identifier into the context.
func WithShopperID(ctx context.Context, shopperID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxShopperID, shopperID)
}
