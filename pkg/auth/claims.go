package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	TenantID  uuid.UUID
	ShopperID *uuid.UUID
	SessionID string
	JTI       string
}

// AccessTokenClaims identifies the calling tenant and, for storefront
// traffic, the end shopper.
type AccessTokenClaims struct {
	TenantID  uuid.UUID  `json:"tenant_id"`
	ShopperID *uuid.UUID `json:"shopper_id,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}
