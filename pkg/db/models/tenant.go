package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tryon-backend/pkg/enums"
)

// Tenant is a direct customer or a Shopify merchant.
type Tenant struct {
	ID                     uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                   string                    `gorm:"column:name;not null"`
	Channel                enums.Channel             `gorm:"column:channel;not null"`
	CreditMode             enums.CreditMode          `gorm:"column:credit_mode;not null;default:'absorb'"`
	SubscriptionTier       *string                   `gorm:"column:subscription_tier"`
	SubscriptionStatus     *enums.SubscriptionStatus `gorm:"column:subscription_status"`
	ProviderSubscriptionID *string                   `gorm:"column:provider_subscription_id;unique"`
	ProviderCustomerID     *string                   `gorm:"column:provider_customer_id"`
	CurrentPeriodStart     *time.Time                `gorm:"column:current_period_start"`
	CurrentPeriodEnd       *time.Time                `gorm:"column:current_period_end"`
	Active                 bool                      `gorm:"column:active;not null;default:true"`
	CreatedAt              time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

// Tier returns the subscription tier or "" when the tenant has none.
func (t Tenant) Tier() string {
	if t.SubscriptionTier == nil {
		return ""
	}
	return strings.TrimSpace(*t.SubscriptionTier)
}

// HasActiveSubscription reports whether overage can be charged to the tenant's subscription.
func (t Tenant) HasActiveSubscription() bool {
	return t.SubscriptionStatus != nil &&
		*t.SubscriptionStatus == enums.SubscriptionStatusActive &&
		t.Tier() != ""
}
