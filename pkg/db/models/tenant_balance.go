package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantBalance is the prepaid credit pool for one billing account. The key is a
// tenant id, or a shopper id for passthrough merchants.
type TenantBalance struct {
	TenantID       uuid.UUID `gorm:"column:tenant_id;type:uuid;primaryKey"`
	Balance        int64     `gorm:"column:balance;not null;default:0"`
	TotalPurchased int64     `gorm:"column:total_purchased;not null;default:0"`
	TotalSpent     int64     `gorm:"column:total_spent;not null;default:0"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (TenantBalance) TableName() string { return "tenant_balances" }
