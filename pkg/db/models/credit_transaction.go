package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tryon-backend/pkg/enums"
)

// CreditTransaction is an immutable ledger entry. Amount is negative for
// deductions and overage.
type CreditTransaction struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID    uuid.UUID             `gorm:"column:tenant_id;type:uuid;not null;index"`
	Amount      int64                 `gorm:"column:amount;not null"`
	Type        enums.TransactionType `gorm:"column:type;not null"`
	RequestID   *string               `gorm:"column:request_id"`
	Description string                `gorm:"column:description;not null;default:''"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }
