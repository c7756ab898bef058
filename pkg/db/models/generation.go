package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tryon-backend/pkg/enums"
)

// Generation is one billed try-on task.
type Generation struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID     uuid.UUID              `gorm:"column:tenant_id;type:uuid;not null;index"`
	ShopperID    *uuid.UUID             `gorm:"column:shopper_id;type:uuid"`
	Channel      enums.Channel          `gorm:"column:channel;not null"`
	Status       enums.GenerationStatus `gorm:"column:status;not null;default:'queued'"`
	CreditsUsed  int64                  `gorm:"column:credits_used;not null;default:0"`
	BilledVia    enums.BilledVia        `gorm:"column:billed_via;not null"`
	RequestID    string                 `gorm:"column:request_id;not null"`
	ErrorMessage *string                `gorm:"column:error_message"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
