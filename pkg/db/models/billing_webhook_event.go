package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BillingWebhookEvent is the audit row written once a provider event has been
// fully processed.
type BillingWebhookEvent struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider  string          `gorm:"column:provider;not null"`
	EventID   string          `gorm:"column:event_id;not null;unique"`
	EventType string          `gorm:"column:event_type;not null"`
	RequestID string          `gorm:"column:request_id;not null"`
	TenantID  *uuid.UUID      `gorm:"column:tenant_id;type:uuid"`
	Payload   json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
