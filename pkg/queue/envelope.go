package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tryon-backend/pkg/enums"
)

// EnvelopeVersion is stamped on every task so workers can reject unknown shapes.
const EnvelopeVersion = 1

// TaskEnvelope is the unit of work handed to generation workers.
type TaskEnvelope struct {
	Version       int           `json:"version"`
	Channel       enums.Channel `json:"channel"`
	OwnerID       uuid.UUID     `json:"owner_id"`
	TenantID      uuid.UUID     `json:"tenant_id"`
	SessionID     string        `json:"session_id"`
	GenerationID  uuid.UUID     `json:"generation_id"`
	InputURLs     []string      `json:"input_urls"`
	Prompt        string        `json:"prompt"`
	CorrelationID string        `json:"correlation_id"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Encode stamps the version when unset and renders the envelope as JSON.
func (e TaskEnvelope) Encode() ([]byte, error) {
	if e.Version == 0 {
		e.Version = EnvelopeVersion
	}
	if e.InputURLs == nil {
		e.InputURLs = []string{}
	}
	return json.Marshal(e)
}
