package paddlewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/tryon-backend/internal/ledger"
	"github.com/angelmondragon/tryon-backend/internal/plans"
	"github.com/angelmondragon/tryon-backend/internal/tenants"
	"github.com/angelmondragon/tryon-backend/pkg/db"
	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
	"github.com/angelmondragon/tryon-backend/pkg/metrics"
	"github.com/angelmondragon/tryon-backend/pkg/paddle"
)

const (
	providerPaddle      = "paddle"
	defaultAuditTimeout = 5 * time.Second
)

type ledgerService interface {
	Add(ctx context.Context, input ledger.AddInput) error
}

type tenantService interface {
	Resolve(ctx context.Context, tenantID *uuid.UUID, providerSubscriptionID string) (*models.Tenant, error)
	UpdateSubscription(ctx context.Context, id uuid.UUID, update tenants.SubscriptionUpdate) error
}

type auditRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Create(ctx context.Context, event *models.BillingWebhookEvent) error
}

type eventClaimer interface {
	Claim(ctx context.Context, eventID string) (ClaimState, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type ProcessorParams struct {
	Secret string
	// Tolerance bounds the signature timestamp age. Zero disables the check.
	Tolerance    time.Duration
	AuditTimeout time.Duration
	Ledger       ledgerService
	Tenants      tenantService
	Audit        auditRepository
	Claims       eventClaimer
	Plans        *plans.Catalog
	Logger       *logger.Logger
	Metrics      *metrics.BillingMetrics
	Now          func() time.Time
}

// Processor applies verified Paddle notifications exactly once. Concurrent
// deliveries of one event id are serialized by a claim; the audit row is only
// written after the business effects succeeded, so a failed delivery is
// reprocessed when Paddle retries it.
type Processor struct {
	secret       string
	tolerance    time.Duration
	auditTimeout time.Duration
	ledger       ledgerService
	tenants      tenantService
	audit        auditRepository
	claims       eventClaimer
	plans        *plans.Catalog
	logg         *logger.Logger
	metrics      *metrics.BillingMetrics
	validate     *validator.Validate
	now          func() time.Time
}

// Result describes how an accepted event was handled.
type Result struct {
	EventID   string     `json:"event_id"`
	EventType string     `json:"event_type"`
	TenantID  *uuid.UUID `json:"tenant_id,omitempty"`
	Duplicate bool       `json:"duplicate"`
	Dropped   bool       `json:"dropped"`
	Ignored   bool       `json:"ignored"`
}

func (r Result) outcome() string {
	switch {
	case r.Duplicate:
		return "duplicate"
	case r.Dropped:
		return "dropped"
	case r.Ignored:
		return "ignored"
	default:
		return "applied"
	}
}

func NewProcessor(params ProcessorParams) (*Processor, error) {
	if strings.TrimSpace(params.Secret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "paddle webhook secret required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	if params.Tenants == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tenant service required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit repository required")
	}
	if params.Claims == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.Tolerance < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "signature tolerance must not be negative")
	}
	catalog := params.Plans
	if catalog == nil {
		catalog = plans.Default()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	auditTimeout := params.AuditTimeout
	if auditTimeout <= 0 {
		auditTimeout = defaultAuditTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		secret:       params.Secret,
		tolerance:    params.Tolerance,
		auditTimeout: auditTimeout,
		ledger:       params.Ledger,
		tenants:      params.Tenants,
		audit:        params.Audit,
		claims:       params.Claims,
		plans:        catalog,
		logg:         logg,
		metrics:      params.Metrics,
		validate:     validator.New(),
		now:          now,
	}, nil
}

// Process verifies, deduplicates, applies and records one notification.
func (p *Processor) Process(ctx context.Context, body []byte, signature string) (Result, error) {
	ctx = context.WithoutCancel(ctx)

	if err := paddle.VerifySignature(p.secret, signature, body, p.tolerance, p.now()); err != nil {
		p.metrics.WebhookEvent("unknown", "unauthorized")
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid paddle signature")
	}

	var event paddle.Event
	if err := json.Unmarshal(body, &event); err != nil {
		p.metrics.WebhookEvent("unknown", "invalid")
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode paddle event")
	}
	if err := p.validate.Struct(event); err != nil {
		p.metrics.WebhookEvent("unknown", "invalid")
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid paddle event")
	}

	ctx = p.logg.WithEventID(ctx, event.EventID)
	ctx = p.logg.WithField(ctx, "event_type", event.EventType)
	result := Result{EventID: event.EventID, EventType: event.EventType}

	exists, err := p.exists(ctx, event.EventID)
	if err != nil {
		p.metrics.WebhookEvent(event.EventType, "failed")
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check billing event")
	}
	if exists {
		result.Duplicate = true
		p.logg.Info(ctx, "paddle.duplicate")
		p.metrics.WebhookEvent(event.EventType, result.outcome())
		return result, nil
	}

	state, err := p.claims.Claim(ctx, event.EventID)
	if err != nil {
		p.metrics.WebhookEvent(event.EventType, "failed")
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim billing event")
	}
	switch state {
	case ClaimCompleted:
		result.Duplicate = true
		p.logg.Info(ctx, "paddle.duplicate")
		p.metrics.WebhookEvent(event.EventType, result.outcome())
		return result, nil
	case ClaimInFlight:
		p.logg.Warn(ctx, "paddle.in_flight")
		p.metrics.WebhookEvent(event.EventType, "in_flight")
		return result, pkgerrors.New(pkgerrors.CodeConflict, "billing event is already being processed")
	}

	if err := p.apply(ctx, event, &result); err != nil {
		if rerr := p.claims.Release(ctx, event.EventID); rerr != nil {
			p.logg.Error(ctx, "paddle.claim_release_failed", rerr)
		}
		p.metrics.WebhookEvent(event.EventType, "failed")
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply paddle event")
		}
		return result, err
	}

	if err := p.claims.Complete(ctx, event.EventID); err != nil {
		p.logg.Error(ctx, "paddle.claim_complete_failed", err)
	}
	if err := p.record(ctx, event, result); err != nil {
		if db.IsUniqueViolation(err, "") {
			p.logg.Warn(ctx, "paddle.audit_conflict")
		} else {
			p.logg.Error(ctx, "paddle.audit_failed", err)
		}
	}

	p.metrics.WebhookEvent(event.EventType, result.outcome())
	p.logg.Info(ctx, fmt.Sprintf("paddle.%s", result.outcome()))
	return result, nil
}

func (p *Processor) apply(ctx context.Context, event paddle.Event, result *Result) error {
	switch {
	case event.EventType == paddle.EventTransactionCompleted:
		return p.handleTransaction(ctx, event, result)
	case paddle.IsSubscriptionEvent(event.EventType):
		return p.handleSubscription(ctx, event, result)
	default:
		result.Ignored = true
		return nil
	}
}

func (p *Processor) exists(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.auditTimeout)
	defer cancel()
	return p.audit.Exists(ctx, eventID)
}

func (p *Processor) record(ctx context.Context, event paddle.Event, result Result) error {
	ctx, cancel := context.WithTimeout(ctx, p.auditTimeout)
	defer cancel()
	payload := event.Data
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return p.audit.Create(ctx, &models.BillingWebhookEvent{
		ID:        uuid.New(),
		Provider:  providerPaddle,
		EventID:   event.EventID,
		EventType: event.EventType,
		RequestID: requestID(event.EventID),
		TenantID:  result.TenantID,
		Payload:   payload,
	})
}

func requestID(eventID string) string {
	return providerPaddle + ":" + eventID
}
