package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tryon-backend/internal/ledger"
	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	"github.com/angelmondragon/tryon-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
	"github.com/angelmondragon/tryon-backend/pkg/metrics"
	"github.com/angelmondragon/tryon-backend/pkg/queue"
)

// CreditsPerGeneration is the price of one try-on in credits.
const CreditsPerGeneration = 1

const (
	defaultStepTimeout = 5 * time.Second

	ScopeTenant  = "tenant"
	ScopeShopper = "shopper"
)

type ledgerService interface {
	Deduct(ctx context.Context, input ledger.DeductInput) (bool, error)
	Refund(ctx context.Context, input ledger.RefundInput) error
}

type overageBiller interface {
	Bill(ctx context.Context, tenant *models.Tenant, requestID string) error
}

type generationRepository interface {
	Create(ctx context.Context, generation *models.Generation) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

type Params struct {
	Ledger         ledgerService
	Overage        overageBiller
	Generations    generationRepository
	Publisher      queue.Publisher
	Logger         *logger.Logger
	Metrics        *metrics.BillingMetrics
	EnqueueTimeout time.Duration
	RecordTimeout  time.Duration
	Now            func() time.Time
}

// Dispatcher reserves payment for a generation, records it and queues it.
// Once payment is reserved every path ends with either a queued task or a
// refund attempt.
type Dispatcher struct {
	ledger         ledgerService
	overage        overageBiller
	generations    generationRepository
	publisher      queue.Publisher
	logg           *logger.Logger
	metrics        *metrics.BillingMetrics
	enqueueTimeout time.Duration
	recordTimeout  time.Duration
	now            func() time.Time
}

type SubmitInput struct {
	Tenant    *models.Tenant
	ShopperID *uuid.UUID
	SessionID string
	InputURLs []string
	Prompt    string
	RequestID string
}

type SubmitResult struct {
	GenerationID uuid.UUID              `json:"generation_id"`
	Status       enums.GenerationStatus `json:"status"`
	BilledVia    enums.BilledVia        `json:"billed_via"`
}

func NewDispatcher(params Params) (*Dispatcher, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Overage == nil {
		return nil, fmt.Errorf("overage biller required")
	}
	if params.Generations == nil {
		return nil, fmt.Errorf("generation repository required")
	}
	if params.Publisher == nil {
		return nil, fmt.Errorf("queue publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	enqueueTimeout := params.EnqueueTimeout
	if enqueueTimeout <= 0 {
		enqueueTimeout = defaultStepTimeout
	}
	recordTimeout := params.RecordTimeout
	if recordTimeout <= 0 {
		recordTimeout = defaultStepTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		ledger:         params.Ledger,
		overage:        params.Overage,
		generations:    params.Generations,
		publisher:      params.Publisher,
		logg:           logg,
		metrics:        params.Metrics,
		enqueueTimeout: enqueueTimeout,
		recordTimeout:  recordTimeout,
		now:            now,
	}, nil
}

// Submit runs reserve, record, enqueue and compensates on enqueue failure.
func (d *Dispatcher) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if input.Tenant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant required")
	}
	tenant := input.Tenant
	if len(input.InputURLs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one input url is required")
	}
	requestID := strings.TrimSpace(input.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	account, scope, err := BillingAccount(tenant, input.ShopperID)
	if err != nil {
		return nil, err
	}
	ctx = d.logg.WithTenantID(ctx, tenant.ID.String())
	ctx = d.logg.WithRequestID(ctx, requestID)
	if input.ShopperID != nil {
		ctx = d.logg.WithShopperID(ctx, input.ShopperID.String())
	}

	billedVia, err := d.reserve(ctx, tenant, account, scope, requestID)
	if err != nil {
		d.metrics.Dispatch("rejected")
		return nil, err
	}

	// Payment is reserved; the rest must complete even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	generation := &models.Generation{
		ID:          uuid.New(),
		TenantID:    tenant.ID,
		ShopperID:   input.ShopperID,
		Channel:     tenant.Channel,
		CreditsUsed: CreditsPerGeneration,
		BilledVia:   billedVia,
		RequestID:   requestID,
	}
	ctx = d.logg.WithField(ctx, "generation_id", generation.ID.String())

	if err := d.record(ctx, generation); err != nil {
		d.logg.Error(ctx, "dispatch.record_failed", err)
		cerr := d.compensate(ctx, account, billedVia, requestID, nil, "generation record could not be created")
		d.metrics.Dispatch("compensated")
		return nil, unavailable(multierr.Append(err, cerr))
	}

	task := queue.TaskEnvelope{
		Version:       queue.EnvelopeVersion,
		Channel:       tenant.Channel,
		OwnerID:       account,
		TenantID:      tenant.ID,
		SessionID:     input.SessionID,
		GenerationID:  generation.ID,
		InputURLs:     append([]string(nil), input.InputURLs...),
		Prompt:        input.Prompt,
		CorrelationID: requestID,
		CreatedAt:     d.now().UTC(),
	}
	if err := d.enqueue(ctx, task); err != nil {
		d.logg.Error(ctx, "dispatch.enqueue_failed", err)
		cerr := d.compensate(ctx, account, billedVia, requestID, &generation.ID, "task queue unavailable: "+err.Error())
		d.metrics.Dispatch("compensated")
		return nil, unavailable(multierr.Append(err, cerr))
	}

	d.metrics.Dispatch("queued")
	return &SubmitResult{
		GenerationID: generation.ID,
		Status:       enums.GenerationStatusQueued,
		BilledVia:    billedVia,
	}, nil
}

func (d *Dispatcher) reserve(ctx context.Context, tenant *models.Tenant, account uuid.UUID, scope, requestID string) (enums.BilledVia, error) {
	applied, err := d.ledger.Deduct(ctx, ledger.DeductInput{
		TenantID:    account,
		Amount:      CreditsPerGeneration,
		RequestID:   requestID,
		Description: "try-on generation",
	})
	if err != nil {
		return "", err
	}
	if applied {
		return enums.BilledViaCredits, nil
	}

	if scope == ScopeTenant && tenant.HasActiveSubscription() {
		if err := d.overage.Bill(ctx, tenant, requestID); err != nil {
			return "", err
		}
		return enums.BilledViaOverage, nil
	}

	return "", pkgerrors.New(pkgerrors.CodeInsufficientCredits, insufficientMessage(scope)).
		WithDetails(map[string]any{"scope": scope})
}

func (d *Dispatcher) record(ctx context.Context, generation *models.Generation) error {
	ctx, cancel := context.WithTimeout(ctx, d.recordTimeout)
	defer cancel()
	return d.generations.Create(ctx, generation)
}

func (d *Dispatcher) enqueue(ctx context.Context, task queue.TaskEnvelope) error {
	ctx, cancel := context.WithTimeout(ctx, d.enqueueTimeout)
	defer cancel()
	return d.publisher.Publish(ctx, task)
}

// compensate returns the reserved payment and fails the record. A credit
// reservation is restored; an overage reservation was already charged through
// the provider, so the tenant is refunded the generation as a credit.
func (d *Dispatcher) compensate(ctx context.Context, account uuid.UUID, billedVia enums.BilledVia, requestID string, generationID *uuid.UUID, reason string) error {
	var errs error
	description := "refund: " + reason
	if billedVia == enums.BilledViaOverage {
		description = "refund of overage charge: " + reason
	}
	if err := d.ledger.Refund(ctx, ledger.RefundInput{
		TenantID:    account,
		Amount:      CreditsPerGeneration,
		RequestID:   requestID,
		Description: description,
	}); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("refund: %w", err))
	}
	if generationID != nil {
		recordCtx, cancel := context.WithTimeout(ctx, d.recordTimeout)
		err := d.generations.MarkFailed(recordCtx, *generationID, reason)
		cancel()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mark failed: %w", err))
		}
	}
	if errs != nil {
		d.logg.Error(ctx, "dispatch.compensation_failed", errs)
		return errs
	}
	d.logg.Info(ctx, "dispatch.compensated")
	return nil
}

func unavailable(cause error) error {
	return pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, cause, "generation could not be queued, please retry")
}

// BillingAccount returns the ledger account a tenant request is charged to and
// its scope. Passthrough merchants bill the shopper.
func BillingAccount(tenant *models.Tenant, shopperID *uuid.UUID) (uuid.UUID, string, error) {
	if tenant.CreditMode != enums.CreditModePassthrough {
		return tenant.ID, ScopeTenant, nil
	}
	if shopperID == nil || *shopperID == uuid.Nil {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeValidation, "shopper id is required for passthrough billing")
	}
	return *shopperID, ScopeShopper, nil
}

func insufficientMessage(scope string) string {
	if scope == ScopeShopper {
		return "shopper has insufficient credits"
	}
	return "tenant has insufficient credits"
}
