package overage

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tryon-backend/internal/ledger"
	"github.com/angelmondragon/tryon-backend/internal/plans"
	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
	"github.com/angelmondragon/tryon-backend/pkg/metrics"
	"github.com/angelmondragon/tryon-backend/pkg/paddle"
)

// UnitsPerGeneration is the overage quantity billed for one generation.
const UnitsPerGeneration = 1

type ledgerService interface {
	LogOverage(ctx context.Context, input ledger.OverageInput) error
}

type subscriptionCharger interface {
	ChargeSubscription(ctx context.Context, subscriptionID string, charge paddle.Charge) error
}

type BillerParams struct {
	Ledger  ledgerService
	Charger subscriptionCharger
	Plans   *plans.Catalog
	Logger  *logger.Logger
	Metrics *metrics.BillingMetrics
}

// Biller charges subscribed tenants per generation once their credits run out.
type Biller struct {
	ledger  ledgerService
	charger subscriptionCharger
	plans   *plans.Catalog
	logg    *logger.Logger
	metrics *metrics.BillingMetrics
}

func NewBiller(params BillerParams) (*Biller, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Charger == nil {
		return nil, fmt.Errorf("subscription charger required")
	}
	catalog := params.Plans
	if catalog == nil {
		catalog = plans.Default()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Biller{
		ledger:  params.Ledger,
		charger: params.Charger,
		plans:   catalog,
		logg:    logg,
		metrics: params.Metrics,
	}, nil
}

// Bill charges one overage unit to the tenant's subscription at the tier's
// unit price, then logs it. Nothing is logged for a charge that failed; a log
// failure after a successful charge does not undo the charge.
func (b *Biller) Bill(ctx context.Context, tenant *models.Tenant, requestID string) error {
	if tenant == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "tenant required for overage")
	}
	if tenant.ProviderSubscriptionID == nil || *tenant.ProviderSubscriptionID == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "tenant has no billing subscription")
	}
	tier := tenant.Tier()
	plan, ok := b.plans.Lookup(tier)
	if !ok || !plan.OveragePrice.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("no overage price for tier %q", tier))
	}

	ctx = b.logg.WithTenantID(ctx, tenant.ID.String())
	ctx = b.logg.WithField(ctx, "request_id", requestID)

	err := b.charger.ChargeSubscription(ctx, *tenant.ProviderSubscriptionID, paddle.Charge{
		Description: "Virtual try-on generation overage",
		UnitPrice:   plan.OveragePrice,
		Currency:    b.plans.Currency(),
		Quantity:    UnitsPerGeneration,
	})
	if err != nil {
		b.metrics.OverageCharge(plan.Tier, "charge_failed")
		b.logg.Error(ctx, "overage.charge_failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "overage charge failed")
	}

	if err := b.ledger.LogOverage(ctx, ledger.OverageInput{
		TenantID:    tenant.ID,
		Amount:      UnitsPerGeneration,
		RequestID:   requestID,
		Description: fmt.Sprintf("%s overage at %s %s", plan.Tier, plan.OveragePrice.StringFixed(2), b.plans.Currency()),
	}); err != nil {
		b.metrics.OverageCharge(plan.Tier, "log_failed")
		b.logg.Error(ctx, "overage.log_failed", err)
		return nil
	}

	b.metrics.OverageCharge(plan.Tier, "charged")
	return nil
}
