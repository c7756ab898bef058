package paddlewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/tryon-backend/internal/ledger"
	"github.com/angelmondragon/tryon-backend/internal/tenants"
	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	"github.com/angelmondragon/tryon-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/paddle"
)

// statusByEvent covers notifications whose payload may omit the status.
var statusByEvent = map[string]enums.SubscriptionStatus{
	paddle.EventSubscriptionActivated: enums.SubscriptionStatusActive,
	paddle.EventSubscriptionResumed:   enums.SubscriptionStatusActive,
	paddle.EventSubscriptionCanceled:  enums.SubscriptionStatusCanceled,
	paddle.EventSubscriptionPaused:    enums.SubscriptionStatusPaused,
	paddle.EventSubscriptionPastDue:   enums.SubscriptionStatusPastDue,
}

func (p *Processor) handleTransaction(ctx context.Context, event paddle.Event, result *Result) error {
	var data paddle.TransactionData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode transaction data")
	}

	purchaseType := enums.PurchaseType(data.CustomData.String("purchase_type"))
	switch purchaseType {
	case enums.PurchaseTypeSubscription, enums.PurchaseTypePayg:
	default:
		result.Ignored = true
		return nil
	}

	tenant, err := p.tenants.Resolve(ctx, parseUUID(data.CustomData.String("tenant_id")), data.SubscriptionID)
	if err != nil {
		return err
	}
	if tenant == nil {
		result.Dropped = true
		p.logg.Warn(ctx, "paddle.tenant_unresolved")
		return nil
	}
	result.TenantID = &tenant.ID
	ctx = p.logg.WithTenantID(ctx, tenant.ID.String())

	if purchaseType == enums.PurchaseTypePayg {
		return p.creditPurchase(ctx, event, data, tenant)
	}
	return p.activateSubscription(ctx, event, data, tenant)
}

func (p *Processor) creditPurchase(ctx context.Context, event paddle.Event, data paddle.TransactionData, tenant *models.Tenant) error {
	credits, ok := data.CustomData.Int("credits")
	if !ok || credits <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "payg transaction requires positive custom_data.credits")
	}
	account := tenant.ID
	if shopper := parseUUID(data.CustomData.String("shopper_id")); shopper != nil {
		account = *shopper
	}
	return p.ledger.Add(ctx, ledger.AddInput{
		Entry: ledger.Entry{
			TenantID:    account,
			Amount:      credits,
			RequestID:   requestID(event.EventID),
			Description: fmt.Sprintf("credit pack %s", data.ID),
		},
		Type: enums.TransactionTypePurchase,
	})
}

func (p *Processor) activateSubscription(ctx context.Context, event paddle.Event, data paddle.TransactionData, tenant *models.Tenant) error {
	tier := data.Tier()
	if tier == "" {
		tier = tenant.Tier()
	}
	plan, ok := p.plans.Lookup(tier)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown subscription tier %q", tier))
	}

	active := enums.SubscriptionStatusActive
	update := tenants.SubscriptionUpdate{
		Tier:   &plan.Tier,
		Status: &active,
	}
	if data.SubscriptionID != "" {
		update.ProviderSubscriptionID = &data.SubscriptionID
	}
	if data.CustomerID != "" {
		update.ProviderCustomerID = &data.CustomerID
	}
	if data.BillingPeriod != nil {
		update.CurrentPeriodStart = &data.BillingPeriod.StartsAt
		update.CurrentPeriodEnd = &data.BillingPeriod.EndsAt
	}
	if err := p.tenants.UpdateSubscription(ctx, tenant.ID, update); err != nil {
		return err
	}

	return p.grantAllotment(ctx, event, tenant.ID, plan.Tier, plan.MonthlyCredits)
}

func (p *Processor) handleSubscription(ctx context.Context, event paddle.Event, result *Result) error {
	var data paddle.SubscriptionData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription data")
	}

	tenant, err := p.tenants.Resolve(ctx, parseUUID(data.CustomData.String("tenant_id")), data.ID)
	if err != nil {
		return err
	}
	if tenant == nil {
		result.Dropped = true
		p.logg.Warn(ctx, "paddle.tenant_unresolved")
		return nil
	}
	result.TenantID = &tenant.ID
	ctx = p.logg.WithTenantID(ctx, tenant.ID.String())

	update := tenants.SubscriptionUpdate{}
	status, statusKnown := subscriptionStatus(event.EventType, data.Status)
	if statusKnown {
		update.Status = &status
	}
	tier := data.Tier()
	if tier != "" {
		update.Tier = &tier
	}
	if data.ID != "" {
		update.ProviderSubscriptionID = &data.ID
	}
	if data.CustomerID != "" {
		update.ProviderCustomerID = &data.CustomerID
	}
	if data.CurrentBillingPeriod != nil {
		update.CurrentPeriodStart = &data.CurrentBillingPeriod.StartsAt
		update.CurrentPeriodEnd = &data.CurrentBillingPeriod.EndsAt
	}
	if err := p.tenants.UpdateSubscription(ctx, tenant.ID, update); err != nil {
		return err
	}

	renewal := event.EventType == paddle.EventSubscriptionActivated ||
		(event.EventType == paddle.EventSubscriptionUpdated && statusKnown && status == enums.SubscriptionStatusActive)
	if !renewal {
		return nil
	}

	if tier == "" {
		tier = tenant.Tier()
	}
	plan, ok := p.plans.Lookup(tier)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("cannot renew unknown subscription tier %q", tier))
	}
	return p.grantAllotment(ctx, event, tenant.ID, plan.Tier, plan.MonthlyCredits)
}

func (p *Processor) grantAllotment(ctx context.Context, event paddle.Event, tenantID uuid.UUID, tier string, credits int64) error {
	return p.ledger.Add(ctx, ledger.AddInput{
		Entry: ledger.Entry{
			TenantID:    tenantID,
			Amount:      credits,
			RequestID:   requestID(event.EventID),
			Description: fmt.Sprintf("%s plan allotment", tier),
		},
		Type: enums.TransactionTypeSubscription,
	})
}

func subscriptionStatus(eventType, raw string) (enums.SubscriptionStatus, bool) {
	if status, err := enums.ParseSubscriptionStatus(raw); err == nil {
		return status, true
	}
	status, ok := statusByEvent[eventType]
	return status, ok
}

func parseUUID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return nil
	}
	return &id
}
