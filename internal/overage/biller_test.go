package overage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tryon-backend/internal/ledger"
	"github.com/angelmondragon/tryon-backend/internal/plans"
	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	"github.com/angelmondragon/tryon-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/paddle"
)

type fakeLedger struct {
	logged  []ledger.OverageInput
	err     error
	charger *fakeCharger
	charged []int
}

func (f *fakeLedger) LogOverage(_ context.Context, input ledger.OverageInput) error {
	if f.charger != nil {
		f.charged = append(f.charged, f.charger.calls)
	}
	if f.err != nil {
		return f.err
	}
	f.logged = append(f.logged, input)
	return nil
}

type fakeCharger struct {
	subscriptionID string
	charge         paddle.Charge
	err            error
	calls          int
}

func (f *fakeCharger) ChargeSubscription(_ context.Context, subscriptionID string, charge paddle.Charge) error {
	f.calls++
	f.subscriptionID = subscriptionID
	f.charge = charge
	return f.err
}

func subscribedTenant(tier string) *models.Tenant {
	status := enums.SubscriptionStatusActive
	subID := "sub_over"
	return &models.Tenant{
		ID:                     uuid.New(),
		SubscriptionTier:       &tier,
		SubscriptionStatus:     &status,
		ProviderSubscriptionID: &subID,
	}
}

func newTestBiller(t *testing.T, l *fakeLedger, c *fakeCharger) *Biller {
	t.Helper()
	catalog, err := plans.NewCatalog(plans.Options{OveragePrices: "growth:0.12"})
	require.NoError(t, err)
	b, err := NewBiller(BillerParams{Ledger: l, Charger: c, Plans: catalog})
	require.NoError(t, err)
	return b
}

func TestBillChargesThenLogs(t *testing.T) {
	c := &fakeCharger{}
	l := &fakeLedger{charger: c}
	b := newTestBiller(t, l, c)
	tenant := subscribedTenant("growth")

	require.NoError(t, b.Bill(context.Background(), tenant, "req-9"))

	require.Len(t, l.logged, 1)
	assert.Equal(t, tenant.ID, l.logged[0].TenantID)
	assert.Equal(t, int64(1), l.logged[0].Amount)
	assert.Equal(t, "req-9", l.logged[0].RequestID)
	assert.Equal(t, []int{1}, l.charged, "usage is logged only after the charge")

	assert.Equal(t, "sub_over", c.subscriptionID)
	assert.True(t, decimal.RequireFromString("0.12").Equal(c.charge.UnitPrice))
	assert.Equal(t, "USD", c.charge.Currency)
	assert.Equal(t, 1, c.charge.Quantity)
}

func TestBillChargeFailureIsDependencyError(t *testing.T) {
	l := &fakeLedger{}
	c := &fakeCharger{err: errors.New("paddle 502")}
	b := newTestBiller(t, l, c)

	err := b.Bill(context.Background(), subscribedTenant("growth"), "req-1")
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
	assert.Empty(t, l.logged)
}

func TestBillRequiresSubscription(t *testing.T) {
	l := &fakeLedger{}
	c := &fakeCharger{}
	b := newTestBiller(t, l, c)

	tenant := subscribedTenant("growth")
	tenant.ProviderSubscriptionID = nil
	err := b.Bill(context.Background(), tenant, "req-1")
	assert.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(err))

	err = b.Bill(context.Background(), subscribedTenant("mystery"), "req-1")
	assert.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(err))

	assert.Empty(t, l.logged)
	assert.Zero(t, c.calls)
}

func TestBillLogFailureKeepsCharge(t *testing.T) {
	l := &fakeLedger{err: pkgerrors.New(pkgerrors.CodeInternal, "db down")}
	c := &fakeCharger{}
	b := newTestBiller(t, l, c)

	require.NoError(t, b.Bill(context.Background(), subscribedTenant("growth"), "req-1"))
	assert.Equal(t, 1, c.calls)
	assert.Empty(t, l.logged)
}
