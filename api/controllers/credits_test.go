package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tryon-backend/api/middleware"
	"github.com/angelmondragon/tryon-backend/internal/ledger"
	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	"github.com/angelmondragon/tryon-backend/pkg/enums"
	"github.com/angelmondragon/tryon-backend/pkg/pagination"
)

type fakeCredits struct {
	accounts []uuid.UUID
	params   pagination.Params
	txns     []models.CreditTransaction
	next     string
}

func (f *fakeCredits) GetBalance(_ context.Context, accountID uuid.UUID) (ledger.Balance, error) {
	f.accounts = append(f.accounts, accountID)
	return ledger.Balance{TenantID: accountID, Balance: 7, TotalPurchased: 10, TotalSpent: 3}, nil
}

func (f *fakeCredits) ListTransactions(_ context.Context, accountID uuid.UUID, params pagination.Params) (ledger.TransactionPage, error) {
	f.accounts = append(f.accounts, accountID)
	f.params = params
	return ledger.TransactionPage{Transactions: f.txns, NextCursor: f.next}, nil
}

func TestCreditsBalanceTenantScope(t *testing.T) {
	tenant := testTenant(enums.CreditModeAbsorb)
	svc := &fakeCredits{}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req = req.WithContext(middleware.WithTenant(req.Context(), tenant))
	rec := httptest.NewRecorder()
	CreditsBalance(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []uuid.UUID{tenant.ID}, svc.accounts)

	var data map[string]any
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &data))
	assert.EqualValues(t, 7, data["balance"])
	assert.EqualValues(t, 10, data["total_purchased"])
	assert.Equal(t, "tenant", data["scope"])
}

func TestCreditsBalancePassthroughUsesShopper(t *testing.T) {
	tenant := testTenant(enums.CreditModePassthrough)
	shopper := uuid.New()
	svc := &fakeCredits{}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	ctx := middleware.WithShopperID(middleware.WithTenant(req.Context(), tenant), shopper)
	rec := httptest.NewRecorder()
	CreditsBalance(svc, nil).ServeHTTP(rec, req.WithContext(ctx))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{shopper}, svc.accounts)
}

func TestCreditsBalancePassthroughWithoutShopper(t *testing.T) {
	svc := &fakeCredits{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req = req.WithContext(middleware.WithTenant(req.Context(), testTenant(enums.CreditModePassthrough)))
	rec := httptest.NewRecorder()
	CreditsBalance(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.accounts)
}

func TestCreditsTransactions(t *testing.T) {
	tenant := testTenant(enums.CreditModeAbsorb)
	reqID := "req-1"
	svc := &fakeCredits{
		txns: []models.CreditTransaction{
			{ID: uuid.New(), TenantID: tenant.ID, Amount: -1, Type: enums.TransactionTypeDeduction, RequestID: &reqID, CreatedAt: time.Now()},
			{ID: uuid.New(), TenantID: tenant.ID, Amount: 100, Type: enums.TransactionTypeSubscription, CreatedAt: time.Now()},
		},
		next: "next-page",
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits/transactions?limit=10&cursor=abc", nil)
	req = req.WithContext(middleware.WithTenant(req.Context(), tenant))
	rec := httptest.NewRecorder()
	CreditsTransactions(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, svc.params)

	var data struct {
		Transactions []struct {
			Amount    int64   `json:"amount"`
			Type      string  `json:"type"`
			RequestID *string `json:"request_id"`
		} `json:"transactions"`
		NextCursor string `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &data))
	require.Len(t, data.Transactions, 2)
	assert.Equal(t, int64(-1), data.Transactions[0].Amount)
	assert.Equal(t, string(enums.TransactionTypeDeduction), data.Transactions[0].Type)
	require.NotNil(t, data.Transactions[0].RequestID)
	assert.Equal(t, "req-1", *data.Transactions[0].RequestID)
	assert.Equal(t, "next-page", data.NextCursor)
}

func TestCreditsTransactionsRejectsBadLimit(t *testing.T) {
	svc := &fakeCredits{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits/transactions?limit=0", nil)
	req = req.WithContext(middleware.WithTenant(req.Context(), testTenant(enums.CreditModeAbsorb)))
	rec := httptest.NewRecorder()
	CreditsTransactions(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
