package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tryon-backend/api/middleware"
	"github.com/angelmondragon/tryon-backend/api/responses"
	"github.com/angelmondragon/tryon-backend/api/validators"
	"github.com/angelmondragon/tryon-backend/internal/dispatch"
	"github.com/angelmondragon/tryon-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
	"github.com/angelmondragon/tryon-backend/pkg/pagination"
)

// CreditsReader is the read side of the ledger.
type CreditsReader interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (ledger.Balance, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) (ledger.TransactionPage, error)
}

type balanceResponse struct {
	ledger.Balance
	Scope string `json:"scope"`
}

type transactionResponse struct {
	ID          uuid.UUID `json:"id"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	RequestID   *string   `json:"request_id,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type transactionsResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	NextCursor   string                `json:"next_cursor,omitempty"`
}

// CreditsBalance returns the balance of the account the caller is billed to.
func CreditsBalance(svc CreditsReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, scope, err := creditAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.GetBalance(r.Context(), account)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{Balance: balance, Scope: scope})
	}
}

// CreditsTransactions pages ledger entries newest first. Pass next_cursor back
// as ?cursor= to continue.
func CreditsTransactions(svc CreditsReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, _, err := creditAccount(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListTransactions(r.Context(), account, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]transactionResponse, 0, len(page.Transactions))
		for _, txn := range page.Transactions {
			out = append(out, transactionResponse{
				ID:          txn.ID,
				Amount:      txn.Amount,
				Type:        string(txn.Type),
				RequestID:   txn.RequestID,
				Description: txn.Description,
				CreatedAt:   txn.CreatedAt,
			})
		}
		responses.WriteSuccess(w, transactionsResponse{Transactions: out, NextCursor: page.NextCursor})
	}
}

func creditAccount(r *http.Request) (uuid.UUID, string, error) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return dispatch.BillingAccount(tenant, middleware.ShopperIDFromContext(r.Context()))
}
