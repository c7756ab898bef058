package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	"github.com/angelmondragon/tryon-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/metrics"
	"github.com/angelmondragon/tryon-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultTimeout = 5 * time.Second

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of balances and the transaction log.
type Service interface {
	// Deduct debits Amount only if the balance covers it. applied=false is a
	// normal outcome with no side effects.
	Deduct(ctx context.Context, input DeductInput) (bool, error)
	Refund(ctx context.Context, input RefundInput) error
	Add(ctx context.Context, input AddInput) error
	// LogOverage records usage billed out-of-band; the balance is untouched.
	LogOverage(ctx context.Context, input OverageInput) error
	GetBalance(ctx context.Context, accountID uuid.UUID) (Balance, error)
	// ListTransactions pages the log newest first.
	ListTransactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) (TransactionPage, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (Reconciliation, error)
	ListAccounts(ctx context.Context, limit, offset int) ([]uuid.UUID, error)
}

// Entry identifies one ledger mutation. TenantID is the billing account: the
// tenant itself, or the shopper for passthrough merchants.
type Entry struct {
	TenantID    uuid.UUID
	Amount      int64
	RequestID   string
	Description string
}

type (
	DeductInput  = Entry
	RefundInput  = Entry
	OverageInput = Entry
)

type AddInput struct {
	Entry
	Type enums.TransactionType
}

type Balance struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	Balance        int64     `json:"balance"`
	TotalPurchased int64     `json:"total_purchased"`
	TotalSpent     int64     `json:"total_spent"`
}

// Reconciliation compares the stored balance with the transaction history.
// Overage entries are excluded because they never touch the balance.
type Reconciliation struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	Balance    int64     `json:"balance"`
	LedgerSum  int64     `json:"ledger_sum"`
	Difference int64     `json:"difference"`
}

// TransactionPage is one page of the transaction log. NextCursor is empty on
// the last page.
type TransactionPage struct {
	Transactions []models.CreditTransaction `json:"transactions"`
	NextCursor   string                     `json:"next_cursor,omitempty"`
}

func (r Reconciliation) Consistent() bool {
	return r.Difference == 0
}

type ServiceParams struct {
	Tx      txRunner
	Repo    Repository
	Timeout time.Duration
	Metrics *metrics.BillingMetrics
}

type service struct {
	tx      txRunner
	repo    Repository
	timeout time.Duration
	metrics *metrics.BillingMetrics
}

// NewService wires a ledger service with the provided repository.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &service{
		tx:      params.Tx,
		repo:    params.Repo,
		timeout: timeout,
		metrics: params.Metrics,
	}, nil
}

func (s *service) Deduct(ctx context.Context, input DeductInput) (bool, error) {
	if err := validateEntry(input); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	applied := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.DeductIfSufficient(ctx, input.TenantID, input.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := repo.AppendTransaction(ctx, newTransaction(input, -input.Amount, enums.TransactionTypeDeduction)); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		s.metrics.LedgerOp("deduct", "error")
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deduct credits")
	}
	if applied {
		s.metrics.LedgerOp("deduct", "applied")
	} else {
		s.metrics.LedgerOp("deduct", "insufficient")
	}
	return applied, nil
}

func (s *service) Refund(ctx context.Context, input RefundInput) error {
	if err := validateEntry(input); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Restore(ctx, input.TenantID, input.Amount); err != nil {
			return err
		}
		return repo.AppendTransaction(ctx, newTransaction(input, input.Amount, enums.TransactionTypeRefund))
	})
	return s.finish("refund", err)
}

func (s *service) Add(ctx context.Context, input AddInput) error {
	if !input.Type.IsCredit() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("transaction type %q cannot add credits", input.Type))
	}
	if err := validateEntry(input.Entry); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Credit(ctx, input.TenantID, input.Amount); err != nil {
			return err
		}
		return repo.AppendTransaction(ctx, newTransaction(input.Entry, input.Amount, input.Type))
	})
	return s.finish("add", err)
}

func (s *service) LogOverage(ctx context.Context, input OverageInput) error {
	if err := validateEntry(input); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.repo.AppendTransaction(ctx, newTransaction(input, -input.Amount, enums.TransactionTypeOverage))
	return s.finish("overage", err)
}

func (s *service) GetBalance(ctx context.Context, accountID uuid.UUID) (Balance, error) {
	if accountID == uuid.Nil {
		return Balance{}, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row, err := s.repo.FindBalance(ctx, accountID)
	if err != nil {
		return Balance{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load balance")
	}
	out := Balance{TenantID: accountID}
	if row != nil {
		out.Balance = row.Balance
		out.TotalPurchased = row.TotalPurchased
		out.TotalSpent = row.TotalSpent
	}
	return out, nil
}

func (s *service) ListTransactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) (TransactionPage, error) {
	if accountID == uuid.Nil {
		return TransactionPage{}, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return TransactionPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	txns, err := s.repo.ListTransactions(ctx, accountID, pagination.LimitWithBuffer(limit), after)
	if err != nil {
		return TransactionPage{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list transactions")
	}

	page := TransactionPage{Transactions: txns}
	if len(txns) > limit {
		page.Transactions = txns[:limit]
		last := page.Transactions[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	if page.Transactions == nil {
		page.Transactions = []models.CreditTransaction{}
	}
	return page, nil
}

func (s *service) Reconcile(ctx context.Context, accountID uuid.UUID) (Reconciliation, error) {
	if accountID == uuid.Nil {
		return Reconciliation{}, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out Reconciliation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.FindBalance(ctx, accountID)
		if err != nil {
			return err
		}
		sum, err := repo.SumTransactions(ctx, accountID, enums.TransactionTypeOverage)
		if err != nil {
			return err
		}
		out = Reconciliation{TenantID: accountID, LedgerSum: sum}
		if row != nil {
			out.Balance = row.Balance
		}
		out.Difference = out.Balance - out.LedgerSum
		return nil
	})
	if err != nil {
		return Reconciliation{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reconcile ledger")
	}
	return out, nil
}

func (s *service) ListAccounts(ctx context.Context, limit, offset int) ([]uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ids, err := s.repo.ListAccountIDs(ctx, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger accounts")
	}
	return ids, nil
}

func (s *service) finish(op string, err error) error {
	if err != nil {
		s.metrics.LedgerOp(op, "error")
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op+" credits")
	}
	s.metrics.LedgerOp(op, "applied")
	return nil
}

func validateEntry(e Entry) error {
	if e.TenantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if e.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
			WithDetails(map[string]any{"amount": e.Amount})
	}
	return nil
}

func newTransaction(e Entry, signed int64, typ enums.TransactionType) *models.CreditTransaction {
	txn := &models.CreditTransaction{
		ID:          uuid.New(),
		TenantID:    e.TenantID,
		Amount:      signed,
		Type:        typ,
		Description: strings.TrimSpace(e.Description),
		CreatedAt:   time.Now().UTC(),
	}
	if id := strings.TrimSpace(e.RequestID); id != "" {
		txn.RequestID = &id
	}
	return txn
}
