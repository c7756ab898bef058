package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	"github.com/angelmondragon/tryon-backend/pkg/enums"
	"github.com/angelmondragon/tryon-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for balances and the transaction log. Every
// balance mutation is a single conditional or upsert statement so concurrent
// callers never read-modify-write.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	DeductIfSufficient(ctx context.Context, accountID uuid.UUID, amount int64) (bool, error)
	Credit(ctx context.Context, accountID uuid.UUID, amount int64) error
	Restore(ctx context.Context, accountID uuid.UUID, amount int64) error
	AppendTransaction(ctx context.Context, txn *models.CreditTransaction) error
	FindBalance(ctx context.Context, accountID uuid.UUID) (*models.TenantBalance, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int, after *pagination.Cursor) ([]models.CreditTransaction, error)
	SumTransactions(ctx context.Context, accountID uuid.UUID, exclude ...enums.TransactionType) (int64, error)
	ListAccountIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) DeductIfSufficient(ctx context.Context, accountID uuid.UUID, amount int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.TenantBalance{}).
		Where("tenant_id = ? AND balance >= ?", accountID, amount).
		Updates(map[string]any{
			"balance":     gorm.Expr("balance - ?", amount),
			"total_spent": gorm.Expr("total_spent + ?", amount),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Credit(ctx context.Context, accountID uuid.UUID, amount int64) error {
	row := &models.TenantBalance{
		TenantID:       accountID,
		Balance:        amount,
		TotalPurchased: amount,
		UpdatedAt:      time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"balance":         gorm.Expr("tenant_balances.balance + ?", amount),
				"total_purchased": gorm.Expr("tenant_balances.total_purchased + ?", amount),
				"updated_at":      row.UpdatedAt,
			}),
		}).
		Create(row).Error
}

func (r *repository) Restore(ctx context.Context, accountID uuid.UUID, amount int64) error {
	row := &models.TenantBalance{
		TenantID:  accountID,
		Balance:   amount,
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"balance": gorm.Expr("tenant_balances.balance + ?", amount),
				"total_spent": gorm.Expr(
					"CASE WHEN tenant_balances.total_spent > ? THEN tenant_balances.total_spent - ? ELSE 0 END",
					amount, amount,
				),
				"updated_at": row.UpdatedAt,
			}),
		}).
		Create(row).Error
}

func (r *repository) AppendTransaction(ctx context.Context, txn *models.CreditTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindBalance(ctx context.Context, accountID uuid.UUID) (*models.TenantBalance, error) {
	var balance models.TenantBalance
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", accountID).
		Take(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *repository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int, after *pagination.Cursor) ([]models.CreditTransaction, error) {
	var txns []models.CreditTransaction
	q := r.db.WithContext(ctx).Where("tenant_id = ?", accountID)
	if after != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	if err := q.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) SumTransactions(ctx context.Context, accountID uuid.UUID, exclude ...enums.TransactionType) (int64, error) {
	var total int64
	q := r.db.WithContext(ctx).
		Model(&models.CreditTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("tenant_id = ?", accountID)
	if len(exclude) > 0 {
		q = q.Where("type NOT IN ?", exclude)
	}
	if err := q.Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) ListAccountIDs(ctx context.Context, limit, offset int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.TenantBalance{}).
		Order("tenant_id ASC").
		Limit(limit).
		Offset(offset).
		Pluck("tenant_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
