package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	"github.com/angelmondragon/tryon-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscriptionUpdate carries the provider-side subscription fields to apply.
// Nil fields are left untouched.
type SubscriptionUpdate struct {
	Tier                   *string
	Status                 *enums.SubscriptionStatus
	ProviderSubscriptionID *string
	ProviderCustomerID     *string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
}

func (u SubscriptionUpdate) columns() map[string]any {
	cols := map[string]any{}
	if u.Tier != nil {
		cols["subscription_tier"] = *u.Tier
	}
	if u.Status != nil {
		cols["subscription_status"] = *u.Status
	}
	if u.ProviderSubscriptionID != nil {
		cols["provider_subscription_id"] = *u.ProviderSubscriptionID
	}
	if u.ProviderCustomerID != nil {
		cols["provider_customer_id"] = *u.ProviderCustomerID
	}
	if u.CurrentPeriodStart != nil {
		cols["current_period_start"] = *u.CurrentPeriodStart
	}
	if u.CurrentPeriodEnd != nil {
		cols["current_period_end"] = *u.CurrentPeriodEnd
	}
	return cols
}

// Repository handles tenant persistence. Lookups return nil without error
// when no tenant matches.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create persists the tenant together with its empty balance row.
func (r *Repository) Create(ctx context.Context, tenant *models.Tenant) error {
	if tenant == nil {
		return fmt.Errorf("tenant is required")
	}
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&models.TenantBalance{
		TenantID:  tenant.ID,
		UpdatedAt: time.Now().UTC(),
	}).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&tenant).Error
	return found(&tenant, err)
}

func (r *Repository) FindByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", subscriptionID).
		Take(&tenant).Error
	return found(&tenant, err)
}

func (r *Repository) UpdateSubscription(ctx context.Context, id uuid.UUID, update SubscriptionUpdate) error {
	cols := update.columns()
	if len(cols) == 0 {
		return nil
	}
	cols["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", id).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func found(tenant *models.Tenant, err error) (*models.Tenant, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tenant, nil
}
