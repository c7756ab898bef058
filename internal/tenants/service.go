package tenants

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	"github.com/angelmondragon/tryon-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes tenant lookups to the quota gate and billing paths.
type Service interface {
	Create(ctx context.Context, input CreateTenantInput) (*models.Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	// Resolve prefers an explicit tenant id and falls back to the provider
	// subscription id. It returns nil when neither matches.
	Resolve(ctx context.Context, tenantID *uuid.UUID, providerSubscriptionID string) (*models.Tenant, error)
	UpdateSubscription(ctx context.Context, id uuid.UUID, update SubscriptionUpdate) error
}

type CreateTenantInput struct {
	Name       string           `json:"name" validate:"required"`
	Channel    enums.Channel    `json:"channel" validate:"required"`
	CreditMode enums.CreditMode `json:"credit_mode"`
}

type service struct {
	tx   txRunner
	repo *Repository
}

func NewService(tx txRunner, repo *Repository) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("tenant repository required")
	}
	return &service{tx: tx, repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateTenantInput) (*models.Tenant, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !input.Channel.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid channel")
	}
	mode := input.CreditMode
	if mode == "" {
		mode = enums.CreditModeAbsorb
	}
	if !mode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid credit mode")
	}
	if mode == enums.CreditModePassthrough && input.Channel != enums.ChannelShopify {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "passthrough credit mode requires the shopify channel")
	}

	tenant := &models.Tenant{
		ID:         uuid.New(),
		Name:       name,
		Channel:    input.Channel,
		CreditMode: mode,
		Active:     true,
	}
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, tenant)
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create tenant")
	}
	return tenant, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	tenant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tenant")
	}
	if tenant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	return tenant, nil
}

func (s *service) Resolve(ctx context.Context, tenantID *uuid.UUID, providerSubscriptionID string) (*models.Tenant, error) {
	if tenantID != nil && *tenantID != uuid.Nil {
		tenant, err := s.repo.FindByID(ctx, *tenantID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tenant")
		}
		if tenant != nil {
			return tenant, nil
		}
	}
	subID := strings.TrimSpace(providerSubscriptionID)
	if subID == "" {
		return nil, nil
	}
	tenant, err := s.repo.FindByProviderSubscriptionID(ctx, subID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tenant by subscription")
	}
	return tenant, nil
}

func (s *service) UpdateSubscription(ctx context.Context, id uuid.UUID, update SubscriptionUpdate) error {
	if update.Status != nil && !update.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid subscription status %q", *update.Status))
	}
	err := s.repo.UpdateSubscription(ctx, id, update)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update tenant subscription")
	}
	return nil
}
