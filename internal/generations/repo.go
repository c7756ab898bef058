package generations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tryon-backend/pkg/db/models"
	"github.com/angelmondragon/tryon-backend/pkg/enums"
)

// ErrInvalidTransition is returned when a record is already at or past the
// requested status.
var ErrInvalidTransition = errors.New("invalid generation status transition")

// Repository persists generation records. Status only moves forward and
// terminal records are never rewritten.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the record as queued.
func (r *Repository) Create(ctx context.Context, generation *models.Generation) error {
	if generation == nil {
		return fmt.Errorf("generation is required")
	}
	if generation.ID == uuid.Nil {
		generation.ID = uuid.New()
	}
	generation.Status = enums.GenerationStatusQueued
	return r.db.WithContext(ctx).Create(generation).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	var generation models.Generation
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&generation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &generation, nil
}

// MarkFailed moves a non-terminal record to failed with the given message.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return r.transition(ctx, id, enums.GenerationStatusFailed, map[string]any{
		"error_message": message,
	})
}

// MarkProcessing is used by workers once they pick a task up.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, enums.GenerationStatusProcessing, nil)
}

func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, enums.GenerationStatusCompleted, nil)
}

func (r *Repository) transition(ctx context.Context, id uuid.UUID, to enums.GenerationStatus, extra map[string]any) error {
	from := allowedSources(to)
	if len(from) == 0 {
		return fmt.Errorf("no transitions lead to %s", to)
	}

	cols := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		cols[k] = v
	}

	res := r.db.WithContext(ctx).
		Model(&models.Generation{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return gorm.ErrRecordNotFound
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, existing.Status, to)
	}
	return nil
}

func allowedSources(to enums.GenerationStatus) []enums.GenerationStatus {
	var from []enums.GenerationStatus
	for _, s := range []enums.GenerationStatus{
		enums.GenerationStatusQueued,
		enums.GenerationStatusProcessing,
	} {
		if s.CanTransition(to) {
			from = append(from, s)
		}
	}
	return from
}
