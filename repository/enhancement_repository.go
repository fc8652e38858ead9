package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/faceenhancer/database"
	"github.com/camden-git/faceenhancer/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ListFilter narrows List results. Zero values mean no filter.
type ListFilter struct {
	BatchID string
	Status  string
	Limit   int
	Offset  int
}

type EnhancementRepository struct {
	DB *gorm.DB
}

func NewEnhancementRepository(db *gorm.DB) *EnhancementRepository {
	return &EnhancementRepository{DB: db}
}

func (r *EnhancementRepository) Create(ctx context.Context, e *models.Enhancement) error {
	if e.ID == "" {
		return fmt.Errorf("enhancement record has no id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if err := r.DB.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to create enhancement record: %w", err)
	}
	return nil
}

// GetByID returns gorm.ErrRecordNotFound unwrapped when no record exists.
func (r *EnhancementRepository) GetByID(ctx context.Context, id string) (*models.Enhancement, error) {
	var e models.Enhancement
	err := r.DB.WithContext(ctx).First(&e, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get enhancement by id %s: %w", id, err)
	}
	return &e, nil
}

// List returns records newest first.
func (r *EnhancementRepository) List(ctx context.Context, f ListFilter) ([]models.Enhancement, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	q := r.DB.WithContext(ctx).Model(&models.Enhancement{})
	if f.BatchID != "" {
		q = q.Where("batch_id = ?", f.BatchID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var out []models.Enhancement
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list enhancements: %w", err)
	}
	return out, nil
}

// Stats aggregates records by status, optionally within one batch.
func (r *EnhancementRepository) Stats(ctx context.Context, batchID string) ([]database.StatusStats, error) {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return database.EnhancementStats(ctx, sqlDB, batchID)
}
