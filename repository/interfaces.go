package repository

import (
	"context"

	"github.com/camden-git/faceenhancer/database"
	"github.com/camden-git/faceenhancer/models"
)

type EnhancementRepositoryInterface interface {
	Create(ctx context.Context, e *models.Enhancement) error
	GetByID(ctx context.Context, id string) (*models.Enhancement, error)
	List(ctx context.Context, f ListFilter) ([]models.Enhancement, error)
	Stats(ctx context.Context, batchID string) ([]database.StatusStats, error)
}

var _ EnhancementRepositoryInterface = (*EnhancementRepository)(nil)
