package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/openedu-labs/qfeed-api/internal/models"
)

// BlockRepository defines data operations for question blocks.
type BlockRepository interface {
	GetByID(ctx context.Context, id uint) (models.Block, error)
}

type blockRepository struct {
	db *gorm.DB
}

// NewBlockRepository instantiates the repository.
func NewBlockRepository(db *gorm.DB) BlockRepository {
	return &blockRepository{db: db}
}

func (r *blockRepository) GetByID(ctx context.Context, id uint) (models.Block, error) {
	var block models.Block
	if err := r.db.WithContext(ctx).
		Preload("Choices").
		Preload("Actions").
		First(&block, id).Error; err != nil {
		return models.Block{}, err
	}

	return block, nil
}
