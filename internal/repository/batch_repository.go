package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stealth-backend/internal/models"
)

// BatchRepository defines the interface for accepted batch history
type BatchRepository interface {
	Create(ctx context.Context, rec *models.BatchRecord) error
	GetByID(ctx context.Context, batchID string) (*models.BatchRecord, error)
	List(ctx context.Context, page, pageSize int) ([]*models.BatchRecord, int64, error)
}

type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates a new BatchRepository instance
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) Create(ctx context.Context, rec *models.BatchRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error
}

func (r *batchRepository) GetByID(ctx context.Context, batchID string) (*models.BatchRecord, error) {
	var rec models.BatchRecord
	err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List retrieves paginated batches, newest first
func (r *batchRepository) List(ctx context.Context, page, pageSize int) ([]*models.BatchRecord, int64, error) {
	var recs []*models.BatchRecord
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.BatchRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Order("settled_at DESC").
		Offset(offset(page, pageSize)).
		Limit(pageSize).
		Find(&recs).Error
	return recs, total, err
}
