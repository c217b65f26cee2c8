package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stealth-backend/internal/models"
)

// ReleaseRepository defines the interface for indexed release access
type ReleaseRepository interface {
	Create(ctx context.Context, rec *models.ReleaseRecord) error
	MarkExecuted(ctx context.Context, releaseID string, at time.Time) error
	GetByID(ctx context.Context, releaseID string) (*models.ReleaseRecord, error)
	FindByIntent(ctx context.Context, intentID string) ([]*models.ReleaseRecord, error)
}

type releaseRepository struct {
	db *gorm.DB
}

// NewReleaseRepository creates a new ReleaseRepository instance
func NewReleaseRepository(db *gorm.DB) ReleaseRepository {
	return &releaseRepository{db: db}
}

// Create inserts a release; a redelivered event is a no-op
func (r *releaseRepository) Create(ctx context.Context, rec *models.ReleaseRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error
}

// MarkExecuted flags a release as paid
func (r *releaseRepository) MarkExecuted(ctx context.Context, releaseID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ReleaseRecord{}).
		Where("release_id = ?", releaseID).
		Updates(map[string]interface{}{
			"executed":    true,
			"executed_at": at,
			"updated_at":  time.Now().UTC(),
		}).Error
}

// GetByID retrieves a release by id
func (r *releaseRepository) GetByID(ctx context.Context, releaseID string) (*models.ReleaseRecord, error) {
	var rec models.ReleaseRecord
	err := r.db.WithContext(ctx).Where("release_id = ?", releaseID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByIntent retrieves the releases of an intent
func (r *releaseRepository) FindByIntent(ctx context.Context, intentID string) ([]*models.ReleaseRecord, error) {
	var recs []*models.ReleaseRecord
	err := r.db.WithContext(ctx).
		Where("intent_id = ?", intentID).
		Order("release_time ASC").
		Find(&recs).Error
	return recs, err
}
