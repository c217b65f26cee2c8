// Package repository provides data access interfaces and implementations
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stealth-backend/internal/models"
)

// IntentRepository defines the interface for indexed intent access
type IntentRepository interface {
	Upsert(ctx context.Context, rec *models.IntentRecord) error
	MarkSettled(ctx context.Context, intentIDs []string, batchID string, at time.Time) error
	GetByID(ctx context.Context, intentID string) (*models.IntentRecord, error)
	FindBySender(ctx context.Context, sender string, page, pageSize int) ([]*models.IntentRecord, int64, error)
}

type intentRepository struct {
	db *gorm.DB
}

// NewIntentRepository creates a new IntentRepository instance
func NewIntentRepository(db *gorm.DB) IntentRepository {
	return &intentRepository{db: db}
}

// Upsert inserts the record or overwrites the status of an existing one
func (r *intentRepository) Upsert(ctx context.Context, rec *models.IntentRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "intent_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(rec).Error
}

// MarkSettled records the batch that settled the intents
func (r *intentRepository) MarkSettled(ctx context.Context, intentIDs []string, batchID string, at time.Time) error {
	if len(intentIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.IntentRecord{}).
		Where("intent_id IN ?", intentIDs).
		Updates(map[string]interface{}{
			"status":     "settled",
			"batch_id":   batchID,
			"settled_at": at,
			"updated_at": time.Now().UTC(),
		}).Error
}

// GetByID retrieves an intent by id
func (r *intentRepository) GetByID(ctx context.Context, intentID string) (*models.IntentRecord, error) {
	var rec models.IntentRecord
	err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindBySender retrieves a sender's intents, newest first
func (r *intentRepository) FindBySender(ctx context.Context, sender string, page, pageSize int) ([]*models.IntentRecord, int64, error) {
	var recs []*models.IntentRecord
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.IntentRecord{}).Where("sender = ?", sender).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Where("sender = ?", sender).
		Order("submitted_at DESC").
		Offset(offset(page, pageSize)).
		Limit(pageSize).
		Find(&recs).Error
	return recs, total, err
}

func offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
