package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stealth-backend/internal/models"
)

// EventRepository stores the ledger event log
type EventRepository interface {
	Append(ctx context.Context, rec *models.LedgerEventRecord) error
	ListSince(ctx context.Context, timestamp int64, limit int) ([]*models.LedgerEventRecord, error)
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository instance
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Append stores an event once; the event id deduplicates redeliveries
func (r *eventRepository) Append(ctx context.Context, rec *models.LedgerEventRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error
}

// ListSince returns events at or after timestamp, oldest first
func (r *eventRepository) ListSince(ctx context.Context, timestamp int64, limit int) ([]*models.LedgerEventRecord, error) {
	var recs []*models.LedgerEventRecord
	err := r.db.WithContext(ctx).
		Where("timestamp >= ?", timestamp).
		Order("timestamp ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
