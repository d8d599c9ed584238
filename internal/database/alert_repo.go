package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"gatehouse/internal/domain"
)

type AlertRepo struct {
	db *gorm.DB
}

func NewAlertRepo(db *gorm.DB) *AlertRepo {
	return &AlertRepo{db: db}
}

func (r *AlertRepo) Insert(ctx context.Context, alert *domain.Alert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

// HasOpenAlert reports whether an unacknowledged alert with the same pattern
// and description already exists. The detector uses this to avoid re-raising
// the same finding every scan.
func (r *AlertRepo) HasOpenAlert(ctx context.Context, pattern, description string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Alert{}).
		Where("pattern = ? AND description = ? AND acknowledged = false", pattern, description).
		Count(&count).Error
	return count > 0, err
}

// List returns alerts newest first. With onlyOpen set, acknowledged alerts
// are skipped.
func (r *AlertRepo) List(ctx context.Context, onlyOpen bool, limit int) ([]domain.Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := r.db.WithContext(ctx).Order("detected_at DESC").Limit(limit)
	if onlyOpen {
		query = query.Where("acknowledged = false")
	}

	var alerts []domain.Alert
	err := query.Find(&alerts).Error
	return alerts, err
}

// Acknowledge marks the alert as handled. Returns false when the alert does
// not exist or was already acknowledged.
func (r *AlertRepo) Acknowledge(ctx context.Context, id uint64, actor string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Alert{}).
		Where("id = ? AND acknowledged = false", id).
		Updates(map[string]any{
			"acknowledged":    true,
			"acknowledged_by": actor,
			"acknowledged_at": now,
		})
	return result.RowsAffected > 0, result.Error
}
