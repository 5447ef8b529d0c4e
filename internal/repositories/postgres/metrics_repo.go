package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/meetlens/meetlens/internal/models"
)

type MetricsRepository interface {
	Append(ctx context.Context, m *models.AccuracyMetrics) error
	ListByWindow(ctx context.Context, organizationID string, from, to time.Time) ([]models.AccuracyMetrics, error)
	AttachCorrection(ctx context.Context, transcriptionID string, wer, cer float64) error
}

type metricsRepo struct {
	db *gorm.DB
}

func NewMetricsRepo(db *gorm.DB) MetricsRepository {
	return &metricsRepo{db: db}
}

func (r *metricsRepo) Append(ctx context.Context, m *models.AccuracyMetrics) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *metricsRepo) ListByWindow(ctx context.Context, organizationID string, from, to time.Time) ([]models.AccuracyMetrics, error) {
	var rows []models.AccuracyMetrics
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND created_at >= ? AND created_at < ?", organizationID, from, to).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// AttachCorrection backfills error rates onto the job's metrics row once a
// reviewer correction exists, and bumps the correction counter.
func (r *metricsRepo) AttachCorrection(ctx context.Context, transcriptionID string, wer, cer float64) error {
	return r.db.WithContext(ctx).
		Model(&models.AccuracyMetrics{}).
		Where("transcription_id = ?", transcriptionID).
		UpdateColumns(map[string]any{
			"word_error_rate":      wer,
			"character_error_rate": cer,
			"user_corrections":     gorm.Expr("user_corrections + 1"),
		}).Error
}
