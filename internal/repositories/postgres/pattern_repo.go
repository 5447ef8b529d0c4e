package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meetlens/meetlens/internal/models"
	"github.com/meetlens/meetlens/internal/utils"
)

type PatternRepository interface {
	Upsert(ctx context.Context, p *models.CorrectionPattern) error
	ListRecurring(ctx context.Context, organizationID string, minOccurrences int64, limit int) ([]models.CorrectionPattern, error)
	FindByOriginal(ctx context.Context, organizationID, original string) (*models.CorrectionPattern, error)
}

type patternRepo struct {
	db *gorm.DB
}

func NewPatternRepo(db *gorm.DB) PatternRepository {
	return &patternRepo{db: db}
}

// Upsert inserts a pattern or, when the (organization, original, corrected)
// triple already exists, bumps its occurrence count.
func (r *patternRepo) Upsert(ctx context.Context, p *models.CorrectionPattern) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.LastSeenAt = now
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}, {Name: "original"}, {Name: "corrected"}},
			DoUpdates: clause.Assignments(map[string]any{
				"occurrences":  gorm.Expr("correction_patterns.occurrences + ?", p.Occurrences),
				"examples":     p.Examples,
				"last_seen_at": now,
			}),
		}).
		Create(p).Error
}

func (r *patternRepo) FindByOriginal(ctx context.Context, organizationID, original string) (*models.CorrectionPattern, error) {
	var p models.CorrectionPattern
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND original = ?", organizationID, original).
		Order("occurrences DESC").
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &p, err
}

func (r *patternRepo) ListRecurring(ctx context.Context, organizationID string, minOccurrences int64, limit int) ([]models.CorrectionPattern, error) {
	var rows []models.CorrectionPattern
	q := r.db.WithContext(ctx).
		Where("organization_id = ? AND occurrences >= ?", organizationID, minOccurrences).
		Order("occurrences DESC, last_seen_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}
