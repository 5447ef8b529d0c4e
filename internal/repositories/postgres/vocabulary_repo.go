package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meetlens/meetlens/internal/models"
	"github.com/meetlens/meetlens/internal/utils"
)

type VocabularyRepository interface {
	ListByOrganization(ctx context.Context, organizationID string) ([]models.VocabularyTerm, error)
	GetByTerm(ctx context.Context, organizationID, term string) (*models.VocabularyTerm, error)
	Upsert(ctx context.Context, t *models.VocabularyTerm) error
	Delete(ctx context.Context, organizationID string, id uint) error
	IncrementUsage(ctx context.Context, organizationID, term string) error
	AdjustConfidence(ctx context.Context, organizationID, term string, delta, floor, cap float64) error
}

type vocabularyRepo struct {
	db *gorm.DB
}

func NewVocabularyRepo(db *gorm.DB) VocabularyRepository {
	return &vocabularyRepo{db: db}
}

func (r *vocabularyRepo) ListByOrganization(ctx context.Context, organizationID string) ([]models.VocabularyTerm, error) {
	var terms []models.VocabularyTerm
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("confidence_score DESC, term ASC").
		Find(&terms).Error
	return terms, err
}

func (r *vocabularyRepo) GetByTerm(ctx context.Context, organizationID, term string) (*models.VocabularyTerm, error) {
	var t models.VocabularyTerm
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND term = ?", organizationID, term).
		Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &t, err
}

func (r *vocabularyRepo) Upsert(ctx context.Context, t *models.VocabularyTerm) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}, {Name: "term"}},
			DoUpdates: clause.AssignmentColumns([]string{"variations", "category", "phonetic_hint", "context_hints", "updated_at"}),
		}).
		Create(t).Error
}

func (r *vocabularyRepo) Delete(ctx context.Context, organizationID string, id uint) error {
	res := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", organizationID, id).
		Delete(&models.VocabularyTerm{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *vocabularyRepo) IncrementUsage(ctx context.Context, organizationID, term string) error {
	return r.db.WithContext(ctx).
		Model(&models.VocabularyTerm{}).
		Where("organization_id = ? AND term = ?", organizationID, term).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error
}

// AdjustConfidence shifts confidence_score by delta and clamps it to
// [floor, cap] in one statement, so concurrent feedback never races the
// clamp.
func (r *vocabularyRepo) AdjustConfidence(ctx context.Context, organizationID, term string, delta, floor, cap float64) error {
	res := r.db.WithContext(ctx).
		Model(&models.VocabularyTerm{}).
		Where("organization_id = ? AND term = ?", organizationID, term).
		UpdateColumn("confidence_score", gorm.Expr("LEAST(GREATEST(confidence_score + ?, ?), ?)", delta, floor, cap))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}
