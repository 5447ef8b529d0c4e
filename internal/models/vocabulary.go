package models

import (
	"time"

	"github.com/lib/pq"
)

// VocabularyTerm is an organization-owned term with learned recognition
// statistics. ConfidenceScore stays in [0,1]; UsageCount only grows outside
// of admin resets.
type VocabularyTerm struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrganizationID string `gorm:"column:organization_id;type:uuid;uniqueIndex:idx_vocab_org_term" json:"organization_id"`

	Term       string         `gorm:"column:term;type:text;not null;uniqueIndex:idx_vocab_org_term" json:"term"`
	Variations pq.StringArray `gorm:"column:variations;type:text[]" json:"variations"`
	Category   string         `gorm:"column:category;type:text" json:"category"`

	PhoneticHint string         `gorm:"column:phonetic_hint;type:text" json:"phonetic_hint,omitempty"`
	ContextHints pq.StringArray `gorm:"column:context_hints;type:text[]" json:"context_hints"`

	UsageCount      int64   `gorm:"column:usage_count;default:0" json:"usage_count"`
	ConfidenceScore float64 `gorm:"column:confidence_score;default:0.5" json:"confidence_score"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (VocabularyTerm) TableName() string { return "vocabulary_terms" }

// Forms returns the canonical term followed by its variations.
func (t *VocabularyTerm) Forms() []string {
	out := make([]string, 0, len(t.Variations)+1)
	out = append(out, t.Term)
	out = append(out, t.Variations...)
	return out
}
