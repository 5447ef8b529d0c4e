package models

import (
	"time"
)

// AccuracyMetrics is one immutable row per completed job, appended to the
// time-series table. WER/CER stay nil until a reviewer correction exists.
type AccuracyMetrics struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	TranscriptionID string `gorm:"column:transcription_id;index" json:"transcription_id"`
	OrganizationID  string `gorm:"column:organization_id;type:uuid;index" json:"organization_id"`

	WordErrorRate      *float64 `gorm:"column:word_error_rate" json:"word_error_rate,omitempty"`
	CharacterErrorRate *float64 `gorm:"column:character_error_rate" json:"character_error_rate,omitempty"`

	VocabularyMatchRate float64      `gorm:"column:vocabulary_match_rate" json:"vocabulary_match_rate"`
	ConfidenceScore     float64      `gorm:"column:confidence_score" json:"confidence_score"`
	AudioQuality        QualityLevel `gorm:"column:audio_quality;type:text" json:"audio_quality"`
	DurationSeconds     float64      `gorm:"column:duration_seconds" json:"duration_seconds"`

	PassCount           int `gorm:"column:pass_count" json:"pass_count"`
	EnhancementsApplied int `gorm:"column:enhancements_applied" json:"enhancements_applied"`
	UserCorrections     int `gorm:"column:user_corrections" json:"user_corrections"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
}

func (AccuracyMetrics) TableName() string { return "accuracy_metrics" }

// PatternSummary is a mined error surfaced in reports.
type PatternSummary struct {
	Original    string `json:"original"`
	Corrected   string `json:"corrected"`
	Occurrences int64  `json:"occurrences"`
}

// AccuracyReport aggregates accuracy over a time window. Computed on demand,
// never stored.
type AccuracyReport struct {
	OrganizationID string    `json:"organization_id"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`

	TotalJobs         int     `json:"total_jobs"`
	TotalCorrections  int     `json:"total_corrections"`
	AverageWER        float64 `json:"average_wer"`
	AverageConfidence float64 `json:"average_confidence"`

	QualityDistribution map[QualityLevel]int `json:"quality_distribution"`
	TopErrors           []PatternSummary     `json:"top_errors"`

	WellRecognizedTerms   []string `json:"well_recognized_terms"`
	PoorlyRecognizedTerms []string `json:"poorly_recognized_terms"`

	Recommendations []string `json:"recommendations"`
}
