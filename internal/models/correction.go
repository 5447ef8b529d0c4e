package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/datatypes"
)

// CorrectionSpan is one reviewer edit inside a correction record.
type CorrectionSpan struct {
	Start     int    `bson:"start" json:"start"`
	End       int    `bson:"end" json:"end"`
	Original  string `bson:"original" json:"original"`
	Corrected string `bson:"corrected" json:"corrected"`
	Type      string `bson:"type" json:"type"` // substitution|insertion|deletion
}

// CorrectionRecord is produced by a human reviewer, consumed once by the
// accuracy monitor, then archived.
type CorrectionRecord struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TranscriptionID string             `bson:"transcription_id" json:"transcription_id"`
	OrganizationID  string             `bson:"organization_id" json:"organization_id"`

	Original  string           `bson:"original" json:"original"`
	Corrected string           `bson:"corrected" json:"corrected"`
	Spans     []CorrectionSpan `bson:"spans" json:"spans"`

	Archived  bool      `bson:"archived" json:"archived"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// CorrectionPattern is a mined repeated error, reusable as a live suggestion
// whenever the same original substring shows up again.
type CorrectionPattern struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrganizationID string `gorm:"column:organization_id;type:uuid;uniqueIndex:idx_pattern_org_pair" json:"organization_id"`

	Original  string `gorm:"column:original;type:text;uniqueIndex:idx_pattern_org_pair" json:"original"`
	Corrected string `gorm:"column:corrected;type:text;uniqueIndex:idx_pattern_org_pair" json:"corrected"`

	Occurrences int64          `gorm:"column:occurrences;default:0" json:"occurrences"`
	Examples    datatypes.JSON `gorm:"column:examples;type:jsonb" json:"examples"`

	LastSeenAt time.Time `gorm:"column:last_seen_at;type:timestamptz" json:"last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (CorrectionPattern) TableName() string { return "correction_patterns" }
