package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chunk is a time window of the source audio. Overlaps are zero only at the
// sequence boundaries; with overlaps removed the chunks cover the recording
// exactly once.
type Chunk struct {
	ID          int     `json:"id"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	OverlapPrev float64 `json:"overlap_prev"`
	OverlapNext float64 `json:"overlap_next"`
}

// Segment is one transcript interval. After reconciliation segments are
// sorted by start, non-overlapping, and ids are contiguous from 0.
type Segment struct {
	ID         int     `bson:"id" json:"id"`
	Start      float64 `bson:"start" json:"start"`
	End        float64 `bson:"end" json:"end"`
	Text       string  `bson:"text" json:"text"`
	Speaker    string  `bson:"speaker,omitempty" json:"speaker,omitempty"`
	Confidence float64 `bson:"confidence,omitempty" json:"confidence,omitempty"`
}

// PassResult is the outcome of one transcription attempt over one chunk
// (or the whole file).
type PassResult struct {
	ChunkID     int       `json:"chunk_id"`
	Text        string    `json:"text"`
	Segments    []Segment `json:"segments"`
	Confidence  float64   `json:"confidence"`
	Temperature float64   `json:"temperature"`
	Language    string    `json:"language,omitempty"`
}

// Transcription is the job document persisted in Mongo.
type Transcription struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	JobID          string             `bson:"job_id" json:"job_id"` // uuid v4
	OrganizationID string             `bson:"organization_id" json:"organization_id"`
	ObjectPath     string             `bson:"object_path,omitempty" json:"object_path,omitempty"`

	Language string  `bson:"language" json:"language"`
	Status   string  `bson:"status" json:"status"` // queued|processing|completed|failed
	Progress float64 `bson:"progress" json:"progress"` // 0..100

	Text       string    `bson:"text,omitempty" json:"text,omitempty"`
	Segments   []Segment `bson:"segments,omitempty" json:"segments,omitempty"`
	Confidence float64   `bson:"confidence,omitempty" json:"confidence,omitempty"`
	Warnings   []string  `bson:"warnings,omitempty" json:"warnings,omitempty"`

	AudioQuality    QualityLevel `bson:"audio_quality,omitempty" json:"audio_quality,omitempty"`
	DurationSeconds float64      `bson:"duration_seconds,omitempty" json:"duration_seconds,omitempty"`
	PassCount       int          `bson:"pass_count,omitempty" json:"pass_count,omitempty"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}
