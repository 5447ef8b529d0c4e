package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/meetlens/meetlens/internal/models"
	"github.com/meetlens/meetlens/internal/utils"
)

type TranscriptRepository interface {
	Create(ctx context.Context, t *models.Transcription) error
	GetByJobID(ctx context.Context, jobID string) (*models.Transcription, error)
	SetProgress(ctx context.Context, jobID string, progress float64) error
	Complete(ctx context.Context, t *models.Transcription) error
	Fail(ctx context.Context, jobID, reason string) error
	ListByOrganization(ctx context.Context, organizationID string, limit int64) ([]models.Transcription, error)
}

type transcriptRepo struct {
	col *mongo.Collection
}

func NewTranscriptRepo(db *mongo.Database) TranscriptRepository {
	return &transcriptRepo{col: db.Collection("transcriptions")}
}

func (r *transcriptRepo) Create(ctx context.Context, t *models.Transcription) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = "queued"
	}
	_, err := r.col.InsertOne(ctx, t)
	return err
}

func (r *transcriptRepo) GetByJobID(ctx context.Context, jobID string) (*models.Transcription, error) {
	var t models.Transcription
	err := r.col.FindOne(ctx, bson.M{"job_id": jobID}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transcriptRepo) SetProgress(ctx context.Context, jobID string, progress float64) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"job_id": jobID},
		bson.M{"$set": bson.M{"status": "processing", "progress": progress}},
	)
	return err
}

// Complete upserts the finished document so a job that was never enqueued
// through the API still lands as a record.
func (r *transcriptRepo) Complete(ctx context.Context, t *models.Transcription) error {
	if t.CompletedAt == nil {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	t.Status = "completed"
	t.Progress = 100

	_, err := r.col.UpdateOne(ctx,
		bson.M{"job_id": t.JobID},
		bson.M{"$set": bson.M{
			"organization_id":  t.OrganizationID,
			"language":         t.Language,
			"status":           t.Status,
			"progress":         t.Progress,
			"text":             t.Text,
			"segments":         t.Segments,
			"confidence":       t.Confidence,
			"warnings":         t.Warnings,
			"audio_quality":    t.AudioQuality,
			"duration_seconds": t.DurationSeconds,
			"pass_count":       t.PassCount,
			"completed_at":     t.CompletedAt,
		}, "$setOnInsert": bson.M{"created_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *transcriptRepo) Fail(ctx context.Context, jobID, reason string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"job_id": jobID},
		bson.M{"$set": bson.M{
			"status":   "failed",
			"warnings": []string{reason},
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *transcriptRepo) ListByOrganization(ctx context.Context, organizationID string, limit int64) ([]models.Transcription, error) {
	if limit <= 0 {
		limit = 50
	}

	cur, err := r.col.Find(ctx,
		bson.M{"organization_id": organizationID},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Transcription
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
