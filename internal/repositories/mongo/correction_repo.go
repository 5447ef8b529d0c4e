package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/meetlens/meetlens/internal/models"
)

type CorrectionRepository interface {
	Insert(ctx context.Context, c *models.CorrectionRecord) error
	ListPending(ctx context.Context, organizationID string, limit int64) ([]models.CorrectionRecord, error)
	Archive(ctx context.Context, id any) error
	CountByWindow(ctx context.Context, organizationID string, from, to time.Time) (int64, error)
}

type correctionRepo struct {
	col *mongo.Collection
}

func NewCorrectionRepo(db *mongo.Database) CorrectionRepository {
	return &correctionRepo{col: db.Collection("corrections")}
}

func (r *correctionRepo) Insert(ctx context.Context, c *models.CorrectionRecord) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := r.col.InsertOne(ctx, c)
	if err != nil {
		return err
	}
	// The driver puts the generated _id only into the marshaled document.
	// Write it back so the caller can archive the record it just stored.
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		c.ID = oid
	}
	return nil
}

// ListPending returns unarchived corrections oldest first, so feedback is
// applied in the order reviewers produced it.
func (r *correctionRepo) ListPending(ctx context.Context, organizationID string, limit int64) ([]models.CorrectionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	cur, err := r.col.Find(ctx,
		bson.M{"organization_id": organizationID, "archived": false},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.CorrectionRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *correctionRepo) Archive(ctx context.Context, id any) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"archived": true}},
	)
	return err
}

func (r *correctionRepo) CountByWindow(ctx context.Context, organizationID string, from, to time.Time) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{
		"organization_id": organizationID,
		"created_at":      bson.M{"$gte": from, "$lt": to},
	})
}
