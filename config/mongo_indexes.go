package config

import (
	"context"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes() error {
	if MongoClient == nil {
		return errors.New("MongoClient is nil; call InitMongo() first")
	}

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "meetlens"
	}
	db := MongoClient.Database(dbName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	transcriptions := db.Collection("transcriptions")
	_, err := transcriptions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "job_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_job_id").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "organization_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_org_created"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("by_status"),
		},
	})
	if err != nil {
		return err
	}

	corrections := db.Collection("corrections")
	_, err = corrections.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// Drained in submission order by the accuracy worker
		{
			Keys:    bson.D{{Key: "organization_id", Value: 1}, {Key: "archived", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("pending_by_org"),
		},
		{
			Keys:    bson.D{{Key: "transcription_id", Value: 1}},
			Options: options.Index().SetName("by_transcription"),
		},
	})
	return err
}
