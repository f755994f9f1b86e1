package store

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes creates idempotent indexes on the ticks and aggregates
// collections.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	type idx struct {
		collection string
		model      mongo.IndexModel
	}

	indexes := []idx{
		{
			collection: "ticks",
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "asset", Value: 1},
					{Key: "ts", Value: 1},
				},
			},
		},
		{
			collection: "aggregates",
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "asset", Value: 1},
					{Key: "bucket_duration", Value: 1},
					{Key: "bucket_start", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for _, i := range indexes {
		_, err := db.Collection(i.collection).Indexes().CreateOne(ctx, i.model)
		if err != nil {
			return fmt.Errorf("create index on %s: %w", i.collection, err)
		}
	}

	log.Println("store indexes ensured")
	return nil
}
