// Package store implements the tiered time-series store: append-only ticks
// (T0) plus downsampled OHLC buckets at 1-min/5-min/15-min resolution
// (T1/T2/T3), backed by MongoDB the way the teacher's internal/persist
// package backs its trade log — compound unique indexes standing in for
// relational constraints, multi-document transactions standing in for
// commit-before-ack durability.
package store

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Store wraps the MongoDB client and database holding ticks and aggregates.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and returns a Store. The URI should include the
// database name (e.g. mongodb://localhost:27017/pricecore); if absent,
// "pricecore" is used.
func New(ctx context.Context, uri string) (*Store, error) {
	clientOpts := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping store: %w", err)
	}

	dbName := "pricecore"
	if u, err := url.Parse(uri); err == nil {
		if name := strings.TrimPrefix(u.Path, "/"); name != "" {
			dbName = name
		}
	}

	log.Printf("connected to store (db=%s)", dbName)
	return &Store{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects from the store.
func (s *Store) Close(ctx context.Context) {
	s.client.Disconnect(ctx)
}

// DB returns the underlying mongo.Database.
func (s *Store) DB() *mongo.Database {
	return s.db
}

// Client returns the underlying mongo.Client, needed for transactions.
func (s *Store) Client() *mongo.Client {
	return s.client
}

// Migrate creates the schema (collections + indexes) if absent.
func (s *Store) Migrate(ctx context.Context) error {
	return EnsureIndexes(ctx, s.db)
}
