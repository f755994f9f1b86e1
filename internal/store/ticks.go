package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// InsertTicks appends one tick per entry in a single transaction, as the
// Aggregator's per-cycle batch write (spec §4.1 step 4). Duplicate
// (asset, ts) pairs are allowed — ticks carry no unique key.
func (s *Store) InsertTicks(ctx context.Context, ticks []Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	docs := make([]any, len(ticks))
	for i, t := range ticks {
		docs[i] = t
	}
	return s.withTransaction(ctx, func(sc context.Context) (any, error) {
		_, err := s.db.Collection("ticks").InsertMany(sc, docs)
		if err != nil {
			return nil, fmt.Errorf("insert ticks: %w", err)
		}
		return nil, nil
	})
}

// LatestTick returns the newest tick for asset by ts, or (Tick{}, false) if
// none exists.
func (s *Store) LatestTick(ctx context.Context, asset string) (Tick, bool, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "ts", Value: -1}})
	var t Tick
	err := s.db.Collection("ticks").FindOne(ctx, bson.M{"asset": asset}, opts).Decode(&t)
	if err != nil {
		if isNoDocuments(err) {
			return Tick{}, false, nil
		}
		return Tick{}, false, fmt.Errorf("latest tick: %w", err)
	}
	return t, true, nil
}

// tickAtOrBefore returns the newest tick for asset with ts <= at, or
// (Sample{}, false) if none exists within the ticks tier.
func (s *Store) tickAtOrBefore(ctx context.Context, asset string, at int64) (Sample, bool, error) {
	filter := bson.M{"asset": asset, "ts": bson.M{"$lte": at}}
	opts := options.FindOne().SetSort(bson.D{{Key: "ts", Value: -1}})
	var t Tick
	err := s.db.Collection("ticks").FindOne(ctx, filter, opts).Decode(&t)
	if err != nil {
		if isNoDocuments(err) {
			return Sample{}, false, nil
		}
		return Sample{}, false, fmt.Errorf("tick at or before: %w", err)
	}
	return Sample{TS: t.TS, Price: t.Price}, true, nil
}

// deleteTicks removes ticks for asset in [from, to), used by Promote after
// a T0->T1 bucket has been emitted for the interval. sc is the transaction's
// session context.
func (s *Store) deleteTicks(sc context.Context, asset string, from, to int64) error {
	filter := bson.M{
		"asset": asset,
		"ts":    bson.M{"$gte": from, "$lt": to},
	}
	_, err := s.db.Collection("ticks").DeleteMany(sc, filter)
	if err != nil {
		return fmt.Errorf("delete ticks: %w", err)
	}
	return nil
}
