package store

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// InsertBucket upserts a bucket on its unique key (asset, bucket_duration,
// bucket_start), replacing any prior values.
func (s *Store) InsertBucket(ctx context.Context, b Bucket) error {
	return s.withTransaction(ctx, func(sc context.Context) (any, error) {
		return nil, s.upsertBucket(sc, b)
	})
}

func (s *Store) upsertBucket(sc context.Context, b Bucket) error {
	filter := bson.M{
		"asset":           b.Asset,
		"bucket_duration": b.BucketDuration,
		"bucket_start":    b.BucketStart,
	}
	update := bson.M{"$set": b}
	_, err := s.db.Collection("aggregates").UpdateOne(sc, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert bucket: %w", err)
	}
	return nil
}

// aggregateBuckets queries buckets for asset at the given duration across
// [from, to), ordered by bucket_start.
func (s *Store) aggregateBuckets(ctx context.Context, asset string, duration int64, from, to int64) ([]Bucket, error) {
	filter := bson.M{
		"asset":           asset,
		"bucket_duration": duration,
		"bucket_start":    bson.M{"$gte": from, "$lt": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "bucket_start", Value: 1}})
	cursor, err := s.db.Collection("aggregates").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Bucket
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode aggregates: %w", err)
	}
	return out, nil
}

// bucketAtOrBefore returns the newest bucket for asset at the given
// duration with bucket_start <= at, or (Bucket{}, false) if none exists.
func (s *Store) bucketAtOrBefore(ctx context.Context, asset string, duration int64, at int64) (Bucket, bool, error) {
	filter := bson.M{
		"asset":           asset,
		"bucket_duration": duration,
		"bucket_start":    bson.M{"$lte": at},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "bucket_start", Value: -1}})
	var b Bucket
	err := s.db.Collection("aggregates").FindOne(ctx, filter, opts).Decode(&b)
	if err != nil {
		if isNoDocuments(err) {
			return Bucket{}, false, nil
		}
		return Bucket{}, false, fmt.Errorf("bucket at or before: %w", err)
	}
	return b, true, nil
}

// maxBucketStart returns the largest bucket_start already present for
// asset at the given duration, or (0, false) if none.
func (s *Store) maxBucketStart(ctx context.Context, asset string, duration int64) (int64, bool, error) {
	filter := bson.M{"asset": asset, "bucket_duration": duration}
	opts := options.FindOne().SetSort(bson.D{{Key: "bucket_start", Value: -1}})
	var b Bucket
	err := s.db.Collection("aggregates").FindOne(ctx, filter, opts).Decode(&b)
	if err != nil {
		if isNoDocuments(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("max bucket start: %w", err)
	}
	return b.BucketStart, true, nil
}

// assetsWithTicks returns the distinct assets present in ticks, used by the
// T0->T1 promotion step to discover which assets need scanning.
func (s *Store) assetsWithTicks(ctx context.Context) ([]string, error) {
	raw, err := s.db.Collection("ticks").Distinct(ctx, "asset", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("distinct tick assets: %w", err)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// assetsWithBuckets returns the distinct assets present at the given
// bucket duration, used by the T1->T2 and T2->T3 promotion steps.
func (s *Store) assetsWithBuckets(ctx context.Context, duration int64) ([]string, error) {
	raw, err := s.db.Collection("aggregates").Distinct(ctx, "asset", bson.M{"bucket_duration": duration})
	if err != nil {
		return nil, fmt.Errorf("distinct bucket assets: %w", err)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Expire deletes tier rows older than horizon (seconds) relative to now.
// duration == 0 targets ticks; otherwise it targets the aggregates
// collection at that bucket_duration.
func (s *Store) Expire(ctx context.Context, duration int64, horizon int64, now int64) (int64, error) {
	cutoff := now - horizon
	var deleted int64
	err := s.withTransaction(ctx, func(sc context.Context) (any, error) {
		var filter bson.M
		var coll string
		if duration == 0 {
			coll = "ticks"
			filter = bson.M{"ts": bson.M{"$lt": cutoff}}
		} else {
			coll = "aggregates"
			filter = bson.M{"bucket_duration": duration, "bucket_start": bson.M{"$lt": cutoff}}
		}
		res, err := s.db.Collection(coll).DeleteMany(sc, filter)
		if err != nil {
			return nil, fmt.Errorf("expire %s: %w", coll, err)
		}
		deleted = res.DeletedCount
		return nil, nil
	})
	return deleted, err
}

// Vacuum reclaims space if meaningful deletions occurred. MongoDB has no
// literal vacuum statement outside administrative compact commands, which
// require elevated privileges and block writers; following the teacher's
// retention.go precedent of a best-effort, log-only maintenance step, this
// logs the deletion volume so an operator can decide whether to run
// compact out of band.
func (s *Store) Vacuum(ctx context.Context, deletedRows int64, totalRowsBefore int64) {
	if totalRowsBefore <= 0 || deletedRows <= 0 {
		return
	}
	fraction := float64(deletedRows) / float64(totalRowsBefore)
	if fraction > 0.01 {
		log.Printf("vacuum: %d of %d rows deleted (%.2f%%), consider an administrative compact", deletedRows, totalRowsBefore, fraction*100)
	}
}

// CollectionCount returns the current document count across both
// collections, used to compute the vacuum threshold.
func (s *Store) CollectionCount(ctx context.Context) (int64, error) {
	tickCount, err := s.db.Collection("ticks").CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count ticks: %w", err)
	}
	bucketCount, err := s.db.Collection("aggregates").CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count aggregates: %w", err)
	}
	return tickCount + bucketCount, nil
}
