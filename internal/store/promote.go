package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// PromoteTicksToTier1 promotes closed 1-minute intervals of raw ticks into
// Tier1 buckets and deletes the contributing ticks, one transaction per
// emitted bucket so a single slow asset never blocks the others (spec §4.3
// step 1).
// cutoff is now-24h; only buckets whose [start, start+60) interval lies
// entirely before cutoff are emitted.
func (s *Store) PromoteTicksToTier1(ctx context.Context, cutoff int64) (int64, error) {
	assets, err := s.assetsWithTicks(ctx)
	if err != nil {
		return 0, err
	}

	var promoted int64
	for _, asset := range assets {
		lastEnd, ok, err := s.maxBucketStart(ctx, asset, Tier1)
		if err != nil {
			return promoted, err
		}
		if ok {
			lastEnd += Tier1
		}

		ticks, err := s.ticksInRange(ctx, asset, lastEnd, cutoff)
		if err != nil {
			return promoted, err
		}
		if len(ticks) == 0 {
			continue
		}

		groups := groupTicksByBucket(ticks, Tier1)
		for _, g := range groups {
			if g.bucketStart+Tier1 > cutoff {
				continue // trailing partial interval, left for next cycle
			}
			bucket := bucketFromTicks(asset, g.bucketStart, Tier1, g.ticks)
			from, to := g.bucketStart, g.bucketStart+Tier1
			if err := s.withTransaction(ctx, func(sc context.Context) (any, error) {
				if err := s.upsertBucket(sc, bucket); err != nil {
					return nil, err
				}
				return nil, s.deleteTicks(sc, asset, from, to)
			}); err != nil {
				return promoted, fmt.Errorf("promote ticks asset=%s bucket=%d: %w", asset, g.bucketStart, err)
			}
			promoted++
		}
	}
	return promoted, nil
}

// PromoteBuckets promotes closed srcDuration-second buckets into
// dstDuration-second buckets and deletes the contributing source rows, one
// transaction per destination bucket (spec §4.3 steps 2-3). cutoff is
// now-horizon.
func (s *Store) PromoteBuckets(ctx context.Context, srcDuration, dstDuration int64, cutoff int64) (int64, error) {
	assets, err := s.assetsWithBuckets(ctx, srcDuration)
	if err != nil {
		return 0, err
	}

	var promoted int64
	for _, asset := range assets {
		lastEnd, ok, err := s.maxBucketStart(ctx, asset, dstDuration)
		if err != nil {
			return promoted, err
		}
		if ok {
			lastEnd += dstDuration
		}

		srcBuckets, err := s.aggregateBuckets(ctx, asset, srcDuration, lastEnd, cutoff)
		if err != nil {
			return promoted, err
		}
		if len(srcBuckets) == 0 {
			continue
		}

		groups := groupBucketsByInterval(srcBuckets, dstDuration)
		for _, g := range groups {
			if g.bucketStart+dstDuration > cutoff {
				continue // trailing partial interval, left for next cycle
			}
			dst := mergeBuckets(asset, g.bucketStart, dstDuration, g.buckets)
			from, to := g.bucketStart, g.bucketStart+dstDuration
			if err := s.withTransaction(ctx, func(sc context.Context) (any, error) {
				if err := s.upsertBucket(sc, dst); err != nil {
					return nil, err
				}
				return nil, s.deleteBuckets(sc, asset, srcDuration, from, to)
			}); err != nil {
				return promoted, fmt.Errorf("promote buckets asset=%s src=%d dst=%d bucket=%d: %w", asset, srcDuration, dstDuration, g.bucketStart, err)
			}
			promoted++
		}
	}
	return promoted, nil
}

func (s *Store) ticksInRange(ctx context.Context, asset string, from, to int64) ([]Tick, error) {
	filter := bson.M{
		"asset": asset,
		"ts":    bson.M{"$gte": from, "$lt": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "ts", Value: 1}})
	cursor, err := s.db.Collection("ticks").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query ticks in range: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Tick
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode ticks in range: %w", err)
	}
	return out, nil
}

func (s *Store) deleteBuckets(sc context.Context, asset string, duration, from, to int64) error {
	filter := bson.M{
		"asset":           asset,
		"bucket_duration": duration,
		"bucket_start":    bson.M{"$gte": from, "$lt": to},
	}
	_, err := s.db.Collection("aggregates").DeleteMany(sc, filter)
	if err != nil {
		return fmt.Errorf("delete buckets: %w", err)
	}
	return nil
}

type tickGroup struct {
	bucketStart int64
	ticks       []Tick
}

// groupTicksByBucket groups chronologically-sorted ticks by
// floor(ts/duration)*duration. Ticks must already be ts-ordered.
func groupTicksByBucket(ticks []Tick, duration int64) []tickGroup {
	groups := make(map[int64][]Tick)
	var order []int64
	for _, t := range ticks {
		start := (t.TS / duration) * duration
		if _, ok := groups[start]; !ok {
			order = append(order, start)
		}
		groups[start] = append(groups[start], t)
	}
	out := make([]tickGroup, len(order))
	for i, start := range order {
		out[i] = tickGroup{bucketStart: start, ticks: groups[start]}
	}
	return out
}

func bucketFromTicks(asset string, bucketStart, duration int64, ticks []Tick) Bucket {
	open := ticks[0].Price
	close := ticks[len(ticks)-1].Price
	high, low := ticks[0].Price, ticks[0].Price
	var sum float64
	for _, t := range ticks {
		if t.Price > high {
			high = t.Price
		}
		if t.Price < low {
			low = t.Price
		}
		sum += t.Price
	}
	return Bucket{
		Asset:          asset,
		BucketStart:    bucketStart,
		BucketDuration: duration,
		Open:           open,
		High:           high,
		Low:            low,
		Close:          close,
		Avg:            sum / float64(len(ticks)),
		SampleCount:    int64(len(ticks)),
	}
}

type bucketGroup struct {
	bucketStart int64
	buckets     []Bucket
}

// groupBucketsByInterval groups source-tier buckets (already bucket_start
// ordered via aggregateBuckets) into dstDuration-aligned intervals.
func groupBucketsByInterval(buckets []Bucket, dstDuration int64) []bucketGroup {
	groups := make(map[int64][]Bucket)
	var order []int64
	for _, b := range buckets {
		start := (b.BucketStart / dstDuration) * dstDuration
		if _, ok := groups[start]; !ok {
			order = append(order, start)
		}
		groups[start] = append(groups[start], b)
	}
	out := make([]bucketGroup, len(order))
	for i, start := range order {
		out[i] = bucketGroup{bucketStart: start, buckets: groups[start]}
	}
	return out
}

// mergeBuckets aggregates source buckets (already bucket_start ordered)
// into one destination-tier bucket per spec §4.3 step 2's formula.
func mergeBuckets(asset string, bucketStart, duration int64, src []Bucket) Bucket {
	open := src[0].Open
	close := src[len(src)-1].Close
	high, low := src[0].High, src[0].Low
	var weightedAvg float64
	var sampleCount int64
	for _, b := range src {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
		weightedAvg += b.Avg * float64(b.SampleCount)
		sampleCount += b.SampleCount
	}
	avg := weightedAvg / float64(sampleCount)
	return Bucket{
		Asset:          asset,
		BucketStart:    bucketStart,
		BucketDuration: duration,
		Open:           open,
		High:           high,
		Low:            low,
		Close:          close,
		Avg:            avg,
		SampleCount:    sampleCount,
	}
}
