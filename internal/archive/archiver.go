// Package archive implements the supplemented T3-archival-before-expiry
// feature (see SPEC_FULL.md §3): before the Downsampler deletes T3 rows
// past 365 days, it gzip-NDJSON-dumps them to local disk, adapted from the
// teacher's trade archiver (internal/archive/archiver.go) but driven
// synchronously from the Downsampler's own cycle instead of its own ticker,
// since expiry here is already on a fixed cadence.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Archiver gzip-NDJSON-dumps T3 buckets to local disk before the
// Downsampler deletes them, rotating out the oldest files once total size
// exceeds maxBytes.
type Archiver struct {
	db       *mongo.Database
	dir      string
	maxBytes int64
}

// New creates an Archiver rooted at dir, capped at maxGB total size.
func New(db *mongo.Database, dir string, maxGB int) *Archiver {
	return &Archiver{db: db, dir: dir, maxBytes: int64(maxGB) * 1 << 30}
}

// bucketDoc mirrors the store's aggregates document for the T3 tier.
type bucketDoc struct {
	Asset          string  `bson:"asset"           json:"asset"`
	BucketStart    int64   `bson:"bucket_start"    json:"bucket_start"`
	BucketDuration int64   `bson:"bucket_duration" json:"bucket_duration"`
	Open           float64 `bson:"open"            json:"open"`
	High           float64 `bson:"high"            json:"high"`
	Low            float64 `bson:"low"             json:"low"`
	Close          float64 `bson:"close"           json:"close"`
	Avg            float64 `bson:"avg"             json:"avg"`
	SampleCount    int64   `bson:"sample_count"    json:"sample_count"`
}

// ArchiveExpiring dumps every T3 bucket older than horizon (relative to
// now) to gzipped NDJSON before the Downsampler's own Expire call deletes
// them. It does not delete anything itself — expiry remains the
// Downsampler's responsibility in the same cycle.
func (a *Archiver) ArchiveExpiring(ctx context.Context, horizon int64, now int64) error {
	cutoff := now - horizon

	buckets, err := a.queryExpiring(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query expiring buckets: %w", err)
	}
	if len(buckets) == 0 {
		return nil
	}

	batches := groupByAssetMonth(buckets)
	for key, batch := range batches {
		if err := a.writeBatch(key, batch); err != nil {
			return fmt.Errorf("write archive %s: %w", key, err)
		}
		log.Printf("archive: wrote %d T3 rows for %s", len(batch), key)
	}

	a.rotate()
	return nil
}

func (a *Archiver) queryExpiring(ctx context.Context, cutoff int64) ([]bucketDoc, error) {
	filter := bson.M{
		"bucket_duration": int64(900),
		"bucket_start":    bson.M{"$lt": cutoff},
	}
	cur, err := a.db.Collection("aggregates").Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []bucketDoc
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func groupByAssetMonth(buckets []bucketDoc) map[string][]bucketDoc {
	batches := make(map[string][]bucketDoc)
	for _, b := range buckets {
		month := time.Unix(b.BucketStart, 0).UTC().Format("2006/01")
		key := filepath.Join(b.Asset, month)
		batches[key] = append(batches[key], b)
	}
	return batches
}

// writeBatch appends buckets as one gzip member of NDJSON to
// dir/<asset>/<YYYY>/<MM>.jsonl.gz, so rows archived by earlier cycles in
// the same month are kept.
func (a *Archiver) writeBatch(key string, buckets []bucketDoc) error {
	path := filepath.Join(a.dir, key+".jsonl.gz")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, b := range buckets {
		if err := enc.Encode(b); err != nil {
			gz.Close()
			return fmt.Errorf("encode: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// rotate deletes the oldest archive files until total size is under
// maxBytes. A maxBytes of 0 disables rotation.
func (a *Archiver) rotate() {
	if a.maxBytes <= 0 {
		return
	}

	type entry struct {
		path string
		size int64
	}

	var files []entry
	var total int64

	filepath.Walk(a.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, entry{path: path, size: info.Size()})
		total += info.Size()
		return nil
	})

	if total <= a.maxBytes {
		return
	}

	// Files are <asset>/<YYYY>/<MM>.jsonl.gz: order by year and month so the
	// oldest months go first whatever the asset.
	monthKey := func(path string) string {
		return filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path))
	}
	sort.Slice(files, func(i, j int) bool {
		ki, kj := monthKey(files[i].path), monthKey(files[j].path)
		if ki != kj {
			return ki < kj
		}
		return files[i].path < files[j].path
	})

	for _, f := range files {
		if total <= a.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			log.Printf("archive: remove %s: %v", f.path, err)
			continue
		}
		total -= f.size
		log.Printf("archive: rotated out %s (%d bytes)", f.path, f.size)
	}
}
