// Package snapshot implements the atomic publish channel between the
// Aggregator and the Presence Workers: a single JSON document overwritten
// by temp-file-plus-rename so readers never observe a partial write
// (spec §3, §6), the same durability idiom the teacher uses for its order
// book snapshots, applied here to a file instead of a collection.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Price is one asset's latest published price.
type Price struct {
	Price       float64 `json:"price"`
	PublishTime int64   `json:"publish_time"`
}

// Document is the full snapshot file contents.
type Document struct {
	Timestamp int64            `json:"timestamp"`
	Prices    map[string]Price `json:"prices"`
}

// Write serializes doc to a temp file in path's directory and renames it
// over path, so concurrent readers see either the old or the new file,
// never a partial one.
func Write(path string, doc Document) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(doc); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Read loads and parses the snapshot file.
func Read(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read snapshot: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse snapshot: %w", err)
	}
	return doc, nil
}
