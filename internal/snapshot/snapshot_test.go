package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	doc := Document{
		Timestamp: 1000,
		Prices: map[string]Price{
			"BTC": {Price: 107018.0, PublishTime: 999},
			"SOL": {Price: 149.70, PublishTime: 998},
		},
	}

	if err := Write(path, doc); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Timestamp != doc.Timestamp {
		t.Fatalf("timestamp=%d, want %d", got.Timestamp, doc.Timestamp)
	}
	if got.Prices["BTC"].Price != 107018.0 {
		t.Fatalf("BTC price=%v, want 107018.0", got.Prices["BTC"].Price)
	}
}

func TestWriteOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	if err := Write(path, Document{Timestamp: 1, Prices: map[string]Price{"BTC": {Price: 1, PublishTime: 1}}}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := Write(path, Document{Timestamp: 2, Prices: map[string]Price{"BTC": {Price: 2, PublishTime: 2}}}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Timestamp != 2 {
		t.Fatalf("timestamp=%d, want 2 (latest write)", got.Timestamp)
	}

	matches, err := filepath.Glob(filepath.Join(dir, ".snapshot-*.tmp"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("leftover temp files: %v", matches)
	}
}
