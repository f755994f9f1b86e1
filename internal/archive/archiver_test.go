package archive

import "testing"

func TestGroupByAssetMonth(t *testing.T) {
	buckets := []bucketDoc{
		{Asset: "BTC", BucketStart: 1700000000, BucketDuration: 900},
		{Asset: "BTC", BucketStart: 1700003000, BucketDuration: 900},
		{Asset: "SOL", BucketStart: 1700000000, BucketDuration: 900},
	}
	batches := groupByAssetMonth(buckets)
	if len(batches) != 2 {
		t.Fatalf("expected 2 asset/month groups, got %d", len(batches))
	}
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total != 3 {
		t.Fatalf("expected 3 total buckets across groups, got %d", total)
	}
}
