package store

import "testing"

// S3 from the scenarios: ticks at (60,10), (90,12), (119,8) over the
// minute [60,120) promote into one Tier1 bucket.
func TestBucketFromTicksMatchesScenarioS3(t *testing.T) {
	ticks := []Tick{
		{Asset: "A", TS: 60, Price: 10},
		{Asset: "A", TS: 90, Price: 12},
		{Asset: "A", TS: 119, Price: 8},
	}

	groups := groupTicksByBucket(ticks, Tier1)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].bucketStart != 60 {
		t.Fatalf("expected bucket_start=60, got %d", groups[0].bucketStart)
	}

	b := bucketFromTicks("A", groups[0].bucketStart, Tier1, groups[0].ticks)
	want := Bucket{
		Asset: "A", BucketStart: 60, BucketDuration: Tier1,
		Open: 10, High: 12, Low: 8, Close: 8, Avg: 10, SampleCount: 3,
	}
	if b != want {
		t.Fatalf("got %+v, want %+v", b, want)
	}
}

func TestBucketSoundnessInvariant(t *testing.T) {
	ticks := []Tick{
		{Asset: "A", TS: 0, Price: 5},
		{Asset: "A", TS: 10, Price: 1},
		{Asset: "A", TS: 20, Price: 9},
		{Asset: "A", TS: 30, Price: 4},
	}
	b := bucketFromTicks("A", 0, Tier1, ticks)
	if !(b.Low <= b.Open && b.Open <= b.High) {
		t.Fatalf("open out of [low,high]: %+v", b)
	}
	if !(b.Low <= b.Close && b.Close <= b.High) {
		t.Fatalf("close out of [low,high]: %+v", b)
	}
	if !(b.Low <= b.Avg && b.Avg <= b.High) {
		t.Fatalf("avg out of [low,high]: %+v", b)
	}
	if b.SampleCount != int64(len(ticks)) {
		t.Fatalf("sample_count=%d, want %d", b.SampleCount, len(ticks))
	}
}

func TestMergeBucketsPreservesExtrema(t *testing.T) {
	src := []Bucket{
		{Asset: "A", BucketStart: 0, BucketDuration: Tier1, Open: 10, High: 15, Low: 9, Close: 12, Avg: 11, SampleCount: 2},
		{Asset: "A", BucketStart: 60, BucketDuration: Tier1, Open: 12, High: 20, Low: 11, Close: 18, Avg: 15, SampleCount: 3},
		{Asset: "A", BucketStart: 120, BucketDuration: Tier1, Open: 18, High: 19, Low: 7, Close: 16, Avg: 14, SampleCount: 1},
	}

	merged := mergeBuckets("A", 0, Tier2, src)

	if merged.High != 20 {
		t.Fatalf("high=%v, want max(T1.high)=20", merged.High)
	}
	if merged.Low != 7 {
		t.Fatalf("low=%v, want min(T1.low)=7", merged.Low)
	}
	if merged.Open != 10 {
		t.Fatalf("open=%v, want first.open=10", merged.Open)
	}
	if merged.Close != 16 {
		t.Fatalf("close=%v, want last.close=16", merged.Close)
	}
	if merged.SampleCount != 6 {
		t.Fatalf("sample_count=%d, want 6", merged.SampleCount)
	}

	wantAvg := (11.0*2 + 15.0*3 + 14.0*1) / 6
	if merged.Avg != wantAvg {
		t.Fatalf("avg=%v, want %v", merged.Avg, wantAvg)
	}
}

func TestGroupBucketsByIntervalAlignsToDstDuration(t *testing.T) {
	src := []Bucket{
		{Asset: "A", BucketStart: 0, BucketDuration: Tier1, SampleCount: 1},
		{Asset: "A", BucketStart: 240, BucketDuration: Tier1, SampleCount: 1},
	}
	groups := groupBucketsByInterval(src, Tier2)
	if len(groups) != 1 {
		t.Fatalf("expected a single dst-aligned group, got %d", len(groups))
	}
	if groups[0].bucketStart != 0 {
		t.Fatalf("bucket_start=%d, want 0", groups[0].bucketStart)
	}
}
