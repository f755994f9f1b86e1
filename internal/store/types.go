package store

// Tier durations, in seconds, naming the three OHLC rollup resolutions.
const (
	Tier1 = 60  // T1: 1-minute buckets, 7 day retention
	Tier2 = 300 // T2: 5-minute buckets, 30 day retention
	Tier3 = 900 // T3: 15-minute buckets, 365 day retention
)

// Retention horizons, in seconds.
const (
	RetentionTicks = 24 * 3600
	RetentionTier1 = 7 * 24 * 3600
	RetentionTier2 = 30 * 24 * 3600
	RetentionTier3 = 365 * 24 * 3600
)

// Tick is a single raw (asset, timestamp, price) sample.
type Tick struct {
	Asset string  `bson:"asset"`
	TS    int64   `bson:"ts"`
	Price float64 `bson:"price"`
}

// Bucket is an OHLC rollup over [BucketStart, BucketStart+BucketDuration).
type Bucket struct {
	Asset          string  `bson:"asset"`
	BucketStart    int64   `bson:"bucket_start"`
	BucketDuration int64   `bson:"bucket_duration"`
	Open           float64 `bson:"open"`
	High           float64 `bson:"high"`
	Low            float64 `bson:"low"`
	Close          float64 `bson:"close"`
	Avg            float64 `bson:"avg"`
	SampleCount    int64   `bson:"sample_count"`
}

// Sample is a generic (timestamp, price) pair returned by point queries.
type Sample struct {
	TS    int64
	Price float64
}
