package store

import (
	"context"
	"time"
)

// tickFreshnessWindow is the 5-minute fallback window from spec §4.2: if no
// tick exists within [ts-5min, ts], price_at_or_before falls through to T1
// even though age <= 24h.
const tickFreshnessWindow = 5 * 60

// PriceAtOrBefore returns the newest sample with sample_ts <= ts from the
// finest-resolution tier that covers ts (spec §4.2's tier selection rule).
// It never silently falls further than the one explicit fallback case.
func (s *Store) PriceAtOrBefore(ctx context.Context, asset string, ts int64) (Sample, bool, error) {
	now := time.Now().Unix()
	age := now - ts

	switch {
	case age <= RetentionTicks:
		sample, ok, err := s.tickAtOrBefore(ctx, asset, ts)
		if err != nil {
			return Sample{}, false, err
		}
		if ok && sample.TS >= ts-tickFreshnessWindow {
			return sample, true, nil
		}
		return s.bucketSample(ctx, asset, Tier1, ts)

	case age <= RetentionTier1:
		return s.bucketSample(ctx, asset, Tier1, ts)

	case age <= RetentionTier2:
		return s.bucketSample(ctx, asset, Tier2, ts)

	case age <= RetentionTier3:
		return s.bucketSample(ctx, asset, Tier3, ts)

	default:
		return Sample{}, false, nil
	}
}

func (s *Store) bucketSample(ctx context.Context, asset string, duration, ts int64) (Sample, bool, error) {
	b, ok, err := s.bucketAtOrBefore(ctx, asset, duration, ts)
	if err != nil || !ok {
		return Sample{}, false, err
	}
	return Sample{TS: b.BucketStart, Price: b.Close}, true, nil
}
