// Package downsample runs the maintenance process that promotes ticks
// through the T1/T2/T3 rollup tiers and expires old rows, on a fixed
// cadence (spec §4.3), grounded on the teacher's internal/persist
// retention.go ticker loop shape but generalized from a single prune step
// into the five-step promote/expire/vacuum cycle the store requires.
package downsample

import (
	"context"
	"log"
	"time"

	"github.com/priceboard/pricecore/internal/archive"
	"github.com/priceboard/pricecore/internal/health"
	"github.com/priceboard/pricecore/internal/store"
)

// vacuumThreshold is the fraction of rows deleted by T3 expiry in a cycle
// above which
// Vacuum logs an administrative-compact recommendation (spec §4.3 step 5).
const vacuumThreshold = 0.01

// Downsampler owns the store maintenance cadence.
type Downsampler struct {
	store    *store.Store
	interval time.Duration
	status   *health.Status
	archiver *archive.Archiver // nil when archival is disabled
}

// New builds a Downsampler running every interval.
func New(st *store.Store, interval time.Duration, status *health.Status, archiver *archive.Archiver) *Downsampler {
	return &Downsampler{store: st, interval: interval, status: status, archiver: archiver}
}

// Run runs one cycle immediately, then on the configured cadence, until
// ctx is cancelled (spec §4.3 Startup).
func (d *Downsampler) Run(ctx context.Context) {
	d.runCycle(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

func (d *Downsampler) runCycle(ctx context.Context) {
	now := time.Now().Unix()
	var totalDeleted, totalPromoted int64

	totalBefore, err := d.store.CollectionCount(ctx)
	if err != nil {
		log.Printf("downsample: collection count failed: %v", err)
	}

	// Step 1: T0 -> T1.
	cutoff := now - store.RetentionTicks
	if n, err := d.store.PromoteTicksToTier1(ctx, cutoff); err != nil {
		log.Printf("downsample: T0->T1 promotion failed: %v", err)
	} else {
		totalPromoted += n
	}

	// Step 2: T1 -> T2.
	cutoff = now - store.RetentionTier1
	if n, err := d.store.PromoteBuckets(ctx, store.Tier1, store.Tier2, cutoff); err != nil {
		log.Printf("downsample: T1->T2 promotion failed: %v", err)
	} else {
		totalPromoted += n
	}

	// Step 3: T2 -> T3.
	cutoff = now - store.RetentionTier2
	if n, err := d.store.PromoteBuckets(ctx, store.Tier2, store.Tier3, cutoff); err != nil {
		log.Printf("downsample: T2->T3 promotion failed: %v", err)
	} else {
		totalPromoted += n
	}

	// Step 4: expire T3 rows past final retention, archiving first if
	// enabled (supplemented feature, see SPEC_FULL.md §3).
	if d.archiver != nil {
		if err := d.archiver.ArchiveExpiring(ctx, store.RetentionTier3, now); err != nil {
			log.Printf("downsample: archive before expire failed: %v", err)
		}
	}
	deleted, err := d.store.Expire(ctx, store.Tier3, store.RetentionTier3, now)
	if err != nil {
		log.Printf("downsample: T3 expire failed: %v", err)
	} else {
		totalDeleted += deleted
	}

	// Step 5: vacuum if the rows deleted by T3 expiry this cycle exceed the
	// threshold. Ticks and source buckets removed by promotion are not
	// counted.
	if totalBefore > 0 {
		fraction := float64(totalDeleted) / float64(totalBefore)
		if fraction > vacuumThreshold {
			d.store.Vacuum(ctx, totalDeleted, totalBefore)
		}
	}

	d.status.RecordPriceUpdate()
	d.status.RecordCycleCounts(totalPromoted, totalDeleted)
	log.Printf("downsample: cycle complete, %d buckets promoted, %d rows expired", totalPromoted, totalDeleted)
}
