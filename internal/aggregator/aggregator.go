// Package aggregator drives the single ingestion process: one batched
// upstream fetch per tick, a store append, and an atomic snapshot rewrite
// (spec §4.1). It follows the teacher's cmd/feedsim symbolRunner/snapshotter
// ticker-loop shape, generalized to a single shared cadence instead of one
// goroutine per symbol.
package aggregator

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/priceboard/pricecore/internal/config"
	"github.com/priceboard/pricecore/internal/health"
	"github.com/priceboard/pricecore/internal/oracle"
	"github.com/priceboard/pricecore/internal/snapshot"
	"github.com/priceboard/pricecore/internal/store"
)

var retryBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Aggregator owns one ingestion cadence over a fixed asset list.
type Aggregator struct {
	assets       config.AssetList
	oracleClient *oracle.Client
	store        *store.Store
	snapshotPath string
	fetchEvery   time.Duration
	status       *health.Status
}

// New builds an Aggregator wired to the given store, oracle client and
// snapshot path.
func New(assets config.AssetList, oracleClient *oracle.Client, st *store.Store, snapshotPath string, fetchEvery time.Duration, status *health.Status) *Aggregator {
	return &Aggregator{
		assets:       assets,
		oracleClient: oracleClient,
		store:        st,
		snapshotPath: snapshotPath,
		fetchEvery:   fetchEvery,
		status:       status,
	}
}

// Run loops cycles on the configured cadence until ctx is cancelled,
// logging (rather than failing) any single cycle's error. Callers that need
// the spec §4.1 startup guarantee — no "healthy" status before ingestion is
// live — should call RunUntilFirstSuccess first.
func (a *Aggregator) Run(ctx context.Context) error {
	for {
		start := time.Now()
		if err := a.cycle(ctx); err != nil {
			log.Printf("aggregator cycle failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		elapsed := time.Since(start)
		sleep := a.fetchEvery - elapsed
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// RunUntilFirstSuccess runs cycles until one succeeds, then returns,
// leaving the caller to start the steady-state Run loop. Used at startup
// so health never reports ready before the first tick lands.
func (a *Aggregator) RunUntilFirstSuccess(ctx context.Context) error {
	for {
		if err := a.cycle(ctx); err == nil {
			return nil
		} else {
			log.Printf("aggregator startup cycle failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.fetchEvery):
		}
	}
}

func (a *Aggregator) cycle(ctx context.Context) error {
	feedIDs := make([]string, len(a.assets))
	for i, asset := range a.assets {
		feedIDs[i] = asset.FeedID
	}

	quotes, err := a.fetchWithRetry(ctx, feedIDs)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	ticks, prices := buildTicksAndPrices(a.assets, quotes, now)

	if len(ticks) == 0 {
		log.Printf("aggregator: cycle rejected, 0 assets parsed successfully")
		return errZeroParsed
	}

	if err := a.store.InsertTicks(ctx, ticks); err != nil {
		// Store insert failure after upstream success is logged; the
		// snapshot is still written per spec §4.1 failure semantics.
		log.Printf("aggregator: tick insert failed: %v", err)
	}

	doc := snapshot.Document{Timestamp: now, Prices: prices}
	if err := snapshot.Write(a.snapshotPath, doc); err != nil {
		return err
	}

	a.status.RecordPriceUpdate()
	return nil
}

// buildTicksAndPrices discards non-finite quotes and quotes for unmapped
// feed IDs, then builds the store ticks and snapshot prices for the rest.
// Pulled out of cycle so it can be tested without a live store or oracle.
func buildTicksAndPrices(assets config.AssetList, quotes []oracle.Quote, now int64) ([]store.Tick, map[string]snapshot.Price) {
	feedToAsset := make(map[string]string, len(assets))
	for _, asset := range assets {
		feedToAsset[asset.FeedID] = asset.Symbol
	}

	ticks := make([]store.Tick, 0, len(quotes))
	prices := make(map[string]snapshot.Price, len(quotes))

	for _, q := range quotes {
		if !q.Finite || math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
			log.Printf("aggregator: discarding non-finite quote for feed %s", q.FeedID)
			continue
		}
		symbol, ok := feedToAsset[q.FeedID]
		if !ok {
			continue
		}
		ticks = append(ticks, store.Tick{Asset: symbol, TS: now, Price: q.Price})
		prices[symbol] = snapshot.Price{Price: q.Price, PublishTime: q.PublishTime}
	}

	return ticks, prices
}

func (a *Aggregator) fetchWithRetry(ctx context.Context, feedIDs []string) ([]oracle.Quote, error) {
	var lastErr error
	quotes, err := a.oracleClient.FetchBatch(ctx, feedIDs)
	if err == nil {
		return quotes, nil
	}
	lastErr = err

	for _, backoff := range retryBackoff {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		quotes, err = a.oracleClient.FetchBatch(ctx, feedIDs)
		if err == nil {
			return quotes, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
