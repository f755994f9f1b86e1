package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/priceboard/pricecore/internal/apperr"
	"github.com/priceboard/pricecore/internal/gateway"
	"github.com/priceboard/pricecore/internal/health"
	"github.com/priceboard/pricecore/internal/snapshot"
	"github.com/priceboard/pricecore/internal/store"
)

// referenceAssets is the conversion reference set resolved alongside the
// worker's own asset every tick (spec §4.4 step 2).
var referenceAssets = []string{"BTC", "ETH", "SOL"}

// staleFactor bounds how old the snapshot's producer clock may be before
// the worker logs it stale and falls back to the store (spec §4.4 step 1).
const staleFactor = 2

// degradedRecoverySleep is how long the worker sleeps once it enters
// Degraded before attempting to resume Running (spec §4.4).
const degradedRecoverySleep = 60 * time.Second

// rotationPanels is the number of presence-text positions the rotation
// counter cycles through (spec §4.4 step 5).
const rotationPanels = 5

// Worker runs one asset's Presence Worker: state machine, update loop, and
// /price command handler (spec §4.4).
type Worker struct {
	Asset          string
	Token          string
	GatewayURL     string
	SnapshotPath   string
	UpdateInterval time.Duration
	FetchInterval  time.Duration

	Store   *store.Store
	Status  *health.Status
	Gateway gateway.Gateway

	rl       *RateLimitedCall
	rotation int
}

// NewWorker wires a Worker around an already-constructed store handle and
// gateway client (spec §4.4 Starting state).
func NewWorker(asset, token, gatewayURL string, st *store.Store, gw gateway.Gateway, updateInterval, fetchInterval time.Duration) *Worker {
	status := health.New(asset)
	return &Worker{
		Asset:          asset,
		Token:          token,
		GatewayURL:     gatewayURL,
		UpdateInterval: updateInterval,
		FetchInterval:  fetchInterval,
		Store:          st,
		Status:         status,
		Gateway:        gw,
		rl:             NewRateLimitedCall(status),
	}
}

// Run drives the Starting -> Connecting -> Running (<-> Degraded) -> Stopping
// state machine until ctx is cancelled. Returns on a fatal error, when the
// connect attempts are exhausted, or on clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.connect(ctx); err != nil {
		var fatalIntents *gateway.DisallowedGatewayIntentsError
		if errors.As(err, &fatalIntents) {
			return apperr.NewFatal("presence_fatal", err)
		}
		return err
	}
	defer w.Gateway.Close()

	if err := w.Gateway.RegisterCommand(ctx, gateway.CommandSpec{
		Name:        "price",
		Description: "Show the current price, recent change, and cross-rates for an asset",
	}); err != nil {
		log.Printf("presence[%s]: register_command failed: %v", w.Asset, err)
	}
	w.Gateway.OnCommand(w.handlePriceCommand)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		start := time.Now()
		if err := w.tick(ctx); err != nil {
			failures := w.Status.RecordIterationFailure()
			log.Printf("presence[%s]: iteration failed (%d consecutive): %v", w.Asset, failures, err)
			if failures >= int64(w.Status.ConsecutiveFailureMax()) {
				if err := w.enterDegraded(ctx); err != nil {
					return err
				}
			}
		}

		elapsed := time.Since(start)
		sleep := w.UpdateInterval - elapsed
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

// connect implements the Connecting state: open the gateway session,
// backing off on non-fatal errors (spec §4.4).
func (w *Worker) connect(ctx context.Context) error {
	const maxAttempts = 5
	backoff := 2 * time.Second
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := w.Gateway.Connect(ctx)
		if err == nil {
			return nil
		}
		var intents *gateway.DisallowedGatewayIntentsError
		if errors.As(err, &intents) {
			return err
		}
		lastErr = err
		log.Printf("presence[%s]: connect attempt %d failed: %v", w.Asset, attempt+1, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("presence[%s]: exhausted connect attempts: %w", w.Asset, lastErr)
}

// enterDegraded implements the Degraded recovery path: sleep 60s, then
// resume, incrementing recovery_count (spec §4.4).
func (w *Worker) enterDegraded(ctx context.Context) error {
	log.Printf("presence[%s]: entering degraded recovery", w.Asset)
	w.Status.RecordRecovery()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(degradedRecoverySleep):
	}
	return nil
}

// tick runs one update-loop iteration, spec §4.4 steps 1-6.
func (w *Worker) tick(ctx context.Context) error {
	now := time.Now()

	snap, stale := w.readSnapshot(now)
	if stale {
		log.Printf("presence[%s]: snapshot stale, falling back to store", w.Asset)
		snap = snapshot.Document{}
	}

	currentPrice, ok, err := w.resolvePrice(ctx, w.Asset, snap)
	if err != nil {
		return fmt.Errorf("resolve price: %w", err)
	}
	if !ok {
		return fmt.Errorf("no price available for %s", w.Asset)
	}

	refs := w.resolveReferences(ctx, snap)

	change1h, err := computeChange(ctx, w.Store, w.Asset, currentPrice, now, changeWindows["1h"])
	if err != nil {
		return fmt.Errorf("compute 1h change: %w", err)
	}
	change24h, err := computeChange(ctx, w.Store, w.Asset, currentPrice, now, changeWindows["24h"])
	if err != nil {
		return fmt.Errorf("compute 24h change: %w", err)
	}

	nickname := FormatNickname(w.Asset, currentPrice)
	for _, guildID := range w.Gateway.Guilds() {
		if err := w.rl.SetNicknameRateLimited(ctx, w.Gateway, guildID, nickname); err != nil {
			return fmt.Errorf("set_nickname(%s): %w", guildID, err)
		}
		time.Sleep(2 * time.Second)
	}

	panel := w.presencePanel(w.rotation, currentPrice, change1h, change24h, refs)
	w.rotation = (w.rotation + 1) % rotationPanels
	if err := w.rl.SetPresenceRateLimited(ctx, w.Gateway, panel); err != nil {
		return fmt.Errorf("set_presence: %w", err)
	}

	w.Status.RecordPriceUpdate()
	w.Status.RecordDiscordUpdate()
	return nil
}

// readSnapshot loads the snapshot file, reporting staleness if missing or
// older than 2*T_fetch producer clock (spec §4.4 step 1).
func (w *Worker) readSnapshot(now time.Time) (snapshot.Document, bool) {
	doc, err := snapshot.Read(w.SnapshotPath)
	if err != nil {
		return snapshot.Document{}, true
	}
	maxAge := int64(staleFactor) * int64(w.FetchInterval.Seconds())
	if maxAge > 0 && now.Unix()-doc.Timestamp > maxAge {
		return doc, true
	}
	return doc, false
}

// resolvePrice resolves asset's current price from the snapshot, falling
// back to the store's latest tick when the snapshot doesn't have it.
func (w *Worker) resolvePrice(ctx context.Context, asset string, snap snapshot.Document) (float64, bool, error) {
	if p, ok := snap.Prices[asset]; ok {
		return p.Price, true, nil
	}
	tick, ok, err := w.Store.LatestTick(ctx, asset)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	return tick.Price, true, nil
}

// resolveReferences resolves the BTC/ETH/SOL conversion set, silently
// omitting any that can't be resolved (spec §4.4 step 2).
func (w *Worker) resolveReferences(ctx context.Context, snap snapshot.Document) map[string]float64 {
	out := make(map[string]float64, len(referenceAssets))
	for _, asset := range referenceAssets {
		price, ok, err := w.resolvePrice(ctx, asset, snap)
		if err != nil || !ok {
			continue
		}
		out[asset] = price
	}
	return out
}

// presencePanel renders the rotation's current panel text (spec §4.4 step 5).
// A cross-rate panel whose reference price is missing is replaced by the
// 24h change panel.
func (w *Worker) presencePanel(index int, price float64, change1h, change24h Change, refs map[string]float64) string {
	if index >= 1 && index <= 3 && refs[referenceAssets[index-1]] == 0 {
		return fmt.Sprintf("24h: %s", FormatChange(change24h))
	}
	switch index {
	case 0:
		return fmt.Sprintf("1h: %s", FormatChange(change1h))
	case 1:
		return crossRatePanel(w.Asset, "BTC", price, refs)
	case 2:
		return crossRatePanel(w.Asset, "ETH", price, refs)
	case 3:
		return crossRatePanel(w.Asset, "SOL", price, refs)
	case 4:
		return fmt.Sprintf("24h: %s", FormatChange(change24h))
	default:
		return fmt.Sprintf("24h: %s", FormatChange(change24h))
	}
}

// crossRatePanel renders "1 <ASSET> = X.XXXX <REF>", or
// "1 <REF>: reference unavailable" when the reference price is missing
// (presencePanel shows the 24h change panel instead in that case).
func crossRatePanel(asset, ref string, price float64, refs map[string]float64) string {
	refPrice, ok := refs[ref]
	if !ok || refPrice == 0 {
		return fmt.Sprintf("1 %s: reference unavailable", ref)
	}
	return fmt.Sprintf("1 %s = %.4f %s", asset, price/refPrice, ref)
}
