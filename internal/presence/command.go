package presence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/priceboard/pricecore/internal/gateway"
	"github.com/priceboard/pricecore/internal/snapshot"
)

// handlePriceCommand implements "/price [asset?]" (spec §4.4 Command
// /price): resolves the asset (default: this worker's own), replies with
// formatted price, 1h/12h/24h change with trend glyph, and cross-rates to
// BTC/ETH/SOL omitting the self-rate. Every reply, including errors, is
// ephemeral to the invoking context (spec §4.4).
func (w *Worker) handlePriceCommand(ctx context.Context, inv gateway.CommandInvocation) gateway.CommandReply {
	asset := strings.ToUpper(strings.TrimSpace(inv.Args["asset"]))
	if asset == "" {
		asset = w.Asset
	}

	snap, _ := w.readSnapshot(time.Now())

	price, ok, err := w.resolvePrice(ctx, asset, snap)
	if err != nil {
		return ephemeralReply(fmt.Sprintf("couldn't look up %s: %v", asset, err))
	}
	if !ok {
		return ephemeralReply(fmt.Sprintf("no price data available for %s", asset))
	}

	now := time.Now()
	c1h, err := computeChange(ctx, w.Store, asset, price, now, changeWindows["1h"])
	if err != nil {
		return ephemeralReply(fmt.Sprintf("couldn't compute change for %s: %v", asset, err))
	}
	c12h, err := computeChange(ctx, w.Store, asset, price, now, changeWindows["12h"])
	if err != nil {
		return ephemeralReply(fmt.Sprintf("couldn't compute change for %s: %v", asset, err))
	}
	c24h, err := computeChange(ctx, w.Store, asset, price, now, changeWindows["24h"])
	if err != nil {
		return ephemeralReply(fmt.Sprintf("couldn't compute change for %s: %v", asset, err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", asset, FormatPrice(price))
	fmt.Fprintf(&b, "1h: %s %s  12h: %s %s  24h: %s %s\n",
		TrendGlyph(c1h.Percent), FormatChange(c1h),
		TrendGlyph(c12h.Percent), FormatChange(c12h),
		TrendGlyph(c24h.Percent), FormatChange(c24h))

	refs := w.resolveReferences(ctx, snap)
	var crossLines []string
	for _, ref := range referenceAssets {
		if ref == asset {
			continue
		}
		crossLines = append(crossLines, crossRateLine(asset, ref, price, refs))
	}
	if len(crossLines) > 0 {
		b.WriteString(strings.Join(crossLines, "  "))
	}

	return ephemeralReply(b.String())
}

func ephemeralReply(text string) gateway.CommandReply {
	return gateway.CommandReply{Text: text, Ephemeral: true}
}

func crossRateLine(asset, ref string, price float64, refs map[string]float64) string {
	refPrice, ok := refs[ref]
	if !ok || refPrice == 0 {
		return fmt.Sprintf("1 %s = ? %s", asset, ref)
	}
	return fmt.Sprintf("1 %s = %.4f %s", asset, price/refPrice, ref)
}
