package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/priceboard/pricecore/internal/store"
)

// changeWindows are the reference ages price_at_or_before is queried at
// (spec §4.4 step 3).
var changeWindows = map[string]time.Duration{
	"1h":  1 * time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

// Change is a single window's percentage move, or unavailable if no
// reference price exists.
type Change struct {
	Available bool
	Percent   float64
}

// computeChange returns the percentage change of currentPrice versus the
// stored price at now-window (spec §4.4 step 3, S2 scenario). If no
// reference exists the window reports unavailable.
func computeChange(ctx context.Context, st *store.Store, asset string, currentPrice float64, now time.Time, window time.Duration) (Change, error) {
	refTS := now.Add(-window).Unix()
	sample, ok, err := st.PriceAtOrBefore(ctx, asset, refTS)
	if err != nil {
		return Change{}, fmt.Errorf("price at or before: %w", err)
	}
	if !ok || sample.Price == 0 {
		return Change{Available: false}, nil
	}
	pct := (currentPrice - sample.Price) / sample.Price * 100
	return Change{Available: true, Percent: pct}, nil
}

// trendGlyphThreshold is the ±0.01% dead zone around which the glyph
// reports flat (spec §4.4 Command /price).
const trendGlyphThreshold = 0.01

// TrendGlyph picks 📈/📉/➖ for a percent change at the ±0.01% thresholds.
func TrendGlyph(pct float64) string {
	switch {
	case pct > trendGlyphThreshold:
		return "📈"
	case pct < -trendGlyphThreshold:
		return "📉"
	default:
		return "➖"
	}
}

// FormatChange renders a change window as "±N.NN%" or "unavailable".
func FormatChange(c Change) string {
	if !c.Available {
		return "unavailable"
	}
	return fmt.Sprintf("%+.2f%%", c.Percent)
}
