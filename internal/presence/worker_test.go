package presence

import (
	"context"
	"testing"

	"github.com/priceboard/pricecore/internal/snapshot"
)

func TestResolvePriceFromSnapshot(t *testing.T) {
	w := &Worker{Asset: "BTC"}
	snap := snapshot.Document{Prices: map[string]snapshot.Price{
		"BTC": {Price: 107_018.0, PublishTime: 1000},
	}}

	price, ok, err := w.resolvePrice(context.Background(), "BTC", snap)
	if err != nil {
		t.Fatalf("resolvePrice: %v", err)
	}
	if !ok || price != 107_018.0 {
		t.Errorf("resolvePrice = (%v, %v), want (107018, true)", price, ok)
	}
}

func TestResolveReferencesFromSnapshot(t *testing.T) {
	w := &Worker{}
	snap := snapshot.Document{Prices: map[string]snapshot.Price{
		"BTC": {Price: 107_018.0},
		"ETH": {Price: 3_800.0},
		"SOL": {Price: 149.70},
	}}

	refs := w.resolveReferences(context.Background(), snap)
	if len(refs) != 3 {
		t.Fatalf("resolveReferences returned %d entries, want 3", len(refs))
	}
	if refs["SOL"] != 149.70 {
		t.Errorf("resolveReferences[SOL] = %v, want 149.70", refs["SOL"])
	}
}

func TestCrossRatePanelUnavailableReference(t *testing.T) {
	got := crossRatePanel("FARTCOIN", "SOL", 1.0641, map[string]float64{})
	if got != "1 SOL: reference unavailable" {
		t.Errorf("crossRatePanel with missing ref = %q", got)
	}
}

func TestCrossRatePanelComputesRatio(t *testing.T) {
	refs := map[string]float64{"BTC": 100_000.0}
	got := crossRatePanel("SOL", "BTC", 150.0, refs)
	want := "1 SOL = 0.0015 BTC"
	if got != want {
		t.Errorf("crossRatePanel = %q, want %q", got, want)
	}
}

func TestPresencePanelRotation(t *testing.T) {
	w := &Worker{Asset: "SOL"}
	refs := map[string]float64{"BTC": 100_000.0, "ETH": 3_000.0, "SOL": 150.0}
	c1h := Change{Available: true, Percent: 1.5}
	c24h := Change{Available: true, Percent: -2.25}

	if got := w.presencePanel(0, 150.0, c1h, c24h, refs); got != "1h: +1.50%" {
		t.Errorf("panel 0 = %q", got)
	}
	if got := w.presencePanel(4, 150.0, c1h, c24h, refs); got != "24h: -2.25%" {
		t.Errorf("panel 4 = %q", got)
	}
	if got := w.presencePanel(1, 150.0, c1h, c24h, refs); got != "1 SOL = 0.0015 BTC" {
		t.Errorf("panel 1 = %q", got)
	}
}
