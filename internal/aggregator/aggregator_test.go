package aggregator

import (
	"math"
	"testing"

	"github.com/priceboard/pricecore/internal/config"
	"github.com/priceboard/pricecore/internal/oracle"
)

func testAssets() config.AssetList {
	return config.AssetList{
		{Symbol: "BTC", FeedID: "feed-btc"},
		{Symbol: "ETH", FeedID: "feed-eth"},
	}
}

func TestBuildTicksAndPricesDiscardsNonFinite(t *testing.T) {
	quotes := []oracle.Quote{
		{FeedID: "feed-btc", Price: 107018.5, PublishTime: 100, Finite: true},
		{FeedID: "feed-eth", Price: math.NaN(), PublishTime: 100, Finite: true},
	}

	ticks, prices := buildTicksAndPrices(testAssets(), quotes, 1000)

	if len(ticks) != 1 || ticks[0].Asset != "BTC" {
		t.Fatalf("expected only BTC tick, got %+v", ticks)
	}
	if _, ok := prices["ETH"]; ok {
		t.Fatalf("expected ETH to be discarded, got price entry %+v", prices["ETH"])
	}
	if p, ok := prices["BTC"]; !ok || p.Price != 107018.5 {
		t.Fatalf("expected BTC price 107018.5, got %+v ok=%v", p, ok)
	}
}

func TestBuildTicksAndPricesDiscardsNonFiniteFlag(t *testing.T) {
	quotes := []oracle.Quote{
		{FeedID: "feed-btc", Price: 100, PublishTime: 100, Finite: false},
	}

	ticks, prices := buildTicksAndPrices(testAssets(), quotes, 1000)

	if len(ticks) != 0 || len(prices) != 0 {
		t.Fatalf("expected quote with Finite=false to be discarded, got ticks=%+v prices=%+v", ticks, prices)
	}
}

func TestBuildTicksAndPricesDiscardsInfinite(t *testing.T) {
	quotes := []oracle.Quote{
		{FeedID: "feed-btc", Price: math.Inf(1), PublishTime: 100, Finite: true},
	}

	ticks, _ := buildTicksAndPrices(testAssets(), quotes, 1000)

	if len(ticks) != 0 {
		t.Fatalf("expected +Inf quote to be discarded, got %+v", ticks)
	}
}

func TestBuildTicksAndPricesSkipsUnmappedFeed(t *testing.T) {
	quotes := []oracle.Quote{
		{FeedID: "feed-unknown", Price: 42, PublishTime: 100, Finite: true},
	}

	ticks, prices := buildTicksAndPrices(testAssets(), quotes, 1000)

	if len(ticks) != 0 || len(prices) != 0 {
		t.Fatalf("expected quote for unmapped feed id to be skipped, got ticks=%+v prices=%+v", ticks, prices)
	}
}

func TestBuildTicksAndPricesStampsGivenTimestamp(t *testing.T) {
	quotes := []oracle.Quote{
		{FeedID: "feed-btc", Price: 1, PublishTime: 55, Finite: true},
	}

	ticks, prices := buildTicksAndPrices(testAssets(), quotes, 9999)

	if len(ticks) != 1 || ticks[0].TS != 9999 {
		t.Fatalf("expected tick TS 9999, got %+v", ticks)
	}
	if prices["BTC"].PublishTime != 55 {
		t.Fatalf("expected price PublishTime to come from the quote, got %+v", prices["BTC"])
	}
}

// TestZeroTicksIsTheCycleRejectCondition documents the invariant cycle()
// relies on: buildTicksAndPrices returning zero ticks is exactly the
// condition that triggers errZeroParsed.
func TestZeroTicksIsTheCycleRejectCondition(t *testing.T) {
	quotes := []oracle.Quote{
		{FeedID: "feed-btc", Price: math.NaN(), PublishTime: 100, Finite: true},
		{FeedID: "feed-unknown", Price: 1, PublishTime: 100, Finite: true},
	}

	ticks, _ := buildTicksAndPrices(testAssets(), quotes, 1000)

	if len(ticks) != 0 {
		t.Fatalf("expected zero ticks so cycle() returns errZeroParsed, got %+v", ticks)
	}
}
