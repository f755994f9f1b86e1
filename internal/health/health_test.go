package health

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthyWhenDiscordUpdateRecent(t *testing.T) {
	s := New("BTC")
	s.RecordPriceUpdate()
	s.RecordDiscordUpdate()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.Handler()(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
}

func TestUnhealthyAfterConsecutiveFailureMax(t *testing.T) {
	s := New("BTC")
	s.RecordDiscordUpdate()
	for i := 0; i < DefaultConsecutiveFailureMax; i++ {
		s.RecordIterationFailure()
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.Handler()(rec, req)

	if rec.Code != 503 {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
}

// S4: snapshot staleness is independent of Discord health as long as
// Discord updates still succeed.
func TestScenarioS4SnapshotStaleStillHealthy(t *testing.T) {
	s := New("BTC")
	s.lastPriceUpdate = time.Now().Add(-120 * time.Second)
	s.RecordDiscordUpdate()

	doc := s.snapshot()
	if !doc.Healthy {
		t.Fatalf("expected healthy=true when discord update recent despite stale price")
	}
	if doc.SecondsSincePriceUpdate < 120 {
		t.Fatalf("seconds_since_price_update=%d, want >= 120", doc.SecondsSincePriceUpdate)
	}
}
