package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchBatchCollapsesMantissaExponent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]wireEntry{
			{ID: "feed-btc", PriceMantissa: 1070180, PriceExponent: -1, PublishTime: 100},
			{ID: "feed-sol", PriceMantissa: 14970, PriceExponent: -2, PublishTime: 100},
		})
	}))
	defer srv.Close()

	client := New(srv.URL)
	quotes, err := client.FetchBatch(context.Background(), []string{"feed-btc", "feed-sol"})
	if err != nil {
		t.Fatalf("fetch batch: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(quotes))
	}
	if quotes[0].Price != 107018.0 {
		t.Fatalf("btc price=%v, want 107018.0", quotes[0].Price)
	}
	if !quotes[0].Finite {
		t.Fatalf("btc quote should be finite")
	}
	if quotes[1].Price != 149.70 {
		t.Fatalf("sol price=%v, want 149.70", quotes[1].Price)
	}
}

func TestFetchBatchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL)
	if _, err := client.FetchBatch(context.Background(), []string{"feed-btc"}); err == nil {
		t.Fatal("expected error on 500 status")
	}
}
