// Package oracle speaks to the upstream batched price feed: a single HTTP
// endpoint accepting N feed ids and returning N entries shaped
// {id, price_mantissa, price_exponent, publish_time} (spec §4.1, §6).
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// Quote is one upstream entry after mantissa/exponent collapse.
type Quote struct {
	FeedID      string
	Price       float64
	PublishTime int64
	Finite      bool
}

// Client fetches batched price quotes from the upstream oracle.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client pointed at baseURL, applying the 10s request
// timeout required by spec §4.1.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type wireEntry struct {
	ID            string `json:"id"`
	PriceMantissa int64  `json:"price_mantissa"`
	PriceExponent int    `json:"price_exponent"`
	PublishTime   int64  `json:"publish_time"`
}

// FetchBatch composes a single request containing all feedIDs and returns
// one Quote per returned entry, in the order the upstream sent them.
// Callers are responsible for discarding non-finite quotes and for the
// retry/backoff policy (spec §4.1 steps 1-3).
func (c *Client) FetchBatch(ctx context.Context, feedIDs []string) ([]Quote, error) {
	url := fmt.Sprintf("%s?ids=%s", c.baseURL, strings.Join(feedIDs, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build oracle request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle request: status %d", resp.StatusCode)
	}

	var entries []wireEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode oracle response: %w", err)
	}

	quotes := make([]Quote, len(entries))
	for i, e := range entries {
		// Dividing by the exact power of ten rounds once; multiplying by an
		// inexact 10^-n would not (14970e-2 would give 149.70000000000002).
		var price float64
		if e.PriceExponent < 0 {
			price = float64(e.PriceMantissa) / math.Pow(10, float64(-e.PriceExponent))
		} else {
			price = float64(e.PriceMantissa) * math.Pow(10, float64(e.PriceExponent))
		}
		quotes[i] = Quote{
			FeedID:      e.ID,
			Price:       price,
			PublishTime: e.PublishTime,
			Finite:      !math.IsNaN(price) && !math.IsInf(price, 0),
		}
	}
	return quotes, nil
}
