// Package presence implements the per-asset worker: state machine, update
// loop, price formatting, and the rate-limited wrapper over the gateway
// (spec §4.4, §4.5).
package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/priceboard/pricecore/internal/apperr"
	"github.com/priceboard/pricecore/internal/gateway"
	"github.com/priceboard/pricecore/internal/health"
)

const (
	minCallInterval  = 2 * time.Second
	backoffBase      = 5 * time.Second
	backoffCap       = 60 * time.Second
	maxRetryAttempts = 5
)

// RateLimitedCall invokes the gateway with the send serialization gate
// described in spec §4.5: a mutex-enforced minimum inter-call interval,
// server-provided-or-exponential 429 backoff, and a gateway_failures
// counter on transport errors.
type RateLimitedCall struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	status  *health.Status
}

// NewRateLimitedCall creates a gate enforcing minCallInterval between
// sends, backed by golang.org/x/time/rate's token bucket.
func NewRateLimitedCall(status *health.Status) *RateLimitedCall {
	return &RateLimitedCall{
		limiter: rate.NewLimiter(rate.Every(minCallInterval), 1),
		status:  status,
	}
}

// Call serializes fn behind the minimum interval gate and retries 429s per
// spec §4.5/S5: server retry_after if present, else exponential backoff
// (base 5s, doubling, cap 60s), up to 5 attempts. Transport-level errors
// increment gateway_failures and are returned to the caller for Degraded
// accounting.
func (c *RateLimitedCall) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	exponent := uint(1)
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			c.status.ResetGatewayFailures()
			return nil
		}

		var rle *gateway.RateLimitedError
		if errors.As(err, &rle) {
			wait := rle.RetryAfter
			if wait <= 0 {
				wait = backoffBase * time.Duration(1<<exponent)
				if wait > backoffCap {
					wait = backoffCap
				}
				exponent++
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		c.status.RecordGatewayFailure()
		return apperr.NewTransient("presence_gateway", err)
	}

	c.status.RecordGatewayFailure()
	return apperr.NewTransient("presence_rate_limited", fmt.Errorf("exhausted %d retry attempts", maxRetryAttempts))
}

// SetNicknameRateLimited sends SetNickname through the rate-limit gate.
func (c *RateLimitedCall) SetNicknameRateLimited(ctx context.Context, gw gateway.Gateway, guildID, name string) error {
	return c.Call(ctx, func(ctx context.Context) error {
		return gw.SetNickname(ctx, guildID, name)
	})
}

// SetPresenceRateLimited sends SetPresence through the rate-limit gate.
func (c *RateLimitedCall) SetPresenceRateLimited(ctx context.Context, gw gateway.Gateway, text string) error {
	return c.Call(ctx, func(ctx context.Context) error {
		return gw.SetPresence(ctx, text)
	})
}
