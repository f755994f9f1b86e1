package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/priceboard/pricecore/internal/apperr"
)

const (
	maxTxnRetries  = 5
	retryBaseDelay = 50 * time.Millisecond
	retryMaxDelay  = 800 * time.Millisecond
)

// withTransaction runs fn inside a session transaction, retrying transient
// lock-contention errors up to maxTxnRetries times with exponential backoff
// (50ms -> 800ms), following the teacher's Snapshotter.Save use of
// session.WithTransaction but adding the retry policy spec'd for the store.
func (s *Store) withTransaction(ctx context.Context, fn func(sc context.Context) (any, error)) error {
	var lastErr error
	delay := retryBaseDelay

	for attempt := 0; attempt <= maxTxnRetries; attempt++ {
		session, err := s.client.StartSession()
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}

		_, err = session.WithTransaction(ctx, fn)
		session.EndSession(ctx)

		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			return apperr.NewFatal("store_fatal", err)
		}
		if attempt == maxTxnRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}

	return apperr.NewTransient("store_busy", lastErr)
}

func isTransient(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		if cmdErr.HasErrorLabel("TransientTransactionError") {
			return true
		}
	}
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}
