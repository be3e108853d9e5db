package helpers

import (
	"context"
	"fmt"
	"time"

	apperrors "sjsage522/pricecrawler/pkg/errors"
)

// Retry runs fn at most attempts times, waiting a fixed backoff between tries.
// Only retryable errors (timeouts) lead to another attempt; anything else is
// returned immediately. Exhaustion wraps the last error so callers can still
// inspect its type.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !apperrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted after attempt %d: %w", attempt, ctx.Err())
		case <-time.After(backoff):
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
