package helpers

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "sjsage522/pricecrawler/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestRetrySucceedsAfterOneTimeout(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return apperrors.NewTimeout("page 1", "request timed out", nil)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryIsBounded(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, func(ctx context.Context) error {
		calls++
		return apperrors.NewTimeout("page 1", "request timed out", nil)
	})

	assert.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "all 2 attempts failed")
	assert.True(t, apperrors.IsTimeout(err))
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	boom := apperrors.NewNetwork("page 1", "unexpected status code: 500", nil)
	err := Retry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, boom))
}

func TestRetryWaitsForBackoff(t *testing.T) {
	start := time.Now()
	calls := 0
	_ = Retry(context.Background(), 2, 50*time.Millisecond, func(ctx context.Context) error {
		calls++
		return apperrors.NewTimeout("page 1", "request timed out", nil)
	})

	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, time.Hour, func(ctx context.Context) error {
		calls++
		cancel()
		return apperrors.NewTimeout("page 1", "request timed out", nil)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}
