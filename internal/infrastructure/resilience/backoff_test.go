package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff_NoJitter(t *testing.T) {
	cfg := BackoffConfig{
		BaseDelay:    time.Second,
		MaxDelay:     60 * time.Second,
		JitterFactor: 0,
	}

	assert.Equal(t, time.Second, CalculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, CalculateBackoff(1, cfg))
	assert.Equal(t, 4*time.Second, CalculateBackoff(2, cfg))
	assert.Equal(t, 32*time.Second, CalculateBackoff(5, cfg))
}

func TestCalculateBackoff_CappedAtMaxDelay(t *testing.T) {
	cfg := BackoffConfig{
		BaseDelay:    time.Second,
		MaxDelay:     60 * time.Second,
		JitterFactor: 0,
	}

	assert.Equal(t, 60*time.Second, CalculateBackoff(6, cfg))
	assert.Equal(t, 60*time.Second, CalculateBackoff(20, cfg))
}

func TestCalculateBackoff_JitterRange(t *testing.T) {
	cfg := BackoffConfig{
		BaseDelay:    time.Second,
		MaxDelay:     60 * time.Second,
		JitterFactor: 0.25,
	}

	for i := 0; i < 100; i++ {
		d := CalculateBackoff(2, cfg)
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestWithBackoff_SucceedsAfterRetries(t *testing.T) {
	cfg := BackoffConfig{
		BaseDelay:    time.Millisecond,
		MaxDelay:     time.Millisecond,
		JitterFactor: 0,
		MaxRetries:   5,
	}

	attempts := 0
	err := WithBackoff(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithBackoff_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	cfg := BackoffConfig{
		BaseDelay:    time.Millisecond,
		MaxDelay:     time.Millisecond,
		JitterFactor: 0,
		MaxRetries:   2,
	}

	attempts := 0
	lastErr := errors.New("attempt error")
	err := WithBackoff(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return lastErr
	})
	require.ErrorIs(t, err, lastErr)
	assert.Equal(t, 3, attempts, "maxRetries+1 total attempts")
}

func TestWithBackoff_ContextCancelAbortsWait(t *testing.T) {
	cfg := BackoffConfig{
		BaseDelay:    time.Hour,
		JitterFactor: 0,
		MaxRetries:   3,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := WithBackoff(ctx, cfg, fail)
	assert.ErrorIs(t, err, context.Canceled)
}
