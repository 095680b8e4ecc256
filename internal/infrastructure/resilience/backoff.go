package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig tunes the delayed-retry schedule
type BackoffConfig struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
	MaxRetries   int
}

// DefaultBackoffConfig returns the standard retry schedule
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:    time.Second,
		MaxDelay:     60 * time.Second,
		JitterFactor: 0.25,
		MaxRetries:   5,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoffConfig()
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = d.JitterFactor
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	return c
}

// CalculateBackoff returns the delay before re-attempting:
// min(base * 2^attempt, max) stretched by up to jitterFactor.
func CalculateBackoff(attempt int, cfg BackoffConfig) time.Duration {
	cfg = cfg.withDefaults()
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.JitterFactor > 0 {
		delay *= 1 + cfg.JitterFactor*rand.Float64()
	}
	return time.Duration(delay)
}

// WithBackoff calls fn up to MaxRetries+1 times total, sleeping the
// computed delay between attempts. The final error is returned once all
// attempts are exhausted. Context cancellation aborts the wait.
func WithBackoff(ctx context.Context, cfg BackoffConfig, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()

	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == cfg.MaxRetries {
			break
		}
		if werr := sleep(ctx, CalculateBackoff(attempt, cfg)); werr != nil {
			return werr
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
