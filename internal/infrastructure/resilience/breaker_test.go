package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(t *testing.T, cfg BreakerConfig) (*CircuitBreaker, *time.Time) {
	t.Helper()
	b := NewCircuitBreaker("agent", cfg)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func fail(ctx context.Context) error { return errBoom }
func succeed(ctx context.Context) error { return nil }

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 3})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := b.Execute(ctx, fail)
		require.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, BreakerClosed, b.State(), "closed after 2 of 3 failures")

	err := b.Execute(ctx, fail)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, BreakerOpen, b.State(), "open after 3rd failure")
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 1})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, fail))
	require.Equal(t, BreakerOpen, b.State())

	called := false
	err := b.Execute(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "fn must not run while open")
}

func TestCircuitBreaker_LazyHalfOpenTransition(t *testing.T) {
	b, now := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, ResetTimeout: 60 * time.Second})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, fail))
	require.Equal(t, BreakerOpen, b.State())

	// Before the reset timeout elapses, still open
	*now = now.Add(59 * time.Second)
	assert.Equal(t, BreakerOpen, b.State())

	// After the timeout, the transition happens on the state query itself
	*now = now.Add(2 * time.Second)
	assert.Equal(t, BreakerHalfOpen, b.State())
}

func TestCircuitBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	b, now := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, fail))
	*now = now.Add(2 * time.Second)
	require.Equal(t, BreakerHalfOpen, b.State())

	require.Error(t, b.Execute(ctx, fail))
	assert.Equal(t, BreakerOpen, b.State(), "single half-open failure reopens")
}

func TestCircuitBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b, now := newTestBreaker(t, BreakerConfig{
		FailureThreshold:         1,
		ResetTimeout:             time.Second,
		HalfOpenSuccessThreshold: 2,
	})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, fail))
	*now = now.Add(2 * time.Second)
	require.Equal(t, BreakerHalfOpen, b.State())

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, BreakerHalfOpen, b.State(), "one success is not enough")

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, BreakerClosed, b.State())

	// Failure history is cleared: one new failure must not trip a
	// threshold-2 breaker
	b.config.FailureThreshold = 2
	require.Error(t, b.Execute(ctx, fail))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestCircuitBreaker_FailureWindowExpires(t *testing.T) {
	b, now := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 3,
		FailureWindow:    time.Minute,
	})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, fail))
	require.Error(t, b.Execute(ctx, fail))

	// Old failures age out of the rolling window
	*now = now.Add(2 * time.Minute)
	require.Error(t, b.Execute(ctx, fail))
	assert.Equal(t, BreakerClosed, b.State(), "only 1 failure inside the window")
}

func TestCircuitBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(t, BreakerConfig{FailureThreshold: 1})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, fail))
	require.Equal(t, BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Execute(ctx, succeed))
}

func TestCircuitBreaker_NotifiesStateChanges(t *testing.T) {
	b, now := newTestBreaker(t, BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})

	type change struct{ from, to BreakerState }
	var changes []change
	b.OnStateChange(func(name string, from, to BreakerState) {
		assert.Equal(t, "agent", name)
		changes = append(changes, change{from, to})
	})

	ctx := context.Background()
	require.Error(t, b.Execute(ctx, fail))
	*now = now.Add(2 * time.Second)
	b.State()

	require.Len(t, changes, 2)
	assert.Equal(t, change{BreakerClosed, BreakerOpen}, changes[0])
	assert.Equal(t, change{BreakerOpen, BreakerHalfOpen}, changes[1])
}
