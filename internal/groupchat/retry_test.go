package groupchat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pitchbook/internal/ratelimit"
	"pitchbook/pkg/errors"
)

type hintedErr struct {
	hint time.Duration
}

func (e *hintedErr) Error() string { return fmt.Sprintf("throttled, retry after %s", e.hint) }

func (e *hintedErr) Unwrap() error { return errors.ErrRateLimited }

func (e *hintedErr) RetryAfterHint() time.Duration { return e.hint }

func newTestRetrier(policy RetryPolicy) (*CallRetrier, *[]time.Duration) {
	var slept []time.Duration
	r := NewCallRetrier(ratelimit.New(ratelimit.Config{}), policy)
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func TestCallRetrier_SucceedsFirstTry(t *testing.T) {
	r, slept := newTestRetrier(RetryPolicy{MaxAttempts: 7, BaseDelay: time.Second})

	calls := 0
	err := r.Execute(context.Background(), "validator", ratelimit.ClassDefault, func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestCallRetrier_HonorsServerHint(t *testing.T) {
	const margin = 10 * time.Second
	r, slept := newTestRetrier(RetryPolicy{
		MaxAttempts: 7,
		BaseDelay:   20 * time.Second,
		MaxDelay:    300 * time.Second,
		HintMargin:  margin,
	})

	// Fails twice with a "retry after 5 seconds" hint, then succeeds.
	calls := 0
	err := r.Execute(context.Background(), "analyst", ratelimit.ClassDefault, func(context.Context) error {
		calls++
		if calls <= 2 {
			return &hintedErr{hint: 5 * time.Second}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, *slept, 2)
	for _, d := range *slept {
		assert.Equal(t, 5*time.Second+margin, d)
	}
}

func TestCallRetrier_ExponentialBackoffCapped(t *testing.T) {
	r, slept := newTestRetrier(RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   20 * time.Second,
		MaxDelay:    60 * time.Second,
	})

	err := r.Execute(context.Background(), "analyst", ratelimit.ClassDefault, func(context.Context) error {
		return errors.Wrap(errors.ErrRateLimited, "quota exceeded")
	})

	require.ErrorIs(t, err, errors.ErrRetryExhausted)
	// 20s, 40s, then capped at 60s; no sleep after the final attempt.
	assert.Equal(t, []time.Duration{20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}, *slept)

	// Backoff never shrinks between consecutive attempts.
	for i := 1; i < len(*slept); i++ {
		assert.GreaterOrEqual(t, (*slept)[i], (*slept)[i-1])
	}
}

func TestCallRetrier_ConflictUsesFixedDelay(t *testing.T) {
	r, slept := newTestRetrier(RetryPolicy{
		MaxAttempts:   7,
		BaseDelay:     20 * time.Second,
		ConflictDelay: 10 * time.Second,
	})

	calls := 0
	err := r.Execute(context.Background(), "analyst", ratelimit.ClassDefault, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.Wrap(errors.ErrConflict, "thread already has an active run")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{10 * time.Second}, *slept)
}

func TestCallRetrier_ConflictAttemptsBoundedSeparately(t *testing.T) {
	r, slept := newTestRetrier(RetryPolicy{
		MaxAttempts:      7,
		ConflictAttempts: 3,
		BaseDelay:        20 * time.Second,
		ConflictDelay:    10 * time.Second,
	})

	calls := 0
	err := r.Execute(context.Background(), "analyst", ratelimit.ClassDefault, func(context.Context) error {
		calls++
		return errors.Wrap(errors.ErrConflict, "thread already has an active run")
	})

	require.ErrorIs(t, err, errors.ErrRetryExhausted)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, *slept)
}

func TestCallRetrier_NonRetriablePropagates(t *testing.T) {
	r, slept := newTestRetrier(RetryPolicy{MaxAttempts: 7, BaseDelay: time.Second})

	boom := errors.New("model not found")
	calls := 0
	err := r.Execute(context.Background(), "analyst", ratelimit.ClassDefault, func(context.Context) error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, errors.ErrRetryExhausted)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestCallRetrier_BoundedAttempts(t *testing.T) {
	r, _ := newTestRetrier(RetryPolicy{MaxAttempts: 7, BaseDelay: time.Millisecond})

	calls := 0
	err := r.Execute(context.Background(), "analyst", ratelimit.ClassDefault, func(context.Context) error {
		calls++
		return errors.Wrap(errors.ErrRateLimited, "rate limit")
	})

	require.ErrorIs(t, err, errors.ErrRetryExhausted)
	assert.Equal(t, 7, calls)
}
