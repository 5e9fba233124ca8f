package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_FirstCallImmediate(t *testing.T) {
	l := New(Config{MinDelay: time.Hour})

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "validator"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.EqualValues(t, 1, l.CallCount())
}

func TestAcquire_EnforcesSpacing(t *testing.T) {
	const (
		minDelay = 20 * time.Millisecond
		callers  = 5
	)
	l := New(Config{MinDelay: minDelay})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background(), "agent"))
		}()
	}
	wg.Wait()

	// 5 grants require at least 4 full gaps between them.
	span := time.Since(start)
	assert.GreaterOrEqual(t, span, 4*minDelay)
	assert.EqualValues(t, callers, l.CallCount())
}

func TestAcquire_CancelledWhileWaiting(t *testing.T) {
	l := New(Config{MinDelay: time.Hour})
	require.NoError(t, l.Acquire(context.Background(), "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, "second")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The failed acquire must not be recorded or leave the lock held.
	assert.EqualValues(t, 1, l.CallCount())
}

func TestAcquire_CancelledWhileQueued(t *testing.T) {
	l := New(Config{MinDelay: 500 * time.Millisecond})
	require.NoError(t, l.Acquire(context.Background(), "first"))

	// Occupy the lock with a waiter, then queue a second caller whose
	// context expires before the lock frees up.
	started := make(chan struct{})
	go func() {
		close(started)
		_ = l.Acquire(context.Background(), "second")
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, "third")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireClass_AppliesCooldown(t *testing.T) {
	const cooldown = 30 * time.Millisecond
	l := New(Config{
		MinDelay:  0,
		Cooldowns: map[CallerClass]time.Duration{ClassScrape: cooldown},
	})

	start := time.Now()
	require.NoError(t, l.AcquireClass(context.Background(), "news", ClassScrape))
	assert.GreaterOrEqual(t, time.Since(start), cooldown)

	// Unknown classes get no extra delay.
	start = time.Now()
	require.NoError(t, l.AcquireClass(context.Background(), "validator", ClassDefault))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestAcquireClass_CooldownDoesNotBlockOthers(t *testing.T) {
	l := New(Config{
		MinDelay:  0,
		Cooldowns: map[CallerClass]time.Duration{ClassDocSearch: 200 * time.Millisecond},
	})

	done := make(chan struct{})
	go func() {
		_ = l.AcquireClass(context.Background(), "docs", ClassDocSearch)
		close(done)
	}()

	// A plain acquire should get through while the doc-search caller is
	// still serving its cooldown.
	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "validator"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	<-done
}
