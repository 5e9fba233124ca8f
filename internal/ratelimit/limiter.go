package ratelimit

import (
	"context"
	"time"

	"pitchbook/internal/metrics"
	"pitchbook/pkg/logger"
)

// CallerClass identifies how heavy a caller's remote work is. Heavier
// classes receive a fixed extra cooldown after the generic spacing.
type CallerClass string

const (
	ClassDefault   CallerClass = "default"
	ClassDocSearch CallerClass = "doc_search"
	ClassDataTool  CallerClass = "data_tool"
	ClassScrape    CallerClass = "scrape"
)

// Config configures the pacing limiter.
type Config struct {
	MinDelay  time.Duration
	Cooldowns map[CallerClass]time.Duration
}

// PacingLimiter enforces a minimum spacing between any two outbound model
// calls across the whole process. A single instance is shared by every call
// site; the zero value is not usable, construct with New.
//
// Waiters queue on an internal channel lock, so ordering is FIFO on lock
// acquisition. No stricter fairness is guaranteed for waiters released at
// the same instant.
type PacingLimiter struct {
	lock      chan struct{} // capacity-1 channel used as a cancellable mutex
	minDelay  time.Duration
	cooldowns map[CallerClass]time.Duration

	// guarded by lock
	lastGrant time.Time
	calls     int64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	log *logger.Logger
}

// New creates a pacing limiter. MinDelay <= 0 disables the spacing but the
// call counter still advances.
func New(cfg Config) *PacingLimiter {
	return &PacingLimiter{
		lock:      make(chan struct{}, 1),
		minDelay:  cfg.MinDelay,
		cooldowns: cfg.Cooldowns,
		now:       time.Now,
		sleep:     sleepCtx,
		log:       logger.Get().With("component", "pacing_limiter"),
	}
}

// Acquire blocks the calling goroutine until the generic spacing allows the
// next call, then records the grant. It cannot fail except by context
// cancellation, in which case no grant is recorded.
func (l *PacingLimiter) Acquire(ctx context.Context, caller string) error {
	select {
	case l.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.lock }()

	if !l.lastGrant.IsZero() {
		elapsed := l.now().Sub(l.lastGrant)
		if wait := l.minDelay - elapsed; wait > 0 {
			l.log.Debugf("Throttling %s: waiting %s (call #%d)", caller, wait.Round(time.Millisecond), l.calls+1)
			metrics.PacingWaits.Inc()
			metrics.PacingWaitSeconds.Add(wait.Seconds())

			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	l.calls++
	l.lastGrant = l.now()
	l.log.Debugf("Authorizing %s (call #%d)", caller, l.calls)

	return nil
}

// AcquireClass applies the generic spacing and then the fixed per-class
// cooldown. The cooldown is served outside the lock, so it delays only the
// caller, not other waiters.
func (l *PacingLimiter) AcquireClass(ctx context.Context, caller string, class CallerClass) error {
	if err := l.Acquire(ctx, caller); err != nil {
		return err
	}

	cooldown := l.cooldowns[class]
	if cooldown <= 0 {
		return nil
	}

	l.log.Debugf("Cooldown for %s (%s): %s", caller, class, cooldown)
	return l.sleep(ctx, cooldown)
}

// CallCount returns the number of grants so far. Observability only.
func (l *PacingLimiter) CallCount() int64 {
	l.lock <- struct{}{}
	defer func() { <-l.lock }()
	return l.calls
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
