package groupchat

import (
	"context"
	"time"

	"pitchbook/internal/metrics"
	"pitchbook/internal/ratelimit"
	"pitchbook/pkg/errors"
	"pitchbook/pkg/logger"
)

// RetryPolicy bounds a single logical participant call. Throttle and
// conflict retries are counted separately; ConflictAttempts defaults to
// MaxAttempts when unset.
type RetryPolicy struct {
	MaxAttempts      int
	ConflictAttempts int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	HintMargin       time.Duration
	ConflictDelay    time.Duration
}

// retryAfterHinted is satisfied by throttle errors that carry a
// server-supplied "retry after" duration.
type retryAfterHinted interface {
	RetryAfterHint() time.Duration
}

// CallRetrier wraps one request/response exchange with a participant. The
// pacing limiter is consulted once per logical call, before the first
// attempt; retries of the same call are spaced only by their own backoff.
type CallRetrier struct {
	limiter *ratelimit.PacingLimiter
	policy  RetryPolicy
	sleep   func(ctx context.Context, d time.Duration) error
	log     *logger.Logger
}

func NewCallRetrier(limiter *ratelimit.PacingLimiter, policy RetryPolicy) *CallRetrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.ConflictAttempts <= 0 {
		policy.ConflictAttempts = policy.MaxAttempts
	}
	return &CallRetrier{
		limiter: limiter,
		policy:  policy,
		sleep:   sleepCtx,
		log:     logger.Get().With("component", "call_retrier"),
	}
}

// Execute runs op with pacing and bounded retries. Throttle errors back off
// by the server hint plus a margin, or exponentially from BaseDelay, capped
// at MaxDelay. Conflict errors retry after a fixed short delay. Anything
// else propagates immediately. On exhaustion the last error is wrapped so
// callers can match errors.ErrRetryExhausted.
func (r *CallRetrier) Execute(ctx context.Context, caller string, class ratelimit.CallerClass, op func(context.Context) error) error {
	if err := r.limiter.AcquireClass(ctx, caller, class); err != nil {
		return err
	}

	var throttles, conflicts int
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}

		wait, reason := r.backoff(err, throttles)
		switch reason {
		case "conflict":
			conflicts++
			if conflicts >= r.policy.ConflictAttempts {
				return errors.Wrapf(errors.ErrRetryExhausted, "%s failed after %d conflict attempts: %v",
					caller, r.policy.ConflictAttempts, err)
			}
		case "rate_limit":
			throttles++
			if throttles >= r.policy.MaxAttempts {
				return errors.Wrapf(errors.ErrRetryExhausted, "%s failed after %d attempts: %v",
					caller, r.policy.MaxAttempts, err)
			}
		default:
			return err
		}

		metrics.RetryAttempts.WithLabelValues(caller, reason).Inc()
		metrics.BackoffSeconds.WithLabelValues(caller).Add(wait.Seconds())
		r.log.Warnf("Attempt %d for %s failed, retrying in %s: %v",
			throttles+conflicts, caller, wait, err)

		if serr := r.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
}

// backoff decides how long to wait before retrying after err, for a
// zero-based attempt number. An empty reason means the error is not
// retriable.
func (r *CallRetrier) backoff(err error, attempt int) (wait time.Duration, reason string) {
	switch {
	case errors.Is(err, errors.ErrRateLimited):
		var hinted retryAfterHinted
		if errors.As(err, &hinted) {
			if hint := hinted.RetryAfterHint(); hint > 0 {
				return hint + r.policy.HintMargin, "rate_limit"
			}
		}
		wait = r.policy.BaseDelay * (1 << uint(attempt))
		if wait > r.policy.MaxDelay {
			wait = r.policy.MaxDelay
		}
		return wait, "rate_limit"

	case errors.Is(err, errors.ErrConflict):
		return r.policy.ConflictDelay, "conflict"

	default:
		return 0, ""
	}
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
