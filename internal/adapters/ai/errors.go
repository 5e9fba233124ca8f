package ai

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"pitchbook/pkg/errors"
)

// ThrottleError is returned when the provider rejects a call for quota
// reasons. RetryAfter carries the server hint when one was present, zero
// otherwise.
type ThrottleError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ThrottleError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("throttled, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("throttled: %v", e.Err)
}

// Unwrap makes the error match errors.ErrRateLimited.
func (e *ThrottleError) Unwrap() error {
	return errors.ErrRateLimited
}

// RetryAfterHint exposes the server hint to retry layers that only know the
// error by interface.
func (e *ThrottleError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// ConflictError is returned for transient provider-side state conflicts,
// e.g. a concurrent operation on the same remote conversation thread.
type ConflictError struct {
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("state conflict: %v", e.Err)
}

// Unwrap makes the error match errors.ErrConflict.
func (e *ConflictError) Unwrap() error {
	return errors.ErrConflict
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry after (\d+) seconds?`)

// classifyError maps a provider error onto the retry taxonomy. Errors that
// match neither class are returned unchanged and treated as non-retriable.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 429:
			return &ThrottleError{RetryAfter: retryAfterHint(apierr), Err: err}
		case 409:
			return &ConflictError{Err: err}
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota exceeded"):
		return &ThrottleError{RetryAfter: parseRetryAfterText(err.Error()), Err: err}
	case strings.Contains(msg, "cannot cancel run") || strings.Contains(msg, "already has an active run"):
		return &ConflictError{Err: err}
	}

	return err
}

// retryAfterHint prefers the Retry-After header, falling back to the
// human-readable hint some deployments embed in the error message.
func retryAfterHint(apierr *openai.Error) time.Duration {
	if apierr.Response != nil {
		if v := apierr.Response.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return parseRetryAfterText(apierr.Error())
}

func parseRetryAfterText(msg string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(msg)
	if len(m) != 2 {
		return 0
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
