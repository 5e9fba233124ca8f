package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pitchbook/pkg/errors"
)

func TestClassifyError_RateLimitMessage(t *testing.T) {
	err := classifyError(errors.New("Rate limit is exceeded. Try again later."))

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))

	var throttle *ThrottleError
	require.True(t, errors.As(err, &throttle))
	assert.Equal(t, time.Duration(0), throttle.RetryAfter)
}

func TestClassifyError_RetryAfterHint(t *testing.T) {
	err := classifyError(errors.New("rate limit exceeded, please retry after 17 seconds"))

	var throttle *ThrottleError
	require.True(t, errors.As(err, &throttle))
	assert.Equal(t, 17*time.Second, throttle.RetryAfter)
}

func TestClassifyError_Conflict(t *testing.T) {
	err := classifyError(errors.New("Cannot cancel run with status 'in_progress'"))

	assert.True(t, errors.Is(err, errors.ErrConflict))
	assert.False(t, errors.Is(err, errors.ErrRateLimited))
}

func TestClassifyError_NonRetriablePassesThrough(t *testing.T) {
	original := errors.New("model not found")
	err := classifyError(original)

	assert.Equal(t, original, err)
	assert.False(t, errors.Is(err, errors.ErrRateLimited))
	assert.False(t, errors.Is(err, errors.ErrConflict))
}

func TestClassifyError_Nil(t *testing.T) {
	assert.NoError(t, classifyError(nil))
}

func TestParseRetryAfterText(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want time.Duration
	}{
		{"plural seconds", "please retry after 30 seconds", 30 * time.Second},
		{"singular second", "retry after 1 second", time.Second},
		{"case insensitive", "Retry After 5 Seconds", 5 * time.Second},
		{"no hint", "too many requests", 0},
		{"zero seconds ignored", "retry after 0 seconds", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfterText(tt.msg))
		})
	}
}
