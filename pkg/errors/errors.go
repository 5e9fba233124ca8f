package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Orchestration-specific errors

var (
	// ErrRateLimited indicates the model provider rejected a call for quota reasons
	ErrRateLimited = errors.New("provider rate limit exceeded")

	// ErrConflict indicates a transient state conflict on the provider side
	// (e.g. concurrent operation on the same remote conversation thread)
	ErrConflict = errors.New("provider state conflict")

	// ErrRetryExhausted indicates all retry attempts for a single call were used
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrUnknownParticipant indicates the coordinator selected a participant
	// that is not part of the roster
	ErrUnknownParticipant = errors.New("unknown participant")

	// ErrRoundLimit indicates the round ceiling fired before a termination signal
	ErrRoundLimit = errors.New("round limit reached")

	// ErrRunFailed indicates the orchestration run terminated in a failed state
	ErrRunFailed = errors.New("run failed")
)

// Tool-specific errors

var (
	// ErrToolFailed indicates a participant tool invocation failed
	ErrToolFailed = errors.New("tool execution failed")

	// ErrNoArticles indicates a news search returned no results
	ErrNoArticles = errors.New("no news articles found")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
