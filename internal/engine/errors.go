package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an error raised while setting up or running an
// evaluation manager.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Shard is the failing shard of a parallel manager, or -1.
	Shard int

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownMode indicates an unsupported evaluation mode.
	ErrCodeUnknownMode RuntimeErrorCode = "UNKNOWN_MODE"

	// ErrCodeInvalidParams indicates inconsistent manager parameters.
	ErrCodeInvalidParams RuntimeErrorCode = "INVALID_PARAMS"

	// ErrCodeShardFailed indicates one shard of a parallel run failed.
	ErrCodeShardFailed RuntimeErrorCode = "SHARD_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Shard >= 0 {
		msg = fmt.Sprintf("%s (shard=%d)", msg, e.Shard)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsUnknownMode reports whether err is an unknown mode error.
// Uses errors.As to handle wrapped errors.
func IsUnknownMode(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownMode
	}
	return false
}

// IsShardFailure reports whether err is a shard failure.
func IsShardFailure(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeShardFailed
	}
	return false
}

// NewUnknownModeError creates a RuntimeError for an unsupported mode.
func NewUnknownModeError(mode Mode) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownMode,
		Message: fmt.Sprintf("unknown evaluation mode %q", mode),
		Shard:   -1,
	}
}

// NewShardError wraps the failure of shard.
func NewShardError(shard int, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeShardFailed,
		Message: "shard evaluation failed",
		Shard:   shard,
		Err:     err,
	}
}

func invalidParamsf(format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: ErrCodeInvalidParams, Message: fmt.Sprintf(format, args...), Shard: -1}
}
