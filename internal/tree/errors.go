package tree

import (
	"errors"
	"fmt"
)

// BuildErrorCode categorizes construction failures.
type BuildErrorCode string

const (
	// CodeMalformedTopology indicates the plan's leaves do not match the
	// pattern's positive items.
	CodeMalformedTopology BuildErrorCode = "MALFORMED_TOPOLOGY"

	// CodeInvalidPattern indicates a pattern the tree cannot evaluate.
	CodeInvalidPattern BuildErrorCode = "INVALID_PATTERN"

	// CodeUnshareable marks a signature collision between nodes that are
	// not equivalent. The node is duplicated instead of shared.
	CodeUnshareable BuildErrorCode = "UNSHAREABLE"
)

// BuildError is returned when a pattern cannot be turned into a tree.
// Build errors are configuration errors and never occur while events
// are processed.
type BuildError struct {
	Code    BuildErrorCode
	Pattern string
	Message string
}

func (e *BuildError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("%s: %s (pattern=%s)", e.Code, e.Message, e.Pattern)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func buildErrorf(code BuildErrorCode, pattern, format string, args ...any) *BuildError {
	return &BuildError{Code: code, Pattern: pattern, Message: fmt.Sprintf(format, args...)}
}

// IsMalformedTopology reports whether err is a malformed topology error.
// Uses errors.As to handle wrapped errors.
func IsMalformedTopology(err error) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Code == CodeMalformedTopology
	}
	return false
}
