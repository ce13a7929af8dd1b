package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrValidation covers malformed input rejected before any mutation:
// bad time windows, missing required fields, non-positive amounts,
// disallowed state transitions.
var ErrValidation = errors.New("validation error")

// ErrForbidden is returned when the caller lacks the required authority or
// ownership for an operation. No mutation is attempted.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a resource-overlap constraint is violated at
// commit time (vehicle double-booking under the posting lock). Retryable.
var ErrConflict = errors.New("resource conflict")

func ValidationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func ForbiddenErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func ConflictErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
