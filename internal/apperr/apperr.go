package apperr

import (
	"errors"
	"fmt"
)

// Error kinds shared by the booking engine. Call sites wrap these with
// fmt.Errorf("...: %w", err) so errors.Is keeps working across layers.
var (
	ErrValidation             = errors.New("validation error")
	ErrInvalidTimeRange       = fmt.Errorf("%w: invalid time range", ErrValidation)
	ErrInsufficientCapacity   = fmt.Errorf("%w: table capacity is smaller than party size", ErrValidation)
	ErrNoAvailability         = errors.New("no table available")
	ErrTableSelectionRequired = errors.New("party too large for automatic assignment, choose a table")
	ErrConflict               = errors.New("table is no longer available")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrNotFound               = errors.New("not found")
	ErrAuth                   = errors.New("authentication failed")
)

// Wire names of the error kinds.
const (
	KindValidation             = "ValidationError"
	KindInvalidTimeRange       = "InvalidTimeRange"
	KindNoAvailability         = "NoAvailability"
	KindTableSelectionRequired = "TableSelectionRequired"
	KindConflict               = "Conflict"
	KindInvalidTransition      = "InvalidTransition"
	KindNotFound               = "NotFound"
	KindAuth                   = "AuthError"
	KindInternal               = "InternalError"
)

// Kind classifies err. The more specific kinds are checked first because
// ErrInvalidTimeRange also matches ErrValidation.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTimeRange):
		return KindInvalidTimeRange
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNoAvailability):
		return KindNoAvailability
	case errors.Is(err, ErrTableSelectionRequired):
		return KindTableSelectionRequired
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAuth):
		return KindAuth
	default:
		return KindInternal
	}
}

// Validationf returns a validation error with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
