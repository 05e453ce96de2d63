package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"plain validation", Validationf("guests must be at least %d", 1), KindValidation},
		{"time range is its own kind", fmt.Errorf("parse slot: %w", ErrInvalidTimeRange), KindInvalidTimeRange},
		{"capacity is a validation error", ErrInsufficientCapacity, KindValidation},
		{"no availability", ErrNoAvailability, KindNoAvailability},
		{"selection required", ErrTableSelectionRequired, KindTableSelectionRequired},
		{"wrapped conflict", fmt.Errorf("table 3: %w", ErrConflict), KindConflict},
		{"invalid transition", ErrInvalidTransition, KindInvalidTransition},
		{"not found", fmt.Errorf("table 9: %w", ErrNotFound), KindNotFound},
		{"auth", ErrAuth, KindAuth},
		{"anything else", errors.New("disk on fire"), KindInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Kind(tc.err))
		})
	}
}

func TestTimeRangeIsValidation(t *testing.T) {
	assert.ErrorIs(t, ErrInvalidTimeRange, ErrValidation)
	assert.ErrorIs(t, ErrInsufficientCapacity, ErrValidation)
	assert.NotErrorIs(t, ErrConflict, ErrValidation)
}
