package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidEvent       = errors.New("invalid event")
	ErrInstrumentNotFound = errors.New("payment instrument not found")
	ErrStoreUnavailable   = errors.New("aggregate store unavailable")
	ErrPartialApplication = errors.New("partial application")
	ErrNotFound           = errors.New("not found")

	ErrEmptyUser        = fmt.Errorf("%w: empty user id", ErrInvalidEvent)
	ErrInvalidAmount    = fmt.Errorf("%w: amount must be positive", ErrInvalidEvent)
	ErrInvalidMonth     = fmt.Errorf("%w: month must be between 0 and 11", ErrInvalidEvent)
	ErrInvalidCutoffDay = fmt.Errorf("%w: billing cutoff day must be between 1 and 31", ErrInvalidEvent)
)

// PartialApplicationError reports a change whose deltas were only partly
// written: an installment purchase that reached some of its months, or an
// update whose reversal was written but whose reapplication was not.
type PartialApplicationError struct {
	Applied []MonthKey
	// FixedCost is set when the user's fixed cost is among the writes made.
	FixedCost bool
	Total     int
	Err       error
}

// Writes returns how many deltas were written before the failure.
func (e *PartialApplicationError) Writes() int {
	n := len(e.Applied)
	if e.FixedCost {
		n++
	}
	return n
}

func (e *PartialApplicationError) Error() string {
	return fmt.Sprintf("partial application: %d of %d writes applied: %v", e.Writes(), e.Total, e.Err)
}

func (e *PartialApplicationError) Is(target error) bool {
	return target == ErrPartialApplication
}

func (e *PartialApplicationError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether redelivering the event may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInvalidEvent)
}
