package domain

import (
	"errors"
	"fmt"

	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

// Validation errors. Each wraps apperrors.ErrInvalidInput so handlers map
// them to 400 without translation.
var (
	ErrNegativeAmount   = fmt.Errorf("%w: amount must not be negative", apperrors.ErrInvalidInput)
	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be at least 1", apperrors.ErrInvalidInput)
	ErrItemNameRequired = fmt.Errorf("%w: item name is required", apperrors.ErrInvalidInput)
	ErrInvalidDiscount  = fmt.Errorf("%w: invalid discount", apperrors.ErrInvalidInput)
	ErrInvalidChain     = fmt.Errorf("%w: chain inches must be greater than zero", apperrors.ErrInvalidInput)
	ErrInvalidKind      = fmt.Errorf("%w: unknown kind", apperrors.ErrInvalidInput)
	ErrCartItemNotFound = fmt.Errorf("%w: cart item", apperrors.ErrNotFound)
)

// ErrInvalidTransition is returned when a checkout step is not allowed from
// the current step.
var ErrInvalidTransition = errors.New("invalid checkout transition")

// TransitionError carries the step a rejected transition was attempted from.
type TransitionError struct {
	From   Step
	Action string
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s from %s: %s", e.Action, e.From, e.Reason)
	}
	return fmt.Sprintf("cannot %s from %s", e.Action, e.From)
}

// Unwrap lets callers match both ErrInvalidTransition and ErrConflict.
func (e *TransitionError) Unwrap() []error {
	return []error{ErrInvalidTransition, apperrors.ErrConflict}
}
