package circulation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the common cause of ErrItemNotFound and ErrHolderNotFound.
	ErrNotFound = errors.New("not found")

	// ErrItemNotFound is returned when no item with the given id is registered.
	ErrItemNotFound = fmt.Errorf("item %w", ErrNotFound)

	// ErrHolderNotFound is returned when no holder with the given id is registered.
	ErrHolderNotFound = fmt.Errorf("holder %w", ErrNotFound)

	// ErrDuplicateKey is returned when a registration collides with an existing id, email or phone.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrAlreadyIssued is returned when an item is requested that is currently on loan.
	ErrAlreadyIssued = errors.New("item is already issued")

	// ErrBorrowLimitExceeded is returned when a holder already holds the maximum number of items.
	ErrBorrowLimitExceeded = errors.New("holder has reached the borrow limit")

	// ErrNotIssuedToHolder is returned when an item is returned by a holder that does not hold it.
	ErrNotIssuedToHolder = errors.New("item is not issued to this holder")

	// ErrReservationNotNeeded is returned when an available item is reserved.
	ErrReservationNotNeeded = errors.New("item is available, no reservation needed")

	// ErrResourceBusy is returned when an item on loan or a holder with loans is deregistered.
	ErrResourceBusy = errors.New("resource is busy")

	// ErrUnauthorized is returned when a privileged view is requested by a non-privileged holder.
	ErrUnauthorized = errors.New("operation requires privileged holder category")

	// ErrValidation is the cause of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInvariantViolation signals a broken internal invariant. It is never a user error.
	ErrInvariantViolation = errors.New("circulation invariant violated")

	// ErrUnknownCategory is returned for a category that has no policy.
	ErrUnknownCategory = errors.New("unknown holder category")

	// ErrNilCollaborator is returned when a nil collaborator is passed to an option.
	ErrNilCollaborator = errors.New("collaborator must not be nil")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation.Error(), e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrValidation) work.
func (e ValidationError) Unwrap() error {
	return ErrValidation
}

func invariantViolation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}
