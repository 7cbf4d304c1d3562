package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy shared by the handlers and the
// storage layer. Handlers map them onto HTTP statuses with errors.Is.
var (
	// ErrValidation marks malformed or out-of-bound input. Requests failing
	// validation never reach the store.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidField marks a present-but-invalid field in a partial update.
	ErrInvalidField = fmt.Errorf("%w: invalid field", ErrValidation)

	// ErrInvalidDate marks an unparseable deadline.
	ErrInvalidDate = fmt.Errorf("%w: invalid date format", ErrValidation)

	// ErrPastDeadline marks a deadline strictly before now. Checked at
	// creation only; updates accept past deadlines.
	ErrPastDeadline = fmt.Errorf("%w: deadline cannot be in the past", ErrValidation)

	// ErrNotFound marks a referenced record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists marks an insert against a taken derived id.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict marks a write-write conflict on a record read inside a
	// transaction. The storage layer retries a bounded number of times
	// before letting it escape.
	ErrConflict = errors.New("transaction conflict")
)

// NotFoundError reports a missing record along with its collection, so a
// missing team inside task creation can carry a business-rule message while
// still matching errors.Is(err, ErrNotFound).
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q does not exist", e.Collection, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
