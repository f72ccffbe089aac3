package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("transaction not found")

	// ErrStateConflict is returned by stores when a guarded status update
	// matched no row: another caller changed the transaction first.
	ErrStateConflict = errors.New("transaction state changed concurrently")
)

// ValidationCode identifies which posting invariant a proposal broke.
type ValidationCode string

const (
	CodeBadType          ValidationCode = "BAD_TYPE"
	CodeTooFewLines      ValidationCode = "TOO_FEW_LINES"
	CodeUnbalanced       ValidationCode = "UNBALANCED"
	CodeBadReference     ValidationCode = "BAD_REFERENCE"
	CodeBadAmount        ValidationCode = "BAD_AMOUNT"
	CodeBadEntryType     ValidationCode = "BAD_ENTRY_TYPE"
	CodeCurrencyMismatch ValidationCode = "CURRENCY_MISMATCH"
)

// ValidationError reports a caller-supplied data defect. It is never worth
// retrying: the proposal has to change first.
type ValidationError struct {
	Code   ValidationCode
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Code, e.Detail)
}

// InvalidStateError reports an attempted transition outside the transition
// table, e.g. voiding a transaction that is not POSTED.
type InvalidStateError struct {
	ID        uuid.UUID
	Status    Status
	Attempted Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("transaction %s is %s, cannot transition to %s", e.ID, e.Status, e.Attempted)
}
