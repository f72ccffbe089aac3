package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type classifies the business document a transaction records.
type Type string

const (
	TypeJournal    Type = "JOURNAL"
	TypeInvoice    Type = "INVOICE"
	TypeBill       Type = "BILL"
	TypePayment    Type = "PAYMENT"
	TypeAdjustment Type = "ADJUSTMENT"
)

// Valid reports whether t is a known transaction type.
func (t Type) Valid() bool {
	switch t {
	case TypeJournal, TypeInvoice, TypeBill, TypePayment, TypeAdjustment:
		return true
	}

	return false
}

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPosted    Status = "POSTED"
	StatusVoided    Status = "VOIDED"
	StatusReversed  Status = "REVERSED"
	StatusCancelled Status = "CANCELLED"
)

// transitions is the closed set of legal status changes. VOIDED, REVERSED
// and CANCELLED are terminal.
var transitions = map[Status]map[Status]bool{
	StatusDraft:  {StatusPosted: true, StatusCancelled: true},
	StatusPosted: {StatusVoided: true, StatusReversed: true},
}

// CanTransitionTo reports whether the status change appears in the
// transition table.
func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s][next]
}

// EntryType is the side of a ledger entry. A line is exactly one of the two,
// never both.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// Valid reports whether e is DEBIT or CREDIT.
func (e EntryType) Valid() bool {
	return e == EntryDebit || e == EntryCredit
}

// Opposite returns the offsetting side; reversals mirror every line onto it.
func (e EntryType) Opposite() EntryType {
	if e == EntryDebit {
		return EntryCredit
	}

	return EntryDebit
}

// Transaction is the unit of financial record. Once POSTED its entries are
// immutable; corrections happen through new transactions, never edits.
type Transaction struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	BranchID       *uuid.UUID
	Type           Type
	Status         Status
	Date           time.Time
	Description    string
	Reference      string
	Currency       string
	CreatedBy      uuid.UUID
	ApprovedBy     *uuid.UUID
	Metadata       Metadata
	Entries        []*Entry
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// Entry is one debit or credit line of a transaction. Entries are written
// once with their parent and never updated or deleted afterwards.
type Entry struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	Type          EntryType
	Amount        decimal.Decimal
	Currency      string
	CreatedAt     time.Time
}

// Metadata travels with the transaction as an opaque document. The core
// stores foreign/base amounts as supplied and never converts between them.
type Metadata struct {
	ForeignAmount   *decimal.Decimal `json:"foreign_amount,omitempty"`
	ForeignCurrency string           `json:"foreign_currency,omitempty"`
	BaseAmount      *decimal.Decimal `json:"base_amount,omitempty"`
	ComplianceFlags []string         `json:"compliance_flags,omitempty"`
	IsBalanced      bool             `json:"is_balanced"`
	VoidReason      string           `json:"void_reason,omitempty"`
	CancelReason    string           `json:"cancel_reason,omitempty"`
	ReversalReason  string           `json:"reversal_reason,omitempty"`
	ReversedBy      *uuid.UUID       `json:"reversed_by,omitempty"`
	Reverses        *uuid.UUID       `json:"reverses,omitempty"`
	AuditTrail      AuditTrail       `json:"audit_trail"`
}

// AuditTrail records who last touched the transaction. Version increases by
// one per mutation and is used as an optimistic guard on status changes.
type AuditTrail struct {
	LastModified   time.Time `json:"last_modified"`
	LastModifiedBy uuid.UUID `json:"last_modified_by"`
	Version        int       `json:"version"`
}

// Totals sums the transaction's debit and credit lines.
func (t *Transaction) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero

	for _, e := range t.Entries {
		switch e.Type {
		case EntryDebit:
			debit = debit.Add(e.Amount)
		case EntryCredit:
			credit = credit.Add(e.Amount)
		}
	}

	return debit, credit
}

// Balanced reports whether debits equal credits over the loaded entries.
func (t *Transaction) Balanced() bool {
	debit, credit := t.Totals()
	return debit.Equal(credit)
}
