package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakbooks/oakbooks/internal/account"
)

// EntryDraft is a proposed ledger line before anything is persisted.
type EntryDraft struct {
	AccountID uuid.UUID
	Type      EntryType
	Amount    decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ValidateEntries checks a proposed entry set against the posting
// invariants: at least two lines, each line a positive amount on exactly one
// side with at most two decimal places, debits equal to credits and greater
// than zero, and every account existing, active and owned by the
// transaction's organization. Amounts are compared exactly; there is no
// rounding tolerance.
//
// The function is pure: accounts are prefetched by the caller and nothing is
// read or written here.
func ValidateEntries(drafts []EntryDraft, currency string, orgID uuid.UUID, accounts map[uuid.UUID]*account.Account) error {
	if len(drafts) < 2 {
		return &ValidationError{
			Code:   CodeTooFewLines,
			Detail: fmt.Sprintf("a transaction needs at least 2 entry lines, got %d", len(drafts)),
		}
	}

	debitTotal, creditTotal := decimal.Zero, decimal.Zero

	for i, d := range drafts {
		if !d.Type.Valid() {
			return &ValidationError{
				Code:   CodeBadEntryType,
				Detail: fmt.Sprintf("line %d: entry type must be DEBIT or CREDIT, got %q", i, d.Type),
			}
		}

		if !d.Amount.IsPositive() {
			return &ValidationError{
				Code:   CodeBadAmount,
				Detail: fmt.Sprintf("line %d: amount must be greater than zero, got %s", i, d.Amount),
			}
		}

		if !d.Amount.Mul(hundred).Equal(d.Amount.Mul(hundred).Floor()) {
			return &ValidationError{
				Code:   CodeBadAmount,
				Detail: fmt.Sprintf("line %d: amount %s has more than 2 decimal places", i, d.Amount),
			}
		}

		acct, ok := accounts[d.AccountID]
		if !ok {
			return &ValidationError{
				Code:   CodeBadReference,
				Detail: fmt.Sprintf("line %d: unknown account %s", i, d.AccountID),
			}
		}

		if acct.OrganizationID != orgID {
			return &ValidationError{
				Code:   CodeBadReference,
				Detail: fmt.Sprintf("line %d: account %s belongs to another organization", i, acct.Code),
			}
		}

		if !acct.IsActive {
			return &ValidationError{
				Code:   CodeBadReference,
				Detail: fmt.Sprintf("line %d: account %s is inactive", i, acct.Code),
			}
		}

		if acct.Currency != "" && currency != "" && acct.Currency != currency {
			return &ValidationError{
				Code:   CodeCurrencyMismatch,
				Detail: fmt.Sprintf("line %d: account %s is denominated in %s, transaction in %s", i, acct.Code, acct.Currency, currency),
			}
		}

		switch d.Type {
		case EntryDebit:
			debitTotal = debitTotal.Add(d.Amount)
		case EntryCredit:
			creditTotal = creditTotal.Add(d.Amount)
		}
	}

	if !debitTotal.Equal(creditTotal) {
		return &ValidationError{
			Code:   CodeUnbalanced,
			Detail: fmt.Sprintf("debits (%s) != credits (%s)", debitTotal.StringFixed(2), creditTotal.StringFixed(2)),
		}
	}

	if !debitTotal.IsPositive() {
		return &ValidationError{
			Code:   CodeBadAmount,
			Detail: "transaction total must be greater than zero",
		}
	}

	return nil
}
