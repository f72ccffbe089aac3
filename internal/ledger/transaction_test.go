package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/oakbooks/oakbooks/internal/ledger"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	statuses := []ledger.Status{
		ledger.StatusDraft,
		ledger.StatusPosted,
		ledger.StatusVoided,
		ledger.StatusReversed,
		ledger.StatusCancelled,
	}

	allowed := map[ledger.Status]map[ledger.Status]bool{
		ledger.StatusDraft:  {ledger.StatusPosted: true, ledger.StatusCancelled: true},
		ledger.StatusPosted: {ledger.StatusVoided: true, ledger.StatusReversed: true},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[from][to]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestEntryType_Opposite(t *testing.T) {
	assert.Equal(t, ledger.EntryCredit, ledger.EntryDebit.Opposite())
	assert.Equal(t, ledger.EntryDebit, ledger.EntryCredit.Opposite())
}

func TestTransaction_Balanced(t *testing.T) {
	tx := &ledger.Transaction{
		Entries: []*ledger.Entry{
			{Type: ledger.EntryDebit, Amount: decimal.RequireFromString("100.00")},
			{Type: ledger.EntryCredit, Amount: decimal.RequireFromString("60.00")},
			{Type: ledger.EntryCredit, Amount: decimal.RequireFromString("40.00")},
		},
	}

	debit, credit := tx.Totals()
	assert.True(t, debit.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, credit.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, tx.Balanced())

	tx.Entries[2].Amount = decimal.RequireFromString("39.99")
	assert.False(t, tx.Balanced())
}
