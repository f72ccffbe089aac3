package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/oakbooks/oakbooks/internal/account"
	"github.com/oakbooks/oakbooks/internal/identity"
	"github.com/oakbooks/oakbooks/internal/ledger"
	"github.com/oakbooks/oakbooks/internal/sequence"
)

// decimalEq matches a decimal.Decimal by value; DeepEqual is unreliable for
// decimals because equal values can carry different exponents.
type decimalEq struct {
	want decimal.Decimal
}

func (m decimalEq) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalEq) String() string {
	return "is decimal " + m.want.String()
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	repo     *ledger.MockRepository
	ptx      *ledger.MockPostingTx
	seq      *ledger.MockAllocator
	catalog  *ledger.MockCatalog
	svc      *ledger.Service
	actor    identity.Actor
	cash     *account.Account
	sales    *account.Account
	accounts map[uuid.UUID]*account.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)

	f := &fixture{
		repo:    ledger.NewMockRepository(ctrl),
		ptx:     ledger.NewMockPostingTx(ctrl),
		seq:     ledger.NewMockAllocator(ctrl),
		catalog: ledger.NewMockCatalog(ctrl),
	}

	f.svc = ledger.NewService(f.repo, f.seq, f.catalog)

	orgID := uuid.New()
	f.actor = identity.Actor{
		UserID:                 uuid.New(),
		OrganizationID:         orgID,
		CanPostTransactions:    true,
		CanReverseTransactions: true,
	}

	f.cash = &account.Account{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Code:           "1100",
		Type:           account.TypeAsset,
		Currency:       "EUR",
		IsActive:       true,
	}
	f.sales = &account.Account{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Code:           "4000",
		Type:           account.TypeRevenue,
		Currency:       "EUR",
		IsActive:       true,
	}
	f.accounts = map[uuid.UUID]*account.Account{
		f.cash.ID:  f.cash,
		f.sales.ID: f.sales,
	}

	return f
}

func (f *fixture) draft() ledger.Draft {
	return ledger.Draft{
		Type:        ledger.TypeJournal,
		Date:        time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Description: "March sales",
		Currency:    "EUR",
		Entries: []ledger.EntryDraft{
			{AccountID: f.cash.ID, Type: ledger.EntryDebit, Amount: amount("100.00")},
			{AccountID: f.sales.ID, Type: ledger.EntryCredit, Amount: amount("100.00")},
		},
	}
}

func TestService_Post(t *testing.T) {
	f := newFixture(t)

	f.catalog.EXPECT().
		GetByIDs(gomock.Any(), f.actor.OrganizationID, gomock.Any()).
		Return(f.accounts, nil)

	f.seq.EXPECT().
		Allocate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, scope sequence.Scope) (string, error) {
			assert.Equal(t, f.actor.OrganizationID, scope.OrganizationID)
			assert.Equal(t, "JOURNAL", scope.DocumentType)
			return "JRN-0001", nil
		})

	f.repo.EXPECT().Begin(gomock.Any()).Return(f.ptx, nil)

	f.ptx.EXPECT().
		CreateTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tx *ledger.Transaction) error {
			assert.Equal(t, ledger.StatusPosted, tx.Status)
			assert.Equal(t, "JRN-0001", tx.Reference)
			assert.True(t, tx.Metadata.IsBalanced)
			assert.Equal(t, 1, tx.Metadata.AuditTrail.Version)
			assert.Equal(t, f.actor.UserID, tx.Metadata.AuditTrail.LastModifiedBy)

			tx.ID = uuid.New()
			tx.CreatedAt = time.Now()

			return nil
		})

	f.ptx.EXPECT().
		CreateEntries(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, entries []*ledger.Entry) error {
			require.Len(t, entries, 2)

			for _, e := range entries {
				assert.NotEqual(t, uuid.Nil, e.TransactionID)
				assert.Equal(t, "EUR", e.Currency)
			}

			return nil
		})

	// Both balances grow toward their normal side by 100.00.
	f.ptx.EXPECT().
		ApplyBalanceChange(gomock.Any(), f.cash.ID, decimalEq{amount("100.00")}).
		Return(nil)
	f.ptx.EXPECT().
		ApplyBalanceChange(gomock.Any(), f.sales.ID, decimalEq{amount("100.00")}).
		Return(nil)

	f.ptx.EXPECT().Commit().Return(nil)
	f.ptx.EXPECT().Rollback().Return(nil)

	tx, err := f.svc.Post(context.Background(), f.actor, f.draft())
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, tx.Status)
	assert.Equal(t, "JRN-0001", tx.Reference)
	assert.Len(t, tx.Entries, 2)
	assert.True(t, tx.Balanced())
}

func TestService_Post_Unbalanced(t *testing.T) {
	f := newFixture(t)

	f.catalog.EXPECT().
		GetByIDs(gomock.Any(), f.actor.OrganizationID, gomock.Any()).
		Return(f.accounts, nil)

	draft := f.draft()
	draft.Entries[1].Amount = amount("90.00")

	tx, err := f.svc.Post(context.Background(), f.actor, draft)

	var validationErr *ledger.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, ledger.CodeUnbalanced, validationErr.Code)
	assert.Nil(t, tx)
}

func TestService_Post_SequenceUnavailable(t *testing.T) {
	f := newFixture(t)

	f.catalog.EXPECT().
		GetByIDs(gomock.Any(), f.actor.OrganizationID, gomock.Any()).
		Return(f.accounts, nil)

	f.seq.EXPECT().
		Allocate(gomock.Any(), gomock.Any()).
		Return("", &sequence.UnavailableError{DocumentType: "JOURNAL", Err: errors.New("connection refused")})

	tx, err := f.svc.Post(context.Background(), f.actor, f.draft())

	var unavailable *sequence.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Nil(t, tx)
}

func TestService_Post_RollsBackOnEntryFailure(t *testing.T) {
	f := newFixture(t)

	f.catalog.EXPECT().
		GetByIDs(gomock.Any(), f.actor.OrganizationID, gomock.Any()).
		Return(f.accounts, nil)
	f.seq.EXPECT().Allocate(gomock.Any(), gomock.Any()).Return("JRN-0002", nil)
	f.repo.EXPECT().Begin(gomock.Any()).Return(f.ptx, nil)

	f.ptx.EXPECT().
		CreateTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tx *ledger.Transaction) error {
			tx.ID = uuid.New()
			return nil
		})
	f.ptx.EXPECT().
		CreateEntries(gomock.Any(), gomock.Any()).
		Return(errors.New("connection reset"))

	// No commit, no balance updates: the unit of work rolls back whole.
	f.ptx.EXPECT().Rollback().Return(nil)

	tx, err := f.svc.Post(context.Background(), f.actor, f.draft())
	require.Error(t, err)
	assert.Nil(t, tx)
}

func TestService_SaveDraft(t *testing.T) {
	f := newFixture(t)

	f.repo.EXPECT().Begin(gomock.Any()).Return(f.ptx, nil)

	f.ptx.EXPECT().
		CreateTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tx *ledger.Transaction) error {
			assert.Equal(t, ledger.StatusDraft, tx.Status)
			assert.Empty(t, tx.Reference)

			tx.ID = uuid.New()

			return nil
		})
	f.ptx.EXPECT().CreateEntries(gomock.Any(), gomock.Any()).Return(nil)
	f.ptx.EXPECT().Commit().Return(nil)
	f.ptx.EXPECT().Rollback().Return(nil)

	// Drafts may be unbalanced; only the line shape is checked.
	draft := f.draft()
	draft.Entries[1].Amount = amount("90.00")

	tx, err := f.svc.SaveDraft(context.Background(), f.actor, draft)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDraft, tx.Status)
}

func (f *fixture) postedTransaction() *ledger.Transaction {
	txID := uuid.New()

	return &ledger.Transaction{
		ID:             txID,
		OrganizationID: f.actor.OrganizationID,
		Type:           ledger.TypeInvoice,
		Status:         ledger.StatusPosted,
		Date:           time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Description:    "March invoice",
		Reference:      "INV-2025-03-0007",
		Currency:       "EUR",
		CreatedBy:      f.actor.UserID,
		Metadata: ledger.Metadata{
			IsBalanced: true,
			AuditTrail: ledger.AuditTrail{
				LastModified:   time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
				LastModifiedBy: f.actor.UserID,
				Version:        1,
			},
		},
		Entries: []*ledger.Entry{
			{ID: uuid.New(), TransactionID: txID, AccountID: f.cash.ID, Type: ledger.EntryDebit, Amount: amount("100.00"), Currency: "EUR"},
			{ID: uuid.New(), TransactionID: txID, AccountID: f.sales.ID, Type: ledger.EntryCredit, Amount: amount("100.00"), Currency: "EUR"},
		},
	}
}

func TestService_Void(t *testing.T) {
	f := newFixture(t)

	posted := f.postedTransaction()

	f.repo.EXPECT().
		GetTransaction(gomock.Any(), f.actor.OrganizationID, posted.ID).
		Return(posted, nil)
	f.repo.EXPECT().Begin(gomock.Any()).Return(f.ptx, nil)

	f.ptx.EXPECT().
		UpdateStatus(gomock.Any(), posted.ID, ledger.StatusPosted, ledger.StatusVoided, "", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _, _ ledger.Status, _ string, meta ledger.Metadata) error {
			assert.Equal(t, "duplicate entry", meta.VoidReason)
			assert.Equal(t, 2, meta.AuditTrail.Version)
			return nil
		})
	f.ptx.EXPECT().Commit().Return(nil)
	f.ptx.EXPECT().Rollback().Return(nil)

	tx, err := f.svc.Void(context.Background(), f.actor, posted.ID, "duplicate entry")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusVoided, tx.Status)
	assert.Equal(t, "duplicate entry", tx.Metadata.VoidReason)
}

func TestService_Void_AlreadyVoided(t *testing.T) {
	f := newFixture(t)

	voided := f.postedTransaction()
	voided.Status = ledger.StatusVoided

	f.repo.EXPECT().
		GetTransaction(gomock.Any(), f.actor.OrganizationID, voided.ID).
		Return(voided, nil)

	tx, err := f.svc.Void(context.Background(), f.actor, voided.ID, "again")

	var stateErr *ledger.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, ledger.StatusVoided, stateErr.Status)
	assert.Equal(t, ledger.StatusVoided, stateErr.Attempted)
	assert.Nil(t, tx)
}

func TestService_Void_LostRace(t *testing.T) {
	f := newFixture(t)

	posted := f.postedTransaction()

	f.repo.EXPECT().
		GetTransaction(gomock.Any(), f.actor.OrganizationID, posted.ID).
		Return(posted, nil)
	f.repo.EXPECT().Begin(gomock.Any()).Return(f.ptx, nil)

	f.ptx.EXPECT().
		UpdateStatus(gomock.Any(), posted.ID, ledger.StatusPosted, ledger.StatusVoided, "", gomock.Any()).
		Return(ledger.ErrStateConflict)
	f.ptx.EXPECT().Rollback().Return(nil)

	_, err := f.svc.Void(context.Background(), f.actor, posted.ID, "race")

	var stateErr *ledger.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestService_Reverse(t *testing.T) {
	f := newFixture(t)

	orig := f.postedTransaction()

	// Snapshot the original lines; nothing about them may change.
	before := make([]ledger.Entry, len(orig.Entries))
	for i, e := range orig.Entries {
		before[i] = *e
	}

	f.repo.EXPECT().
		GetTransaction(gomock.Any(), f.actor.OrganizationID, orig.ID).
		Return(orig, nil)
	f.catalog.EXPECT().
		GetByIDs(gomock.Any(), f.actor.OrganizationID, gomock.Any()).
		Return(f.accounts, nil)
	f.seq.EXPECT().Allocate(gomock.Any(), gomock.Any()).Return("INV-2025-03-0008", nil)
	f.repo.EXPECT().Begin(gomock.Any()).Return(f.ptx, nil)

	var revID uuid.UUID

	f.ptx.EXPECT().
		CreateTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tx *ledger.Transaction) error {
			assert.Equal(t, ledger.StatusPosted, tx.Status)
			require.NotNil(t, tx.Metadata.Reverses)
			assert.Equal(t, orig.ID, *tx.Metadata.Reverses)

			tx.ID = uuid.New()
			revID = tx.ID

			return nil
		})

	f.ptx.EXPECT().
		CreateEntries(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, entries []*ledger.Entry) error {
			require.Len(t, entries, 2)
			assert.Equal(t, f.cash.ID, entries[0].AccountID)
			assert.Equal(t, ledger.EntryCredit, entries[0].Type)
			assert.Equal(t, f.sales.ID, entries[1].AccountID)
			assert.Equal(t, ledger.EntryDebit, entries[1].Type)
			assert.True(t, entries[0].Amount.Equal(amount("100.00")))
			assert.True(t, entries[1].Amount.Equal(amount("100.00")))
			return nil
		})

	// The reversal pulls both balances back by 100.00.
	f.ptx.EXPECT().
		ApplyBalanceChange(gomock.Any(), f.cash.ID, decimalEq{amount("-100.00")}).
		Return(nil)
	f.ptx.EXPECT().
		ApplyBalanceChange(gomock.Any(), f.sales.ID, decimalEq{amount("-100.00")}).
		Return(nil)

	f.ptx.EXPECT().
		UpdateStatus(gomock.Any(), orig.ID, ledger.StatusPosted, ledger.StatusReversed, "", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _, _ ledger.Status, _ string, meta ledger.Metadata) error {
			require.NotNil(t, meta.ReversedBy)
			assert.Equal(t, revID, *meta.ReversedBy)
			assert.Equal(t, "wrong customer", meta.ReversalReason)
			assert.Equal(t, 2, meta.AuditTrail.Version)
			return nil
		})

	f.ptx.EXPECT().Commit().Return(nil)
	f.ptx.EXPECT().Rollback().Return(nil)

	gotOrig, gotRev, err := f.svc.Reverse(context.Background(), f.actor, orig.ID, "wrong customer")
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusReversed, gotOrig.Status)
	assert.Equal(t, ledger.StatusPosted, gotRev.Status)
	assert.Equal(t, "INV-2025-03-0008", gotRev.Reference)
	assert.True(t, gotRev.Balanced())

	// Append-only: the original entry rows are untouched.
	require.Len(t, gotOrig.Entries, len(before))
	for i, e := range gotOrig.Entries {
		assert.Equal(t, before[i], *e)
	}
}

func TestService_Reverse_NotPosted(t *testing.T) {
	f := newFixture(t)

	draft := f.postedTransaction()
	draft.Status = ledger.StatusDraft

	f.repo.EXPECT().
		GetTransaction(gomock.Any(), f.actor.OrganizationID, draft.ID).
		Return(draft, nil)

	_, _, err := f.svc.Reverse(context.Background(), f.actor, draft.ID, "oops")

	var stateErr *ledger.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, ledger.StatusReversed, stateErr.Attempted)
}

func TestService_PostDraft(t *testing.T) {
	f := newFixture(t)

	draft := f.postedTransaction()
	draft.Status = ledger.StatusDraft
	draft.Reference = ""

	f.repo.EXPECT().
		GetTransaction(gomock.Any(), f.actor.OrganizationID, draft.ID).
		Return(draft, nil)
	f.catalog.EXPECT().
		GetByIDs(gomock.Any(), f.actor.OrganizationID, gomock.Any()).
		Return(f.accounts, nil)
	f.seq.EXPECT().Allocate(gomock.Any(), gomock.Any()).Return("INV-2025-03-0009", nil)
	f.repo.EXPECT().Begin(gomock.Any()).Return(f.ptx, nil)

	f.ptx.EXPECT().
		UpdateStatus(gomock.Any(), draft.ID, ledger.StatusDraft, ledger.StatusPosted, "INV-2025-03-0009", gomock.Any()).
		Return(nil)
	f.ptx.EXPECT().
		ApplyBalanceChange(gomock.Any(), f.cash.ID, decimalEq{amount("100.00")}).
		Return(nil)
	f.ptx.EXPECT().
		ApplyBalanceChange(gomock.Any(), f.sales.ID, decimalEq{amount("100.00")}).
		Return(nil)
	f.ptx.EXPECT().Commit().Return(nil)
	f.ptx.EXPECT().Rollback().Return(nil)

	tx, err := f.svc.PostDraft(context.Background(), f.actor, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, tx.Status)
	assert.Equal(t, "INV-2025-03-0009", tx.Reference)
}

func TestService_CancelDraft(t *testing.T) {
	f := newFixture(t)

	draft := f.postedTransaction()
	draft.Status = ledger.StatusDraft

	f.repo.EXPECT().
		GetTransaction(gomock.Any(), f.actor.OrganizationID, draft.ID).
		Return(draft, nil)
	f.repo.EXPECT().Begin(gomock.Any()).Return(f.ptx, nil)

	f.ptx.EXPECT().
		UpdateStatus(gomock.Any(), draft.ID, ledger.StatusDraft, ledger.StatusCancelled, "", gomock.Any()).
		Return(nil)
	f.ptx.EXPECT().Commit().Return(nil)
	f.ptx.EXPECT().Rollback().Return(nil)

	tx, err := f.svc.CancelDraft(context.Background(), f.actor, draft.ID, "not needed")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, tx.Status)
	assert.Equal(t, "not needed", tx.Metadata.CancelReason)
}

func TestService_CancelDraft_Posted(t *testing.T) {
	f := newFixture(t)

	posted := f.postedTransaction()

	f.repo.EXPECT().
		GetTransaction(gomock.Any(), f.actor.OrganizationID, posted.ID).
		Return(posted, nil)

	_, err := f.svc.CancelDraft(context.Background(), f.actor, posted.ID, "too late")

	var stateErr *ledger.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestService_AccountActivity(t *testing.T) {
	f := newFixture(t)

	f.catalog.EXPECT().
		GetByIDs(gomock.Any(), f.actor.OrganizationID, []uuid.UUID{f.sales.ID}).
		Return(f.accounts, nil)

	entries := []*ledger.Entry{
		{ID: uuid.New(), AccountID: f.sales.ID, Type: ledger.EntryCredit, Amount: amount("100.00"), Currency: "EUR"},
		{ID: uuid.New(), AccountID: f.sales.ID, Type: ledger.EntryDebit, Amount: amount("30.00"), Currency: "EUR"},
	}

	f.repo.EXPECT().
		ListAccountEntries(gomock.Any(), f.actor.OrganizationID, f.sales.ID, nil, nil).
		Return(entries, nil)

	activity, err := f.svc.AccountActivity(context.Background(), f.actor, f.sales.ID, nil, nil)
	require.NoError(t, err)

	assert.True(t, activity.DebitTotal.Equal(amount("30.00")))
	assert.True(t, activity.CreditTotal.Equal(amount("100.00")))
	// Revenue is credit-normal, so net movement is credits minus debits.
	assert.True(t, activity.Net.Equal(amount("70.00")))
	assert.Len(t, activity.Entries, 2)
}

func TestService_Get_NotFound(t *testing.T) {
	f := newFixture(t)

	id := uuid.New()

	f.repo.EXPECT().
		GetTransaction(gomock.Any(), f.actor.OrganizationID, id).
		Return(nil, ledger.ErrNotFound)

	_, err := f.svc.Get(context.Background(), f.actor, id)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
