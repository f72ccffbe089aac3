package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakbooks/oakbooks/internal/account"
	"github.com/oakbooks/oakbooks/internal/identity"
	"github.com/oakbooks/oakbooks/internal/sequence"
)

//go:generate mockgen -source=service.go -destination=service_mock.go -package=ledger
type Repository interface {
	GetTransaction(ctx context.Context, orgID, id uuid.UUID) (*Transaction, error)
	ListTransactions(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]*Transaction, error)
	ListAccountEntries(ctx context.Context, orgID, accountID uuid.UUID, from, to *time.Time) ([]*Entry, error)

	Begin(ctx context.Context) (PostingTx, error)
}

// PostingTx is one atomic unit of work. Everything called between Begin and
// Commit becomes visible together or not at all; a consumed sequence number
// whose posting rolls back is left as an auditable gap, never re-issued.
type PostingTx interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	CreateEntries(ctx context.Context, entries []*Entry) error
	// ApplyBalanceChange adds delta to the account balance with a single
	// SQL-level increment so concurrent postings never lose updates.
	ApplyBalanceChange(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error
	// UpdateStatus flips status guarded on the expected current status and
	// returns ErrStateConflict when the guard matches no row. A non-empty
	// reference is written alongside; an empty one leaves it untouched.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, reference string, meta Metadata) error
	Commit() error
	Rollback() error
}

// Allocator issues document reference numbers (see internal/sequence).
type Allocator interface {
	Allocate(ctx context.Context, scope sequence.Scope) (string, error)
}

// Catalog is the read-only chart-of-accounts lookup the validator runs
// against. Provisioning the catalog itself happens elsewhere.
type Catalog interface {
	GetByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*account.Account, error)
}

type Service struct {
	repo     Repository
	seq      Allocator
	accounts Catalog
}

func NewService(repo Repository, seq Allocator, accounts Catalog) *Service {
	return &Service{repo: repo, seq: seq, accounts: accounts}
}

// Draft is a proposed transaction before validation and posting.
type Draft struct {
	Type            Type
	Date            time.Time
	Description     string
	Currency        string
	BranchID        *uuid.UUID
	ApprovedBy      *uuid.UUID
	ForeignAmount   *decimal.Decimal
	ForeignCurrency string
	BaseAmount      *decimal.Decimal
	ComplianceFlags []string
	Entries         []EntryDraft
}

type ListFilter struct {
	Status    *Status
	Type      *Type
	StartDate *time.Time
	EndDate   *time.Time
}

// Post validates the draft, allocates its reference number and commits the
// transaction, its entry lines and the account balance effects as one atomic
// unit. On any failure nothing is persisted; only the consumed sequence
// number may be gone, which is an accepted trade-off.
func (s *Service) Post(ctx context.Context, actor identity.Actor, draft Draft) (*Transaction, error) {
	if !draft.Type.Valid() {
		return nil, &ValidationError{Code: CodeBadType, Detail: fmt.Sprintf("unknown transaction type %q", draft.Type)}
	}

	accounts, err := s.fetchAccounts(ctx, actor.OrganizationID, draft.Entries)
	if err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}

	if err := ValidateEntries(draft.Entries, draft.Currency, actor.OrganizationID, accounts); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	date := draft.Date
	if date.IsZero() {
		date = now
	}

	reference, err := s.seq.Allocate(ctx, sequence.Scope{
		OrganizationID: actor.OrganizationID,
		BranchID:       draft.BranchID,
		DocumentType:   string(draft.Type),
		At:             date,
	})
	if err != nil {
		return nil, err
	}

	tx := newTransaction(actor, draft, StatusPosted, reference, now)
	tx.Date = date
	tx.Metadata.IsBalanced = true

	ptx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin posting: %w", err)
	}
	defer ptx.Rollback()

	if err := s.writePosting(ctx, ptx, tx, draft.Entries, accounts); err != nil {
		return nil, err
	}

	if err := ptx.Commit(); err != nil {
		return nil, fmt.Errorf("commit posting: %w", err)
	}

	return tx, nil
}

// SaveDraft persists a transaction and its lines with status DRAFT. Drafts
// get no reference number and have no balance effect; only the line shape is
// checked so an unbalanced draft can be saved and fixed later.
func (s *Service) SaveDraft(ctx context.Context, actor identity.Actor, draft Draft) (*Transaction, error) {
	if !draft.Type.Valid() {
		return nil, &ValidationError{Code: CodeBadType, Detail: fmt.Sprintf("unknown transaction type %q", draft.Type)}
	}

	for i, d := range draft.Entries {
		if !d.Type.Valid() {
			return nil, &ValidationError{
				Code:   CodeBadEntryType,
				Detail: fmt.Sprintf("line %d: entry type must be DEBIT or CREDIT, got %q", i, d.Type),
			}
		}

		if !d.Amount.IsPositive() {
			return nil, &ValidationError{
				Code:   CodeBadAmount,
				Detail: fmt.Sprintf("line %d: amount must be greater than zero, got %s", i, d.Amount),
			}
		}
	}

	now := time.Now().UTC()

	tx := newTransaction(actor, draft, StatusDraft, "", now)
	if tx.Date.IsZero() {
		tx.Date = now
	}

	ptx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin draft: %w", err)
	}
	defer ptx.Rollback()

	if err := ptx.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("creating draft: %w", err)
	}

	tx.Entries = buildEntries(tx, draft.Entries)
	if err := ptx.CreateEntries(ctx, tx.Entries); err != nil {
		return nil, fmt.Errorf("creating draft entries: %w", err)
	}

	if err := ptx.Commit(); err != nil {
		return nil, fmt.Errorf("commit draft: %w", err)
	}

	return tx, nil
}

// PostDraft runs a previously saved draft through full validation, assigns
// its reference and flips it to POSTED, applying balance effects atomically.
func (s *Service) PostDraft(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}

	if !tx.Status.CanTransitionTo(StatusPosted) {
		return nil, &InvalidStateError{ID: id, Status: tx.Status, Attempted: StatusPosted}
	}

	drafts := make([]EntryDraft, len(tx.Entries))
	for i, e := range tx.Entries {
		drafts[i] = EntryDraft{AccountID: e.AccountID, Type: e.Type, Amount: e.Amount}
	}

	accounts, err := s.fetchAccounts(ctx, actor.OrganizationID, drafts)
	if err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}

	if err := ValidateEntries(drafts, tx.Currency, actor.OrganizationID, accounts); err != nil {
		return nil, err
	}

	reference, err := s.seq.Allocate(ctx, sequence.Scope{
		OrganizationID: actor.OrganizationID,
		BranchID:       tx.BranchID,
		DocumentType:   string(tx.Type),
		At:             tx.Date,
	})
	if err != nil {
		return nil, err
	}

	meta := tx.Metadata
	meta.IsBalanced = true
	meta.AuditTrail = nextAudit(meta.AuditTrail, actor, time.Now().UTC())

	ptx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin posting: %w", err)
	}
	defer ptx.Rollback()

	if err := s.transition(ctx, ptx, tx, StatusDraft, StatusPosted, reference, meta); err != nil {
		return nil, err
	}

	for _, change := range balanceChanges(tx.Entries, accounts) {
		if err := ptx.ApplyBalanceChange(ctx, change.AccountID, change.Delta); err != nil {
			return nil, fmt.Errorf("applying balance change: %w", err)
		}
	}

	if err := ptx.Commit(); err != nil {
		return nil, fmt.Errorf("commit posting: %w", err)
	}

	tx.Status = StatusPosted
	tx.Reference = reference
	tx.Metadata = meta

	return tx, nil
}

// CancelDraft moves a draft to the terminal CANCELLED state.
func (s *Service) CancelDraft(ctx context.Context, actor identity.Actor, id uuid.UUID, reason string) (*Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}

	if !tx.Status.CanTransitionTo(StatusCancelled) {
		return nil, &InvalidStateError{ID: id, Status: tx.Status, Attempted: StatusCancelled}
	}

	meta := tx.Metadata
	meta.CancelReason = reason
	meta.AuditTrail = nextAudit(meta.AuditTrail, actor, time.Now().UTC())

	if err := s.updateStatus(ctx, tx, StatusDraft, StatusCancelled, meta); err != nil {
		return nil, err
	}

	return tx, nil
}

// Void moves a posted transaction to the terminal VOIDED state. Balances are
// not touched: historical movement is never silently erased. A compensating
// entry requires Reverse.
func (s *Service) Void(ctx context.Context, actor identity.Actor, id uuid.UUID, reason string) (*Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}

	if !tx.Status.CanTransitionTo(StatusVoided) {
		return nil, &InvalidStateError{ID: id, Status: tx.Status, Attempted: StatusVoided}
	}

	meta := tx.Metadata
	meta.VoidReason = reason
	meta.AuditTrail = nextAudit(meta.AuditTrail, actor, time.Now().UTC())

	if err := s.updateStatus(ctx, tx, StatusPosted, StatusVoided, meta); err != nil {
		return nil, err
	}

	return tx, nil
}

// Reverse posts a new transaction mirroring the original with every line's
// side swapped, then marks the original REVERSED and cross-links the two.
// Both writes happen in one atomic unit; the original's entry rows are never
// touched.
func (s *Service) Reverse(ctx context.Context, actor identity.Actor, id uuid.UUID, reason string) (original, reversal *Transaction, err error) {
	orig, err := s.repo.GetTransaction(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, nil, err
	}

	if !orig.Status.CanTransitionTo(StatusReversed) {
		return nil, nil, &InvalidStateError{ID: id, Status: orig.Status, Attempted: StatusReversed}
	}

	drafts := make([]EntryDraft, len(orig.Entries))
	for i, e := range orig.Entries {
		drafts[i] = EntryDraft{AccountID: e.AccountID, Type: e.Type.Opposite(), Amount: e.Amount}
	}

	accounts, err := s.fetchAccounts(ctx, actor.OrganizationID, drafts)
	if err != nil {
		return nil, nil, fmt.Errorf("loading accounts: %w", err)
	}

	if err := ValidateEntries(drafts, orig.Currency, actor.OrganizationID, accounts); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()

	reference, err := s.seq.Allocate(ctx, sequence.Scope{
		OrganizationID: actor.OrganizationID,
		BranchID:       orig.BranchID,
		DocumentType:   string(orig.Type),
		At:             now,
	})
	if err != nil {
		return nil, nil, err
	}

	rev := newTransaction(actor, Draft{
		Type:        orig.Type,
		Date:        now,
		Description: fmt.Sprintf("Reversal of %s: %s", orig.Reference, reason),
		Currency:    orig.Currency,
		BranchID:    orig.BranchID,
		Entries:     drafts,
	}, StatusPosted, reference, now)
	rev.Metadata.IsBalanced = true
	rev.Metadata.Reverses = &orig.ID
	rev.Metadata.ReversalReason = reason

	ptx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin reversal: %w", err)
	}
	defer ptx.Rollback()

	if err := s.writePosting(ctx, ptx, rev, drafts, accounts); err != nil {
		return nil, nil, err
	}

	origMeta := orig.Metadata
	origMeta.ReversedBy = &rev.ID
	origMeta.ReversalReason = reason
	origMeta.AuditTrail = nextAudit(origMeta.AuditTrail, actor, now)

	if err := s.transition(ctx, ptx, orig, StatusPosted, StatusReversed, "", origMeta); err != nil {
		return nil, nil, err
	}

	if err := ptx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit reversal: %w", err)
	}

	orig.Status = StatusReversed
	orig.Metadata = origMeta

	return orig, rev, nil
}

// Get returns a transaction with its lines and audit metadata.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, actor.OrganizationID, id)
}

func (s *Service) List(ctx context.Context, actor identity.Actor, filter ListFilter) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, actor.OrganizationID, filter)
}

// Activity is the entry feed for one account over a date range, with totals
// for aging and cash-flow style aggregations. Net is signed toward the
// account's normal balance side.
type Activity struct {
	AccountID   uuid.UUID
	Entries     []*Entry
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
	Net         decimal.Decimal
}

func (s *Service) AccountActivity(ctx context.Context, actor identity.Actor, accountID uuid.UUID, from, to *time.Time) (*Activity, error) {
	accounts, err := s.accounts.GetByIDs(ctx, actor.OrganizationID, []uuid.UUID{accountID})
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}

	acct, ok := accounts[accountID]
	if !ok {
		return nil, account.ErrNotFound
	}

	entries, err := s.repo.ListAccountEntries(ctx, actor.OrganizationID, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing account entries: %w", err)
	}

	activity := &Activity{
		AccountID:   accountID,
		Entries:     entries,
		DebitTotal:  decimal.Zero,
		CreditTotal: decimal.Zero,
	}

	for _, e := range entries {
		switch e.Type {
		case EntryDebit:
			activity.DebitTotal = activity.DebitTotal.Add(e.Amount)
		case EntryCredit:
			activity.CreditTotal = activity.CreditTotal.Add(e.Amount)
		}
	}

	activity.Net = activity.DebitTotal.Sub(activity.CreditTotal)
	if acct.Type.NormalSide() == account.SideCredit {
		activity.Net = activity.Net.Neg()
	}

	return activity, nil
}

// writePosting inserts a POSTED transaction, its entries and the balance
// effects inside an already-open unit of work.
func (s *Service) writePosting(ctx context.Context, ptx PostingTx, tx *Transaction, drafts []EntryDraft, accounts map[uuid.UUID]*account.Account) error {
	if err := ptx.CreateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}

	tx.Entries = buildEntries(tx, drafts)
	if err := ptx.CreateEntries(ctx, tx.Entries); err != nil {
		return fmt.Errorf("creating entries: %w", err)
	}

	for _, change := range balanceChanges(tx.Entries, accounts) {
		if err := ptx.ApplyBalanceChange(ctx, change.AccountID, change.Delta); err != nil {
			return fmt.Errorf("applying balance change: %w", err)
		}
	}

	return nil
}

// transition runs a guarded status update and converts a concurrent-change
// conflict into InvalidStateError for the caller.
func (s *Service) transition(ctx context.Context, ptx PostingTx, tx *Transaction, from, to Status, reference string, meta Metadata) error {
	err := ptx.UpdateStatus(ctx, tx.ID, from, to, reference, meta)
	if err != nil {
		if errors.Is(err, ErrStateConflict) {
			return &InvalidStateError{ID: tx.ID, Status: tx.Status, Attempted: to}
		}

		return fmt.Errorf("updating status: %w", err)
	}

	return nil
}

// updateStatus is transition wrapped in its own unit of work, for the
// single-statement operations (void, cancel).
func (s *Service) updateStatus(ctx context.Context, tx *Transaction, from, to Status, meta Metadata) error {
	ptx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer ptx.Rollback()

	if err := s.transition(ctx, ptx, tx, from, to, "", meta); err != nil {
		return err
	}

	if err := ptx.Commit(); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}

	tx.Status = to
	tx.Metadata = meta

	return nil
}

func (s *Service) fetchAccounts(ctx context.Context, orgID uuid.UUID, drafts []EntryDraft) (map[uuid.UUID]*account.Account, error) {
	seen := make(map[uuid.UUID]struct{}, len(drafts))
	ids := make([]uuid.UUID, 0, len(drafts))

	for _, d := range drafts {
		if _, ok := seen[d.AccountID]; ok {
			continue
		}

		seen[d.AccountID] = struct{}{}
		ids = append(ids, d.AccountID)
	}

	return s.accounts.GetByIDs(ctx, orgID, ids)
}

func newTransaction(actor identity.Actor, draft Draft, status Status, reference string, now time.Time) *Transaction {
	return &Transaction{
		OrganizationID: actor.OrganizationID,
		BranchID:       draft.BranchID,
		Type:           draft.Type,
		Status:         status,
		Date:           draft.Date,
		Description:    draft.Description,
		Reference:      reference,
		Currency:       draft.Currency,
		CreatedBy:      actor.UserID,
		ApprovedBy:     draft.ApprovedBy,
		Metadata: Metadata{
			ForeignAmount:   draft.ForeignAmount,
			ForeignCurrency: draft.ForeignCurrency,
			BaseAmount:      draft.BaseAmount,
			ComplianceFlags: draft.ComplianceFlags,
			AuditTrail: AuditTrail{
				LastModified:   now,
				LastModifiedBy: actor.UserID,
				Version:        1,
			},
		},
	}
}

func buildEntries(tx *Transaction, drafts []EntryDraft) []*Entry {
	entries := make([]*Entry, len(drafts))
	for i, d := range drafts {
		entries[i] = &Entry{
			TransactionID: tx.ID,
			AccountID:     d.AccountID,
			Type:          d.Type,
			Amount:        d.Amount,
			Currency:      tx.Currency,
		}
	}

	return entries
}

func nextAudit(prev AuditTrail, actor identity.Actor, at time.Time) AuditTrail {
	return AuditTrail{
		LastModified:   at,
		LastModifiedBy: actor.UserID,
		Version:        prev.Version + 1,
	}
}

type balanceChange struct {
	AccountID uuid.UUID
	Delta     decimal.Decimal
}

// balanceChanges nets each account's debit-minus-credit effect and signs it
// by the account's normal balance side, in first-appearance order.
func balanceChanges(entries []*Entry, accounts map[uuid.UUID]*account.Account) []balanceChange {
	index := make(map[uuid.UUID]int, len(entries))

	var changes []balanceChange

	for _, e := range entries {
		netDebit := e.Amount
		if e.Type == EntryCredit {
			netDebit = netDebit.Neg()
		}

		i, ok := index[e.AccountID]
		if !ok {
			index[e.AccountID] = len(changes)
			changes = append(changes, balanceChange{AccountID: e.AccountID, Delta: decimal.Zero})
			i = len(changes) - 1
		}

		changes[i].Delta = changes[i].Delta.Add(netDebit)
	}

	for i := range changes {
		acct := accounts[changes[i].AccountID]
		if acct != nil && acct.Type.NormalSide() == account.SideCredit {
			changes[i].Delta = changes[i].Delta.Neg()
		}
	}

	return changes
}
