package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakbooks/oakbooks/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectTransactionColumns = `
	t.id, t.organization_id, t.branch_id, t.type, t.status, t.transaction_date,
	t.description, t.reference, t.currency, t.created_by, t.approved_by,
	t.metadata, t.created_at, t.updated_at
`

func scanTransaction(s scanner) (*ledger.Transaction, error) {
	var tx ledger.Transaction

	var typeStr, statusStr string

	var reference sql.NullString

	var metadata []byte

	if err := s.Scan(
		&tx.ID, &tx.OrganizationID, &tx.BranchID, &typeStr, &statusStr, &tx.Date,
		&tx.Description, &reference, &tx.Currency, &tx.CreatedBy, &tx.ApprovedBy,
		&metadata, &tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}

	tx.Type = ledger.Type(typeStr)
	tx.Status = ledger.Status(statusStr)
	tx.Reference = reference.String

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}

	return &tx, nil
}

const selectEntryColumns = `
	e.id, e.transaction_id, e.account_id, e.entry_type, e.amount, e.currency, e.created_at
`

func scanEntry(s scanner) (*ledger.Entry, error) {
	var entry ledger.Entry

	var typeStr string

	if err := s.Scan(
		&entry.ID, &entry.TransactionID, &entry.AccountID, &typeStr,
		&entry.Amount, &entry.Currency, &entry.CreatedAt,
	); err != nil {
		return nil, err
	}

	entry.Type = ledger.EntryType(typeStr)

	return &entry, nil
}

func (s *Store) GetTransaction(ctx context.Context, orgID, id uuid.UUID) (*ledger.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM transactions t
		WHERE t.organization_id = $1 AND t.id = $2`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, orgID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	entries, err := s.entriesFor(ctx, id)
	if err != nil {
		return nil, err
	}

	tx.Entries = entries

	return tx, nil
}

func (s *Store) entriesFor(ctx context.Context, txID uuid.UUID) ([]*ledger.Entry, error) {
	query := `SELECT ` + selectEntryColumns + `
		FROM ledger_entries e
		WHERE e.transaction_id = $1
		ORDER BY e.created_at ASC, e.id ASC`

	rows, err := s.db.QueryContext(ctx, query, txID)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entry rows: %w", err)
	}

	return entries, nil
}

func (s *Store) ListTransactions(ctx context.Context, orgID uuid.UUID, filter ledger.ListFilter) ([]*ledger.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + `
		FROM transactions t
		WHERE t.organization_id = $1`

	args := []any{orgID}

	argIdx := 2

	if filter.Status != nil {
		query += fmt.Sprintf(" AND t.status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.Type != nil {
		query += fmt.Sprintf(" AND t.type = $%d", argIdx)

		args = append(args, *filter.Type)
		argIdx++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND t.transaction_date >= $%d", argIdx)

		args = append(args, *filter.StartDate)
		argIdx++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND t.transaction_date <= $%d", argIdx)

		args = append(args, *filter.EndDate)
		argIdx++
	}

	query += " ORDER BY t.transaction_date ASC, t.created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*ledger.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", err)
	}

	return txs, nil
}

func (s *Store) ListAccountEntries(ctx context.Context, orgID, accountID uuid.UUID, from, to *time.Time) ([]*ledger.Entry, error) {
	query := `SELECT ` + selectEntryColumns + `
		FROM ledger_entries e
		JOIN transactions t ON e.transaction_id = t.id
		WHERE t.organization_id = $1 AND e.account_id = $2
		  AND t.status IN ('POSTED', 'REVERSED')`

	args := []any{orgID, accountID}

	argIdx := 3

	if from != nil {
		query += fmt.Sprintf(" AND t.transaction_date >= $%d", argIdx)

		args = append(args, *from)
		argIdx++
	}

	if to != nil {
		query += fmt.Sprintf(" AND t.transaction_date <= $%d", argIdx)

		args = append(args, *to)
		argIdx++
	}

	query += " ORDER BY t.transaction_date ASC, e.created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing account entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entry rows: %w", err)
	}

	return entries, nil
}

type postingTx struct {
	tx *sql.Tx
}

// Begin opens the atomic unit of work a posting, reversal or status change
// runs in. Everything inside commits together or rolls back together.
func (s *Store) Begin(ctx context.Context) (ledger.PostingTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning posting tx: %w", err)
	}

	return &postingTx{tx: dbTx}, nil
}

func (p *postingTx) Commit() error   { return p.tx.Commit() }
func (p *postingTx) Rollback() error { return p.tx.Rollback() }

func (p *postingTx) CreateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	query := `
		INSERT INTO transactions (organization_id, branch_id, type, status, transaction_date, description, reference, currency, created_by, approved_by, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err = p.tx.QueryRowContext(ctx, query,
		tx.OrganizationID,
		tx.BranchID,
		tx.Type,
		tx.Status,
		tx.Date,
		tx.Description,
		tx.Reference,
		tx.Currency,
		tx.CreatedBy,
		tx.ApprovedBy,
		metadata,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}

	return nil
}

func (p *postingTx) CreateEntries(ctx context.Context, entries []*ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (transaction_id, account_id, entry_type, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`

	for _, entry := range entries {
		err := p.tx.QueryRowContext(ctx, query,
			entry.TransactionID,
			entry.AccountID,
			entry.Type,
			entry.Amount,
			entry.Currency,
		).Scan(&entry.ID, &entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("creating entry: %w", err)
		}
	}

	return nil
}

// ApplyBalanceChange increments the balance in a single UPDATE so concurrent
// postings against the same account never lose updates.
func (p *postingTx) ApplyBalanceChange(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
	`

	res, err := p.tx.ExecContext(ctx, query, delta, accountID)
	if err != nil {
		return fmt.Errorf("applying balance change: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("applying balance change: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("applying balance change: account %s not found", accountID)
	}

	return nil
}

// UpdateStatus flips status guarded on the expected current value; zero rows
// means another caller won the race and the transition is rejected.
func (p *postingTx) UpdateStatus(ctx context.Context, id uuid.UUID, from, to ledger.Status, reference string, meta ledger.Metadata) error {
	metadata, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	query := `
		UPDATE transactions
		SET status = $1, reference = COALESCE(NULLIF($2, ''), reference), metadata = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`

	res, err := p.tx.ExecContext(ctx, query, to, reference, metadata, id, from)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	if affected == 0 {
		return ledger.ErrStateConflict
	}

	return nil
}
