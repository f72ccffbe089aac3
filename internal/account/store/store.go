package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/oakbooks/oakbooks/internal/account"
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

const selectAccountColumns = `
	a.id, a.organization_id, a.code, a.name, a.type, a.currency,
	a.balance, a.is_active, a.is_system, a.created_at, a.updated_at
`

func scanAccount(s scanner) (*account.Account, error) {
	var acct account.Account

	var typeStr string

	if err := s.Scan(
		&acct.ID, &acct.OrganizationID, &acct.Code, &acct.Name, &typeStr, &acct.Currency,
		&acct.Balance, &acct.IsActive, &acct.IsSystem, &acct.CreatedAt, &acct.UpdatedAt,
	); err != nil {
		return nil, err
	}

	acct.Type = account.Type(typeStr)

	return &acct, nil
}

func (s *Store) CreateAccount(ctx context.Context, acct *account.Account) error {
	query := `
		INSERT INTO accounts (organization_id, code, name, type, currency, balance, is_active, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, NOW(), NOW())
		RETURNING id, balance, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		acct.OrganizationID,
		acct.Code,
		acct.Name,
		acct.Type,
		acct.Currency,
		acct.IsActive,
		acct.IsSystem,
	).Scan(&acct.ID, &acct.Balance, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}

	return nil
}

func (s *Store) GetAccount(ctx context.Context, orgID, id uuid.UUID) (*account.Account, error) {
	query := `SELECT ` + selectAccountColumns + `
		FROM accounts a
		WHERE a.organization_id = $1 AND a.id = $2`

	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, orgID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, account.ErrNotFound
		}

		return nil, fmt.Errorf("getting account: %w", err)
	}

	return acct, nil
}

func (s *Store) GetByCode(ctx context.Context, orgID uuid.UUID, code string) (*account.Account, error) {
	query := `SELECT ` + selectAccountColumns + `
		FROM accounts a
		WHERE a.organization_id = $1 AND a.code = $2`

	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, orgID, code))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, account.ErrNotFound
		}

		return nil, fmt.Errorf("getting account by code: %w", err)
	}

	return acct, nil
}

func (s *Store) GetByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*account.Account, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*account.Account{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, orgID)

	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := `SELECT ` + selectAccountColumns + `
		FROM accounts a
		WHERE a.organization_id = $1 AND a.id IN (` + strings.Join(placeholders, ", ") + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting accounts: %w", err)
	}
	defer rows.Close()

	accounts := make(map[uuid.UUID]*account.Account, len(ids))

	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}

		accounts[acct.ID] = acct
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}

	return accounts, nil
}

func (s *Store) ListAccounts(ctx context.Context, orgID uuid.UUID, filter account.ListFilter) ([]*account.Account, error) {
	query := `SELECT ` + selectAccountColumns + `
		FROM accounts a
		WHERE a.organization_id = $1`

	args := []any{orgID}

	argIdx := 2

	if filter.Type != nil {
		query += fmt.Sprintf(" AND a.type = $%d", argIdx)

		args = append(args, *filter.Type)
		argIdx++
	}

	if filter.ActiveOnly {
		query += " AND a.is_active"
	}

	query += " ORDER BY a.code ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account

	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}

		accounts = append(accounts, acct)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}

	return accounts, nil
}

func (s *Store) DeactivateAccount(ctx context.Context, orgID, id uuid.UUID) error {
	query := `
		UPDATE accounts
		SET is_active = FALSE, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2 AND NOT is_system
	`

	res, err := s.db.ExecContext(ctx, query, orgID, id)
	if err != nil {
		return fmt.Errorf("deactivating account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivating account: %w", err)
	}

	if affected == 0 {
		return account.ErrNotFound
	}

	return nil
}
