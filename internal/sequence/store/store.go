package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oakbooks/oakbooks/internal/sequence"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// NextExisting bumps an existing counter in a single UPDATE ... RETURNING so
// concurrent callers serialize on the row without any read-then-write window.
func (s *Store) NextExisting(ctx context.Context, key sequence.Key) (int64, bool, error) {
	query := `
		UPDATE document_sequences
		SET current_number = current_number + 1, updated_at = NOW()
		WHERE organization_id = $1
		  AND branch_id IS NOT DISTINCT FROM $2
		  AND document_type = $3
		  AND year IS NOT DISTINCT FROM $4
		  AND month IS NOT DISTINCT FROM $5
		RETURNING current_number
	`

	var n int64

	err := s.db.QueryRowContext(ctx, query,
		key.OrganizationID,
		key.BranchID,
		key.DocumentType,
		key.Year,
		key.Month,
	).Scan(&n)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("incrementing sequence: %w", err)
	}

	return n, true, nil
}

// NextOrCreate lazily creates the counter on first use. The upsert keeps the
// increment atomic even when two callers race to create the same counter:
// one inserts, the other lands on the conflict arm.
func (s *Store) NextOrCreate(ctx context.Context, key sequence.Key) (int64, error) {
	query := `
		INSERT INTO document_sequences (organization_id, branch_id, document_type, year, month, current_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, NOW(), NOW())
		ON CONFLICT (organization_id, branch_id, document_type, year, month)
		DO UPDATE SET current_number = document_sequences.current_number + 1, updated_at = NOW()
		RETURNING current_number
	`

	var n int64

	err := s.db.QueryRowContext(ctx, query,
		key.OrganizationID,
		key.BranchID,
		key.DocumentType,
		key.Year,
		key.Month,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("creating sequence: %w", err)
	}

	return n, nil
}
