package sequence

import (
	"context"
	"fmt"
)

// UnavailableError signals that the counter store could not serve an
// allocation. The whole posting call is safe to retry; callers must never
// substitute a number of their own.
type UnavailableError struct {
	DocumentType string
	Err          error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("sequence counter unavailable for %s: %v", e.DocumentType, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Repository is the counter store. Both methods must increment and return
// atomically: a single conditional update returning the new value, never a
// read followed by a write.
//
//go:generate mockgen -source=service.go -destination=service_mock.go -package=sequence
type Repository interface {
	// NextExisting increments an existing counter and returns its new value.
	// ok is false when no counter exists for the key.
	NextExisting(ctx context.Context, key Key) (n int64, ok bool, err error)
	// NextOrCreate increments the counter for the key, creating it seeded at
	// zero if it does not exist yet.
	NextOrCreate(ctx context.Context, key Key) (int64, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Allocate issues the next document number for the scope and renders it as a
// reference string. Numbers are strictly increasing per counter and never
// issued twice; a number consumed by a posting that later rolls back is an
// acceptable, auditable gap.
//
// When a branch is given, an existing branch-scoped counter wins; otherwise
// an existing organization-wide counter is used; if neither exists a new
// counter is created at the branch scope.
func (s *Service) Allocate(ctx context.Context, scope Scope) (string, error) {
	format := FormatFor(scope.DocumentType)

	if scope.BranchID != nil {
		branchKey := keyFor(scope, format, scope.BranchID)

		n, ok, err := s.repo.NextExisting(ctx, branchKey)
		if err != nil {
			return "", &UnavailableError{DocumentType: scope.DocumentType, Err: err}
		}

		if ok {
			return format.Render(n, scope.At), nil
		}

		n, ok, err = s.repo.NextExisting(ctx, keyFor(scope, format, nil))
		if err != nil {
			return "", &UnavailableError{DocumentType: scope.DocumentType, Err: err}
		}

		if ok {
			return format.Render(n, scope.At), nil
		}

		n, err = s.repo.NextOrCreate(ctx, branchKey)
		if err != nil {
			return "", &UnavailableError{DocumentType: scope.DocumentType, Err: err}
		}

		return format.Render(n, scope.At), nil
	}

	n, err := s.repo.NextOrCreate(ctx, keyFor(scope, format, nil))
	if err != nil {
		return "", &UnavailableError{DocumentType: scope.DocumentType, Err: err}
	}

	return format.Render(n, scope.At), nil
}
