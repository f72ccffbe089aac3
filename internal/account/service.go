package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/oakbooks/oakbooks/internal/identity"
)

//go:generate mockgen -source=service.go -destination=service_mock.go -package=account
type Repository interface {
	CreateAccount(ctx context.Context, acct *Account) error
	GetAccount(ctx context.Context, orgID, id uuid.UUID) (*Account, error)
	GetByCode(ctx context.Context, orgID uuid.UUID, code string) (*Account, error)
	GetByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*Account, error)
	ListAccounts(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]*Account, error)
	DeactivateAccount(ctx context.Context, orgID, id uuid.UUID) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateParams struct {
	Code     string
	Name     string
	Type     Type
	Currency string
	IsSystem bool
}

type ListFilter struct {
	Type       *Type
	ActiveOnly bool
}

func (s *Service) Create(ctx context.Context, actor identity.Actor, params CreateParams) (*Account, error) {
	if params.Code == "" {
		return nil, fmt.Errorf("account code is required")
	}

	if !params.Type.Valid() {
		return nil, fmt.Errorf("unknown account type %q", params.Type)
	}

	existing, err := s.repo.GetByCode(ctx, actor.OrganizationID, params.Code)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("checking account code: %w", err)
	}

	if existing != nil {
		return nil, ErrDuplicateCode
	}

	acct := &Account{
		OrganizationID: actor.OrganizationID,
		Code:           params.Code,
		Name:           params.Name,
		Type:           params.Type,
		Currency:       params.Currency,
		IsActive:       true,
		IsSystem:       params.IsSystem,
	}
	if err := s.repo.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}

	return acct, nil
}

func (s *Service) Get(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Account, error) {
	return s.repo.GetAccount(ctx, actor.OrganizationID, id)
}

// GetByIDs batch-loads accounts for the organization. Missing ids are simply
// absent from the result map; the validator treats absence as a bad reference.
func (s *Service) GetByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*Account, error) {
	return s.repo.GetByIDs(ctx, orgID, ids)
}

func (s *Service) List(ctx context.Context, actor identity.Actor, filter ListFilter) ([]*Account, error) {
	return s.repo.ListAccounts(ctx, actor.OrganizationID, filter)
}

// Deactivate marks an account inactive so the validator rejects new entries
// against it. Historical entries keep referencing it; accounts are never
// deleted. System accounts are protected.
func (s *Service) Deactivate(ctx context.Context, actor identity.Actor, id uuid.UUID) error {
	acct, err := s.repo.GetAccount(ctx, actor.OrganizationID, id)
	if err != nil {
		return err
	}

	if acct.IsSystem {
		return ErrSystemAccount
	}

	return s.repo.DeactivateAccount(ctx, actor.OrganizationID, id)
}
