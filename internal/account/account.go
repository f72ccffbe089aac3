package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrSystemAccount = errors.New("system accounts cannot be deactivated")
	ErrDuplicateCode = errors.New("account code already in use")
)

// Type classifies an account within the chart of accounts. Codes follow the
// conventional numeric ranges: 1000s assets, 2000s liabilities, 3000s equity,
// 4000s revenue, 5000s cost of sales, 6000s and up expenses.
type Type string

const (
	TypeAsset       Type = "ASSET"
	TypeLiability   Type = "LIABILITY"
	TypeEquity      Type = "EQUITY"
	TypeRevenue     Type = "REVENUE"
	TypeCostOfSales Type = "COST_OF_SALES"
	TypeExpense     Type = "EXPENSE"
)

// Valid reports whether t is one of the known account types.
func (t Type) Valid() bool {
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeRevenue, TypeCostOfSales, TypeExpense:
		return true
	}

	return false
}

// BalanceSide is the side on which an account's balance normally grows.
type BalanceSide string

const (
	SideDebit  BalanceSide = "DEBIT"
	SideCredit BalanceSide = "CREDIT"
)

// NormalSide returns the normal balance side for the account type. Assets,
// cost of sales and expenses grow on the debit side; everything else grows
// on the credit side.
func (t Type) NormalSide() BalanceSide {
	switch t {
	case TypeAsset, TypeCostOfSales, TypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Account is a node in the chart of accounts. Balance is only ever mutated
// by the posting engine's atomic increment; no other writer is permitted.
type Account struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Code           string
	Name           string
	Type           Type
	Currency       string
	Balance        decimal.Decimal
	IsActive       bool
	IsSystem       bool
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}
