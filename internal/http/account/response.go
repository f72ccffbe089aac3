package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakbooks/oakbooks/internal/account"
	"github.com/oakbooks/oakbooks/internal/ledger"
)

type accountResponse struct {
	ID        uuid.UUID       `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      account.Type    `json:"type"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	IsActive  bool            `json:"is_active"`
	IsSystem  bool            `json:"is_system"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

func toResponse(acct *account.Account) accountResponse {
	return accountResponse{
		ID:        acct.ID,
		Code:      acct.Code,
		Name:      acct.Name,
		Type:      acct.Type,
		Currency:  acct.Currency,
		Balance:   acct.Balance,
		IsActive:  acct.IsActive,
		IsSystem:  acct.IsSystem,
		CreatedAt: acct.CreatedAt,
		UpdatedAt: acct.UpdatedAt,
	}
}

func toResponseList(accounts []*account.Account) []accountResponse {
	resp := make([]accountResponse, len(accounts))
	for i, acct := range accounts {
		resp[i] = toResponse(acct)
	}

	return resp
}

type activityEntryResponse struct {
	ID            uuid.UUID        `json:"id"`
	TransactionID uuid.UUID        `json:"transaction_id"`
	EntryType     ledger.EntryType `json:"entry_type"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	CreatedAt     time.Time        `json:"created_at"`
}

type activityResponse struct {
	AccountID   uuid.UUID               `json:"account_id"`
	DebitTotal  decimal.Decimal         `json:"debit_total"`
	CreditTotal decimal.Decimal         `json:"credit_total"`
	Net         decimal.Decimal         `json:"net"`
	Entries     []activityEntryResponse `json:"entries"`
}

func toActivityResponse(a *ledger.Activity) activityResponse {
	resp := activityResponse{
		AccountID:   a.AccountID,
		DebitTotal:  a.DebitTotal,
		CreditTotal: a.CreditTotal,
		Net:         a.Net,
		Entries:     make([]activityEntryResponse, len(a.Entries)),
	}

	for i, e := range a.Entries {
		resp.Entries[i] = activityEntryResponse{
			ID:            e.ID,
			TransactionID: e.TransactionID,
			EntryType:     e.Type,
			Amount:        e.Amount,
			Currency:      e.Currency,
			CreatedAt:     e.CreatedAt,
		}
	}

	return resp
}
