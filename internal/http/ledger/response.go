package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakbooks/oakbooks/internal/ledger"
)

type transactionResponse struct {
	ID          uuid.UUID        `json:"id"`
	Type        ledger.Type      `json:"type"`
	Status      ledger.Status    `json:"status"`
	Date        time.Time        `json:"date"`
	Description string           `json:"description"`
	Reference   string           `json:"reference,omitempty"`
	Currency    string           `json:"currency"`
	BranchID    *uuid.UUID       `json:"branch_id,omitempty"`
	CreatedBy   uuid.UUID        `json:"created_by"`
	ApprovedBy  *uuid.UUID       `json:"approved_by,omitempty"`
	Balanced    bool             `json:"balanced"`
	Entries     []entryResponse  `json:"entries,omitempty"`
	Metadata    metadataResponse `json:"metadata"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   *time.Time       `json:"updated_at,omitempty"`
}

type entryResponse struct {
	ID        uuid.UUID        `json:"id"`
	AccountID uuid.UUID        `json:"account_id"`
	EntryType ledger.EntryType `json:"entry_type"`
	Amount    decimal.Decimal  `json:"amount"`
	Currency  string           `json:"currency"`
}

type metadataResponse struct {
	ForeignAmount   *decimal.Decimal `json:"foreign_amount,omitempty"`
	ForeignCurrency string           `json:"foreign_currency,omitempty"`
	BaseAmount      *decimal.Decimal `json:"base_amount,omitempty"`
	ComplianceFlags []string         `json:"compliance_flags,omitempty"`
	VoidReason      string           `json:"void_reason,omitempty"`
	CancelReason    string           `json:"cancel_reason,omitempty"`
	ReversalReason  string           `json:"reversal_reason,omitempty"`
	ReversedBy      *uuid.UUID       `json:"reversed_by,omitempty"`
	Reverses        *uuid.UUID       `json:"reverses,omitempty"`
	AuditTrail      auditResponse    `json:"audit_trail"`
}

type auditResponse struct {
	LastModified   time.Time `json:"last_modified"`
	LastModifiedBy uuid.UUID `json:"last_modified_by"`
	Version        int       `json:"version"`
}

func toResponse(tx *ledger.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:          tx.ID,
		Type:        tx.Type,
		Status:      tx.Status,
		Date:        tx.Date,
		Description: tx.Description,
		Reference:   tx.Reference,
		Currency:    tx.Currency,
		BranchID:    tx.BranchID,
		CreatedBy:   tx.CreatedBy,
		ApprovedBy:  tx.ApprovedBy,
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
		Metadata: metadataResponse{
			ForeignAmount:   tx.Metadata.ForeignAmount,
			ForeignCurrency: tx.Metadata.ForeignCurrency,
			BaseAmount:      tx.Metadata.BaseAmount,
			ComplianceFlags: tx.Metadata.ComplianceFlags,
			VoidReason:      tx.Metadata.VoidReason,
			CancelReason:    tx.Metadata.CancelReason,
			ReversalReason:  tx.Metadata.ReversalReason,
			ReversedBy:      tx.Metadata.ReversedBy,
			Reverses:        tx.Metadata.Reverses,
			AuditTrail: auditResponse{
				LastModified:   tx.Metadata.AuditTrail.LastModified,
				LastModifiedBy: tx.Metadata.AuditTrail.LastModifiedBy,
				Version:        tx.Metadata.AuditTrail.Version,
			},
		},
	}

	if len(tx.Entries) > 0 {
		resp.Balanced = tx.Balanced()
		resp.Entries = make([]entryResponse, len(tx.Entries))

		for i, e := range tx.Entries {
			resp.Entries[i] = entryResponse{
				ID:        e.ID,
				AccountID: e.AccountID,
				EntryType: e.Type,
				Amount:    e.Amount,
				Currency:  e.Currency,
			}
		}
	} else {
		// List projections come without lines; fall back to the flag the
		// posting engine recorded.
		resp.Balanced = tx.Metadata.IsBalanced
	}

	return resp
}

func toResponseList(txs []*ledger.Transaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toResponse(tx)
	}

	return resp
}
