package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakbooks/oakbooks/internal/account"
	"github.com/oakbooks/oakbooks/internal/http/auth"
	"github.com/oakbooks/oakbooks/internal/identity"
	"github.com/oakbooks/oakbooks/internal/ledger"
	"github.com/oakbooks/oakbooks/internal/sequence"
)

type Handler struct {
	svc *ledger.Service
}

func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.With(auth.RequirePosting).Post("/", h.post)
	r.With(auth.RequirePosting).Post("/drafts", h.saveDraft)
	r.With(auth.RequirePosting).Post("/{id}/post", h.postDraft)
	r.With(auth.RequirePosting).Post("/{id}/cancel", h.cancel)
	r.With(auth.RequireReversal).Post("/{id}/void", h.void)
	r.With(auth.RequireReversal).Post("/{id}/reverse", h.reverse)
}

type entryRequest struct {
	AccountID uuid.UUID        `json:"account_id"`
	EntryType ledger.EntryType `json:"entry_type"`
	Amount    decimal.Decimal  `json:"amount"`
}

type transactionRequest struct {
	Type            ledger.Type      `json:"type"`
	Date            time.Time        `json:"date"`
	Description     string           `json:"description"`
	Currency        string           `json:"currency"`
	BranchID        *uuid.UUID       `json:"branch_id,omitempty"`
	ForeignAmount   *decimal.Decimal `json:"foreign_amount,omitempty"`
	ForeignCurrency string           `json:"foreign_currency,omitempty"`
	BaseAmount      *decimal.Decimal `json:"base_amount,omitempty"`
	ComplianceFlags []string         `json:"compliance_flags,omitempty"`
	Entries         []entryRequest   `json:"entries"`
}

func (req *transactionRequest) toDraft() ledger.Draft {
	draft := ledger.Draft{
		Type:            req.Type,
		Date:            req.Date,
		Description:     req.Description,
		Currency:        req.Currency,
		BranchID:        req.BranchID,
		ForeignAmount:   req.ForeignAmount,
		ForeignCurrency: req.ForeignCurrency,
		BaseAmount:      req.BaseAmount,
		ComplianceFlags: req.ComplianceFlags,
		Entries:         make([]ledger.EntryDraft, len(req.Entries)),
	}

	for i, e := range req.Entries {
		draft.Entries[i] = ledger.EntryDraft{
			AccountID: e.AccountID,
			Type:      e.EntryType,
			Amount:    e.Amount,
		}
	}

	return draft
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.svc.Post(r.Context(), actor, req.toDraft())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(tx))
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.svc.SaveDraft(r.Context(), actor, req.toDraft())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(tx))
}

func (h *Handler) postDraft(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	tx, err := h.svc.PostDraft(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(tx))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.svc.CancelDraft(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.svc.Void(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(tx))
}

type reverseResponse struct {
	Original transactionResponse `json:"original"`
	Reversal transactionResponse `json:"reversal"`
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	orig, rev, err := h.svc.Reverse(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, reverseResponse{
		Original: toResponse(orig),
		Reversal: toResponse(rev),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	tx, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	filter := ledger.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		st := ledger.Status(s)
		filter.Status = &st
	}

	if s := r.URL.Query().Get("type"); s != "" {
		ty := ledger.Type(s)
		filter.Type = &ty
	}

	if s := r.URL.Query().Get("start_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			filter.StartDate = &t
		}
	}

	if s := r.URL.Query().Get("end_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			filter.EndDate = &t
		}
	}

	txs, err := h.svc.List(r.Context(), actor, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponseList(txs))
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (identity.Actor, uuid.UUID, bool) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return identity.Actor{}, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return identity.Actor{}, uuid.Nil, false
	}

	return actor, id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps core errors onto rejection responses. Validation and state
// errors need caller-side correction; sequence unavailability is transient
// and the whole call is safe to retry since nothing was committed.
func writeError(w http.ResponseWriter, err error) {
	var validationErr *ledger.ValidationError
	if errors.As(err, &validationErr) {
		http.Error(w, validationErr.Error(), http.StatusUnprocessableEntity)
		return
	}

	var stateErr *ledger.InvalidStateError
	if errors.As(err, &stateErr) {
		http.Error(w, stateErr.Error(), http.StatusConflict)
		return
	}

	var seqErr *sequence.UnavailableError
	if errors.As(err, &seqErr) {
		http.Error(w, "document numbering unavailable, retry later", http.StatusServiceUnavailable)
		return
	}

	if errors.Is(err, ledger.ErrNotFound) || errors.Is(err, account.ErrNotFound) {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}

	slog.Error("ledger request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
