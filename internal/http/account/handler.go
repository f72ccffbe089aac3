package account

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oakbooks/oakbooks/internal/account"
	"github.com/oakbooks/oakbooks/internal/http/auth"
	"github.com/oakbooks/oakbooks/internal/identity"
	"github.com/oakbooks/oakbooks/internal/ledger"
)

type Handler struct {
	svc    *account.Service
	ledger *ledger.Service
}

func NewHandler(svc *account.Service, ledgerSvc *ledger.Service) *Handler {
	return &Handler{svc: svc, ledger: ledgerSvc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/activity", h.activity)
	r.With(auth.RequireAccounts).Post("/", h.create)
	r.With(auth.RequireAccounts).Delete("/{id}", h.deactivate)
}

type createAccountRequest struct {
	Code     string       `json:"code"`
	Name     string       `json:"name"`
	Type     account.Type `json:"type"`
	Currency string       `json:"currency"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acct, err := h.svc.Create(r.Context(), actor, account.CreateParams{
		Code:     req.Code,
		Name:     req.Name,
		Type:     req.Type,
		Currency: req.Currency,
	})
	if err != nil {
		if errors.Is(err, account.ErrDuplicateCode) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}

		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, toResponse(acct))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	acct, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(acct))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	filter := account.ListFilter{}

	if s := r.URL.Query().Get("type"); s != "" {
		t := account.Type(s)
		filter.Type = &t
	}

	if r.URL.Query().Get("active") == "true" {
		filter.ActiveOnly = true
	}

	accounts, err := h.svc.List(r.Context(), actor, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponseList(accounts))
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	var from, to *time.Time

	if s := r.URL.Query().Get("start_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			from = &t
		}
	}

	if s := r.URL.Query().Get("end_date"); s != "" {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			to = &t
		}
	}

	activity, err := h.ledger.AccountActivity(r.Context(), actor, id, from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toActivityResponse(activity))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Deactivate(r.Context(), actor, id); err != nil {
		if errors.Is(err, account.ErrSystemAccount) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
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

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, account.ErrNotFound) {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}

	slog.Error("account request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
