package virtualaccount

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/apperr"
	"github.com/brokerline/backend/internal/httpx"
	"github.com/brokerline/backend/internal/middleware"
)

type IssueRequest struct {
	Amount int64 `json:"amount"`
}

type ConfirmRequest struct {
	Amount      int64      `json:"amount"`
	DepositTime *time.Time `json:"deposit_time,omitempty"`
}

type SweepResponse struct {
	Expired int64 `json:"expired"`
}

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// POST /api/v1/virtual-accounts
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	m := middleware.MemberFromCtx(r.Context())
	var req IssueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	v, err := h.svc.Issue(r.Context(), m.ID, req.Amount)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, v)
}

// GET /api/v1/virtual-accounts/pending
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	m := middleware.MemberFromCtx(r.Context())
	v, err := h.svc.Pending(r.Context(), m.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

// POST /api/v1/admin/virtual-accounts/{id}/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid virtual account id")
		return
	}
	var req ConfirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	var at time.Time
	if req.DepositTime != nil {
		at = *req.DepositTime
	}
	p, err := h.svc.ConfirmPayment(r.Context(), id, req.Amount, at)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// POST /api/v1/admin/virtual-accounts/sweep
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.SweepExpired(r.Context(), h.svc.clock.Now())
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, SweepResponse{Expired: n})
}
