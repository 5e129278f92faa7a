package deposits

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/httpx"
	"github.com/brokerline/backend/internal/middleware"
	"github.com/brokerline/backend/internal/models"
)

type CreateRequest struct {
	Amount        int64  `json:"amount"`
	AccountHolder string `json:"account_holder"`
	BankName      string `json:"bank_name"`
}

type ConfirmRequest struct {
	DepositTime *time.Time `json:"deposit_time,omitempty"`
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

// POST /api/v1/deposit-requests
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	m := middleware.MemberFromCtx(r.Context())
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	d, err := h.svc.Request(r.Context(), m, RequestInput{Amount: req.Amount, AccountHolder: req.AccountHolder, BankName: req.BankName})
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, d)
}

// GET /api/v1/admin/deposit-requests
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	m := middleware.MemberFromCtx(r.Context())
	var partnerID *uuid.UUID
	if m.Role != models.RoleAdmin {
		pid := m.PartnerID()
		partnerID = &pid
	}
	list, err := h.svc.ListPending(r.Context(), partnerID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// POST /api/v1/admin/deposit-requests/{id}/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid deposit request id")
		return
	}
	var req ConfirmRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, h.log, r, err)
			return
		}
	}
	var at time.Time
	if req.DepositTime != nil {
		at = *req.DepositTime
	}
	d, err := h.svc.Confirm(r.Context(), id, at)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

// POST /api/v1/admin/deposit-requests/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid deposit request id")
		return
	}
	if err := h.svc.Cancel(r.Context(), id); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
