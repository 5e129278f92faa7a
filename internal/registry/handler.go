package registry

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/httpx"
	"github.com/brokerline/backend/internal/middleware"
	"github.com/brokerline/backend/internal/models"
)

type CreatePartnerRequest struct {
	Name           string `json:"name"`
	BusinessNumber string `json:"business_number"`
	Representative string `json:"representative"`
	Phone          string `json:"phone"`
	BankName       string `json:"bank_name"`
	AccountNumber  string `json:"account_number"`
}

type RegisterRequest struct {
	PartnerID        uuid.UUID `json:"partner_id"`
	Username         string    `json:"username"`
	Password         string    `json:"password"`
	CompanyName      string    `json:"company_name"`
	SettlementMethod string    `json:"settlement_method,omitempty"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// POST /api/v1/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	m, err := h.svc.Register(r.Context(), RegisterInput{
		PartnerID:        req.PartnerID,
		Username:         req.Username,
		Password:         req.Password,
		CompanyName:      req.CompanyName,
		SettlementMethod: req.SettlementMethod,
	})
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, m)
}

// POST /api/v1/admin/partners
func (h *Handler) CreatePartner(w http.ResponseWriter, r *http.Request) {
	var req CreatePartnerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	p, err := h.svc.CreatePartner(r.Context(), PartnerInput(req))
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

// GET /api/v1/admin/partners
func (h *Handler) ListPartners(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListPartners(r.Context())
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	if list == nil {
		list = []*models.PartnerGroup{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// GET /api/v1/admin/members/pending
func (h *Handler) PendingMembers(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.PendingMembers(r.Context(), middleware.MemberFromCtx(r.Context()))
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	if list == nil {
		list = []*models.Member{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// POST /api/v1/admin/members/{id}/approve
func (h *Handler) ApproveMember(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid member id")
		return
	}
	m, err := h.svc.ApproveMember(r.Context(), middleware.MemberFromCtx(r.Context()), id)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, m)
}
