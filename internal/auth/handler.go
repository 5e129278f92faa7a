package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/httpx"
	"github.com/brokerline/backend/internal/models"
)

// LoginRequest omits partner_id for the root administrator.
type LoginRequest struct {
	PartnerID *uuid.UUID `json:"partner_id,omitempty"`
	Username  string     `json:"username"`
	Password  string     `json:"password"`
}

type LoginResponse struct {
	Token  string         `json:"token"`
	Member *models.Member `json:"member"`
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

// POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Username == "" || req.Password == "" {
		httpx.Error(w, http.StatusBadRequest, "missing username or password")
		return
	}
	token, m, err := h.svc.Login(r.Context(), req.PartnerID, req.Username, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		httpx.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	case errors.Is(err, ErrPendingApproval):
		httpx.Error(w, http.StatusForbidden, "membership pending approval")
		return
	case err != nil:
		httpx.WriteError(w, h.log, r, err)
		return
	}
	h.log.Info("member logged in", "member_id", m.ID, "role", m.Role)
	httpx.WriteJSON(w, http.StatusOK, LoginResponse{Token: token, Member: m})
}
