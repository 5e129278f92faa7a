// Package dashboard serves the member's account page and the ledger
// endpoints behind it.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/apperr"
	"github.com/brokerline/backend/internal/httpx"
	"github.com/brokerline/backend/internal/ledger"
	"github.com/brokerline/backend/internal/middleware"
	"github.com/brokerline/backend/internal/models"
)

// PendingAccounts is satisfied by virtualaccount.Service.
type PendingAccounts interface {
	Pending(ctx context.Context, memberID uuid.UUID) (*models.VirtualAccount, error)
}

type Handler struct {
	ledger   *ledger.Service
	accounts PendingAccounts
	log      *slog.Logger
}

func NewHandler(led *ledger.Service, accounts PendingAccounts, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{ledger: led, accounts: accounts, log: log}
}

type MeResponse struct {
	Member         *models.Member           `json:"member"`
	Balance        int64                    `json:"balance"`
	RecentDeposits []*models.DepositHistory `json:"recent_deposits"`
	PendingAccount *models.VirtualAccount   `json:"pending_virtual_account,omitempty"`
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	m := middleware.MemberFromCtx(r.Context())
	balance, err := h.ledger.GetBalance(r.Context(), m.ID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	deposits, err := h.ledger.RecentDeposits(r.Context(), m.ID, ledger.RecentDepositLimit)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	if deposits == nil {
		deposits = []*models.DepositHistory{}
	}
	resp := MeResponse{Member: m, Balance: balance, RecentDeposits: deposits}
	if h.accounts != nil {
		v, err := h.accounts.Pending(r.Context(), m.ID)
		switch {
		case err == nil:
			resp.PendingAccount = v
		case !errors.Is(err, apperr.ErrNotFound):
			httpx.WriteError(w, h.log, r, err)
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type BalanceResponse struct {
	MemberID uuid.UUID `json:"member_id"`
	Balance  int64     `json:"balance"`
}

// GET /api/v1/ledger/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	m := middleware.MemberFromCtx(r.Context())
	balance, err := h.ledger.GetBalance(r.Context(), m.ID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, BalanceResponse{MemberID: m.ID, Balance: balance})
}

// GET /api/v1/ledger/deposits
func (h *Handler) Deposits(w http.ResponseWriter, r *http.Request) {
	m := middleware.MemberFromCtx(r.Context())
	list, err := h.ledger.RecentDeposits(r.Context(), m.ID, ledger.RecentDepositLimit)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	if list == nil {
		list = []*models.DepositHistory{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// GET /api/v1/ledger/adjustments
func (h *Handler) Adjustments(w http.ResponseWriter, r *http.Request) {
	m := middleware.MemberFromCtx(r.Context())
	list, err := h.ledger.AdjustmentHistory(r.Context(), m.ID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	if list == nil {
		list = []*models.PointAdjustment{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

type DepositRequest struct {
	MemberID      uuid.UUID  `json:"member_id"`
	BankName      string     `json:"bank_name"`
	AccountNumber string     `json:"account_number"`
	Amount        int64      `json:"amount"`
	DepositTime   *time.Time `json:"deposit_time,omitempty"`
}

// POST /api/v1/admin/ledger/deposits
func (h *Handler) RecordDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	in := ledger.DepositInput{
		MemberID:      req.MemberID,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
	}
	if req.DepositTime != nil {
		in.DepositTime = *req.DepositTime
	}
	d, err := h.ledger.RecordDeposit(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, d)
}

type AdjustmentRequest struct {
	MemberID uuid.UUID `json:"member_id"`
	Decrease int64     `json:"decrease_amount"`
	Increase int64     `json:"increase_amount"`
	Note     string    `json:"note"`
}

// POST /api/v1/admin/ledger/adjustments
func (h *Handler) ApplyAdjustment(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MemberFromCtx(r.Context())
	var req AdjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	a, err := h.ledger.ApplyAdjustment(r.Context(), ledger.AdjustmentInput{
		MemberID: req.MemberID,
		Decrease: req.Decrease,
		Increase: req.Increase,
		Note:     req.Note,
		Actor:    &actor.ID,
	})
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, a)
}

// GET /api/v1/admin/ledger/reconcile/{member}
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("member"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid member id")
		return
	}
	rec, err := h.ledger.Reconcile(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	if !rec.Balanced() {
		h.log.Warn("ledger drift", "member_id", id, "drift", rec.Drift)
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}
