package applications

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/apperr"
	"github.com/brokerline/backend/internal/clock"
	"github.com/brokerline/backend/internal/httpx"
	"github.com/brokerline/backend/internal/middleware"
	"github.com/brokerline/backend/internal/models"
)

type SubmitRequest struct {
	Vehicle          models.Vehicle `json:"vehicle"`
	DesiredStartDate string         `json:"desired_start_date"` // YYYY-MM-DD
	Memo             string         `json:"memo,omitempty"`
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

// POST /api/v1/applications
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	m := middleware.MemberFromCtx(r.Context())
	var req SubmitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	start, err := time.ParseInLocation(time.DateOnly, req.DesiredStartDate, clock.LocationOf(h.svc.clock))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "desired_start_date must be YYYY-MM-DD")
		return
	}
	a, err := h.svc.Submit(r.Context(), m, SubmitInput{Vehicle: req.Vehicle, DesiredStartDate: start, Memo: req.Memo})
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, a)
}

// GET /api/v1/applications
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	m := middleware.MemberFromCtx(r.Context())
	q := r.URL.Query()
	f := models.ApplicationFilter{Status: models.ApplicationStatus(q.Get("status"))}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	for key, dst := range map[string]**time.Time{"from": &f.CreatedFrom, "to": &f.CreatedTo} {
		if v := q.Get(key); v != "" {
			t, err := time.ParseInLocation(time.DateOnly, v, clock.LocationOf(h.svc.clock))
			if err != nil {
				httpx.Error(w, http.StatusBadRequest, key+" must be YYYY-MM-DD")
				return
			}
			*dst = &t
		}
	}
	switch m.Role {
	case models.RoleAdmin:
		if p := q.Get("partner_id"); p != "" {
			pid, err := uuid.Parse(p)
			if err != nil {
				httpx.Error(w, http.StatusBadRequest, "invalid partner_id")
				return
			}
			f.PartnerGroupID = &pid
		}
	case models.RolePartnerAdmin:
		pid := m.PartnerID()
		f.PartnerGroupID = &pid
	default:
		f.CreatedBy = &m.ID
	}
	list, err := h.svc.List(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	if list == nil {
		list = []*models.InsuranceApplication{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// GET /api/v1/applications/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

// POST /api/v1/applications/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.svc.PartnerApprove)
}

// POST /api/v1/applications/{id}/activate
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.svc.Activate)
}

// POST /api/v1/applications/{id}/terminate
func (h *Handler) Terminate(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.svc.Terminate)
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) (*models.InsuranceApplication, error)) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	updated, err := op(r.Context(), a.ID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

// load fetches the path application and checks the caller may see it.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*models.InsuranceApplication, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid application id")
		return nil, false
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return nil, false
	}
	if err := visible(middleware.MemberFromCtx(r.Context()), a); err != nil {
		// Hide applications of other tenants behind 404.
		httpx.WriteError(w, h.log, r, err)
		return nil, false
	}
	return a, true
}

func visible(m *models.Member, a *models.InsuranceApplication) error {
	switch {
	case m.Role == models.RoleAdmin:
		return nil
	case m.Role == models.RolePartnerAdmin && a.PartnerGroupID == m.PartnerID():
		return nil
	case a.CreatedBy == m.ID:
		return nil
	}
	return fmt.Errorf("application %s: %w", a.ID, apperr.ErrNotFound)
}
