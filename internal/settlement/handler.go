package settlement

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/httpx"
	"github.com/brokerline/backend/internal/middleware"
	"github.com/brokerline/backend/internal/models"
)

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

// GET /api/v1/settlements?partner_id=&year=&month=
// Partner admins always get their own partner. Admins without partner_id get every partner.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	m := middleware.MemberFromCtx(r.Context())
	q := r.URL.Query()

	period, ok := h.period(w, q.Get("year"), q.Get("month"))
	if !ok {
		return
	}

	var partnerID *uuid.UUID
	if v := q.Get("partner_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid partner_id")
			return
		}
		partnerID = &id
	}
	if m.Role != models.RoleAdmin {
		own := m.PartnerID()
		if partnerID != nil && *partnerID != own {
			httpx.Error(w, http.StatusForbidden, "forbidden")
			return
		}
		partnerID = &own
	}

	if partnerID == nil {
		reports, err := h.svc.AggregateAll(r.Context(), period)
		if err != nil {
			httpx.WriteError(w, h.log, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, reports)
		return
	}
	report, err := h.svc.Aggregate(r.Context(), *partnerID, period)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

// period defaults to the current month in the business timezone.
func (h *Handler) period(w http.ResponseWriter, year, month string) (Period, bool) {
	now := h.svc.clock.Now()
	y, mo := now.Year(), now.Month()
	if year != "" {
		v, err := strconv.Atoi(year)
		if err != nil || v < 2000 || v > 9999 {
			httpx.Error(w, http.StatusBadRequest, "invalid year")
			return Period{}, false
		}
		y = v
	}
	if month != "" {
		v, err := strconv.Atoi(month)
		if err != nil || v < 1 || v > 12 {
			httpx.Error(w, http.StatusBadRequest, "invalid month")
			return Period{}, false
		}
		mo = time.Month(v)
	}
	return h.svc.Month(y, mo), true
}
