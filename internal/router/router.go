package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/brokerline/backend/internal/applications"
	"github.com/brokerline/backend/internal/auth"
	"github.com/brokerline/backend/internal/dashboard"
	"github.com/brokerline/backend/internal/deposits"
	"github.com/brokerline/backend/internal/httpx"
	"github.com/brokerline/backend/internal/metrics"
	"github.com/brokerline/backend/internal/middleware"
	"github.com/brokerline/backend/internal/models"
	"github.com/brokerline/backend/internal/registry"
	"github.com/brokerline/backend/internal/settlement"
	"github.com/brokerline/backend/internal/virtualaccount"
)

const base = "/api/v1"

// Handlers groups the per-package HTTP handlers.
type Handlers struct {
	Auth            *auth.Handler
	Registry        *registry.Handler
	Dashboard       *dashboard.Handler
	Applications    *applications.Handler
	VirtualAccounts *virtualaccount.Handler
	DepositRequests *deposits.Handler
	Settlements     *settlement.Handler
}

// Pinger reports database health; *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the cross-cutting collaborators of the middleware chain.
type Deps struct {
	Tokens  middleware.TokenValidator
	Members middleware.MemberGetter
	Schemas middleware.SchemaValidator
	Limiter *middleware.RateLimiter
	DB      Pinger
	Log     *slog.Logger
}

type chain func(http.Handler) http.Handler

// New returns an http.Handler that serves the API under /api/v1 plus
// /metrics and /healthz.
func New(h Handlers, d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	mux := http.NewServeMux()

	handle := func(method, path string, fn http.HandlerFunc, mws ...chain) {
		var next http.Handler = fn
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		mux.Handle(method+" "+base+path, metrics.InstrumentHandler(path, next))
	}

	authn := middleware.Authenticate(d.Tokens, d.Members)
	limit := func(next http.Handler) http.Handler { return next }
	if d.Limiter != nil {
		limit = d.Limiter.Handler
	}
	member := []chain{authn, limit}
	admin := []chain{authn, limit, middleware.RequireRole(models.RoleAdmin)}
	partnerAdmin := []chain{authn, limit, middleware.RequireRole(models.RolePartnerAdmin, models.RoleAdmin)}
	with := func(c []chain, extra ...chain) []chain {
		return append(append([]chain{}, c...), extra...)
	}

	handle("POST", "/auth/login", h.Auth.Login, limit)
	handle("POST", "/auth/register", h.Registry.Register, limit)
	handle("POST", "/admin/partners", h.Registry.CreatePartner, admin...)
	handle("GET", "/admin/partners", h.Registry.ListPartners, admin...)
	handle("GET", "/admin/members/pending", h.Registry.PendingMembers, partnerAdmin...)
	handle("POST", "/admin/members/{id}/approve", h.Registry.ApproveMember, partnerAdmin...)

	handle("GET", "/account/me", h.Dashboard.GetMe, member...)
	handle("GET", "/ledger/balance", h.Dashboard.Balance, member...)
	handle("GET", "/ledger/deposits", h.Dashboard.Deposits, member...)
	handle("GET", "/ledger/adjustments", h.Dashboard.Adjustments, member...)
	handle("POST", "/admin/ledger/deposits", h.Dashboard.RecordDeposit, with(admin, middleware.SchemaCheck(d.Schemas, "deposit"))...)
	handle("POST", "/admin/ledger/adjustments", h.Dashboard.ApplyAdjustment, admin...)
	handle("GET", "/admin/ledger/reconcile/{member}", h.Dashboard.Reconcile, admin...)

	handle("POST", "/applications", h.Applications.Submit, member...)
	handle("GET", "/applications", h.Applications.List, member...)
	handle("GET", "/applications/{id}", h.Applications.Get, member...)
	handle("POST", "/applications/{id}/approve", h.Applications.Approve, partnerAdmin...)
	handle("POST", "/applications/{id}/activate", h.Applications.Activate, admin...)
	handle("POST", "/applications/{id}/terminate", h.Applications.Terminate, partnerAdmin...)

	handle("POST", "/virtual-accounts", h.VirtualAccounts.Issue, member...)
	handle("GET", "/virtual-accounts/pending", h.VirtualAccounts.Pending, member...)
	handle("POST", "/admin/virtual-accounts/{id}/confirm", h.VirtualAccounts.Confirm, admin...)
	handle("POST", "/admin/virtual-accounts/sweep", h.VirtualAccounts.Sweep, admin...)

	handle("POST", "/deposit-requests", h.DepositRequests.Create, member...)
	handle("GET", "/admin/deposit-requests", h.DepositRequests.ListPending, partnerAdmin...)
	handle("POST", "/admin/deposit-requests/{id}/confirm", h.DepositRequests.Confirm, admin...)
	handle("POST", "/admin/deposit-requests/{id}/cancel", h.DepositRequests.Cancel, admin...)

	handle("GET", "/settlements", h.Settlements.Get, partnerAdmin...)

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			if err := d.DB.Ping(r.Context()); err != nil {
				d.Log.Error("health check failed", "error", err)
				httpx.Error(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}
