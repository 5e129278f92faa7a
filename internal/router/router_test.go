package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerline/backend/internal/applications"
	"github.com/brokerline/backend/internal/auth"
	"github.com/brokerline/backend/internal/clock"
	"github.com/brokerline/backend/internal/dashboard"
	"github.com/brokerline/backend/internal/deposits"
	"github.com/brokerline/backend/internal/ledger"
	"github.com/brokerline/backend/internal/memstore"
	"github.com/brokerline/backend/internal/middleware"
	"github.com/brokerline/backend/internal/models"
	"github.com/brokerline/backend/internal/registry"
	"github.com/brokerline/backend/internal/router"
	"github.com/brokerline/backend/internal/settlement"
	"github.com/brokerline/backend/internal/validation"
	"github.com/brokerline/backend/internal/virtualaccount"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type server struct {
	handler http.Handler
	partner uuid.UUID
}

func newServer(t *testing.T, db router.Pinger) *server {
	t.Helper()
	store := memstore.New()
	clk := clock.Fixed{T: time.Date(2024, 5, 10, 9, 0, 0, 0, clock.KST)}
	validator := validation.MustNew()

	led := ledger.NewService(store, store.Members(), store.Deposits(), store.Adjustments(), store.Applications(), clk, nil)
	apps := applications.NewService(store, store.Applications(), store.Members(), led, validator, applications.Options{Clock: clk})
	va := virtualaccount.NewService(store, store.Members(), store.VirtualAccounts(), led, virtualaccount.Config{}, clk, nil)
	dep := deposits.NewService(store, store.DepositRequests(), store.Partners(), led, clk, nil)
	set := settlement.NewService(store.Applications(), store.Partners(), clk, nil)
	authSvc := auth.NewService(store.Members(), "test-secret")

	partner := &models.PartnerGroup{ID: uuid.New(), Name: "Acme Motors", BusinessNumber: "123-45-67890", Active: true}
	require.NoError(t, store.Partners().Create(context.Background(), partner))

	seed := func(username, role string, partnerID *uuid.UUID) {
		hash, err := auth.HashPassword("pw-" + username)
		require.NoError(t, err)
		store.Members().Seed(&models.Member{
			PartnerGroupID: partnerID,
			Username:       username,
			PasswordHash:   hash,
			Role:           role,
			ApprovalStatus: models.ApprovalApproved,
		})
	}
	seed("root", models.RoleAdmin, nil)
	seed("dealer", models.RoleMember, &partner.ID)

	h := router.New(router.Handlers{
		Auth:            auth.NewHandler(authSvc, nil),
		Registry:        registry.NewHandler(registry.NewService(store.Partners(), store.Members(), nil), nil),
		Dashboard:       dashboard.NewHandler(led, va, nil),
		Applications:    applications.NewHandler(apps, nil),
		VirtualAccounts: virtualaccount.NewHandler(va, nil),
		DepositRequests: deposits.NewHandler(dep, nil),
		Settlements:     settlement.NewHandler(set, nil),
	}, router.Deps{
		Tokens:  authSvc,
		Members: store.Members(),
		Schemas: validator,
		Limiter: middleware.NewRateLimiter(1000, 1000, nil),
		DB:      db,
	})
	return &server{handler: h, partner: partner.ID}
}

func (s *server) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) login(t *testing.T, username string, partnerID *uuid.UUID) string {
	t.Helper()
	body := map[string]any{"username": username, "password": "pw-" + username}
	if partnerID != nil {
		body["partner_id"] = partnerID.String()
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", "", string(raw))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp auth.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func TestRouter_AuthAndRoles(t *testing.T) {
	s := newServer(t, pinger{})

	rec := s.do(t, http.MethodGet, "/api/v1/account/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	dealer := s.login(t, "dealer", &s.partner)
	rec = s.do(t, http.MethodGet, "/api/v1/account/me", dealer, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/virtual-accounts/sweep", dealer, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/settlements", dealer, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	root := s.login(t, "root", nil)
	rec = s.do(t, http.MethodPost, "/api/v1/admin/virtual-accounts/sweep", root, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/account/me", dealer, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_DepositSchema(t *testing.T) {
	s := newServer(t, pinger{})
	root := s.login(t, "root", nil)

	rec := s.do(t, http.MethodPost, "/api/v1/admin/ledger/deposits", root, `{"member_id":"not-a-uuid","amount":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/ledger/deposits", root, `{"member_id":"`+uuid.NewString()+`","amount":-5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_PrepaidActivationFlow(t *testing.T) {
	s := newServer(t, pinger{})
	dealer := s.login(t, "dealer", &s.partner)
	root := s.login(t, "root", nil)

	rec := s.do(t, http.MethodGet, "/api/v1/account/me", dealer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me dashboard.MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))

	rec = s.do(t, http.MethodPost, "/api/v1/applications", dealer,
		`{"vehicle":{"car_number":"12가3456","vehicle_name":"Sonata"},"desired_start_date":"2024-06-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var app models.InsuranceApplication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &app))

	rec = s.do(t, http.MethodPost, "/api/v1/applications/"+app.ID.String()+"/approve", root, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/applications/"+app.ID.String()+"/activate", root, "")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	deposit := `{"member_id":"` + me.Member.ID.String() + `","amount":20000}`
	rec = s.do(t, http.MethodPost, "/api/v1/admin/ledger/deposits", root, deposit)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/applications/"+app.ID.String()+"/activate", root, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/ledger/balance", dealer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var bal dashboard.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, int64(20000-models.DefaultPremium), bal.Balance)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newServer(t, pinger{})
	rec := s.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "brokerline_http_inflight_requests")

	down := newServer(t, pinger{err: errors.New("connection refused")})
	rec = down.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_RegistrationNeedsApproval(t *testing.T) {
	s := newServer(t, pinger{})
	body := `{"partner_id":"` + s.partner.String() + `","username":"newbie","password":"pw-newbie"}`
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m models.Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))

	login := `{"partner_id":"` + s.partner.String() + `","username":"newbie","password":"pw-newbie"}`
	rec = s.do(t, http.MethodPost, "/api/v1/auth/login", "", login)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	root := s.login(t, "root", nil)
	rec = s.do(t, http.MethodPost, "/api/v1/admin/members/"+m.ID.String()+"/approve", root, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	s.login(t, "newbie", &s.partner)
}
