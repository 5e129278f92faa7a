package deposits_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerline/backend/internal/apperr"
	"github.com/brokerline/backend/internal/clock"
	"github.com/brokerline/backend/internal/deposits"
	"github.com/brokerline/backend/internal/ledger"
	"github.com/brokerline/backend/internal/memstore"
	"github.com/brokerline/backend/internal/middleware"
	"github.com/brokerline/backend/internal/models"
)

type fixture struct {
	store  *memstore.Store
	ledger *ledger.Service
	svc    *deposits.Service
	member *models.Member
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	clk := clock.Fixed{T: time.Date(2024, 6, 3, 9, 0, 0, 0, clock.KST)}
	led := ledger.NewService(store, store.Members(), store.Deposits(), store.Adjustments(), store.Applications(), clk, nil)
	p := &models.PartnerGroup{ID: uuid.New(), Name: "Alpha", BusinessNumber: "1", AccountNumber: "110-222-333"}
	require.NoError(t, store.Partners().Create(context.Background(), p))
	m := &models.Member{ID: uuid.New(), PartnerGroupID: &p.ID, Username: "dealer", CompanyName: "Dealer Co"}
	store.Members().Seed(m)
	svc := deposits.NewService(store, store.DepositRequests(), store.Partners(), led, clk, nil)
	return &fixture{store: store, ledger: led, svc: svc, member: m}
}

func TestRequestConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Request(ctx, f.member, deposits.RequestInput{Amount: 50000, BankName: "Shinhan"})
	require.NoError(t, err)
	assert.Equal(t, models.DepositRequested, d.Status)
	assert.Equal(t, "Dealer Co", d.AccountHolder)

	pending, err := f.svc.ListPending(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	hist, err := f.svc.Confirm(ctx, d.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), hist.DepositAmount)
	assert.Equal(t, "110-222-333", hist.AccountNumber)
	assert.Equal(t, "Shinhan", hist.BankName)

	bal, _ := f.ledger.GetBalance(ctx, f.member.ID)
	assert.Equal(t, int64(50000), bal)

	_, err = f.svc.Confirm(ctx, d.ID, time.Time{})
	assert.ErrorIs(t, err, apperr.ErrAlreadyConsumed)
	assert.ErrorIs(t, f.svc.Cancel(ctx, d.ID), apperr.ErrAlreadyConsumed)

	pending, err = f.svc.ListPending(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// flakyPartners fails every lookup with err.
type flakyPartners struct{ err error }

func (p flakyPartners) GetByID(context.Context, uuid.UUID) (*models.PartnerGroup, error) {
	return nil, p.err
}

func TestConfirm_PartnerLookupFailureAborts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.svc.Request(ctx, f.member, deposits.RequestInput{Amount: 50000})
	require.NoError(t, err)

	down := &pgconn.PgError{Code: "08006", Message: "connection failure"}
	svc := deposits.NewService(f.store, f.store.DepositRequests(), flakyPartners{err: down}, f.ledger, nil, nil)
	_, err = svc.Confirm(ctx, d.ID, time.Time{})
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)

	svc = deposits.NewService(f.store, f.store.DepositRequests(), flakyPartners{err: errors.New("scan failed")}, f.ledger, nil, nil)
	_, err = svc.Confirm(ctx, d.ID, time.Time{})
	require.Error(t, err)

	pending, err := f.svc.ListPending(ctx, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1, "request stays open")
	assert.Equal(t, models.DepositRequested, pending[0].Status)
	bal, _ := f.ledger.GetBalance(ctx, f.member.ID)
	assert.Zero(t, bal)
}

func TestConfirm_UnknownPartnerBooksNoAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gone := uuid.New()
	loner := &models.Member{ID: uuid.New(), PartnerGroupID: &gone, Username: "loner"}
	f.store.Members().Seed(loner)
	d, err := f.svc.Request(ctx, loner, deposits.RequestInput{Amount: 7000})
	require.NoError(t, err)

	hist, err := f.svc.Confirm(ctx, d.ID, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, hist.AccountNumber)
	assert.Equal(t, int64(7000), hist.DepositAmount)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.svc.Request(ctx, f.member, deposits.RequestInput{Amount: 1000})
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, d.ID))
	_, err = f.svc.Confirm(ctx, d.ID, time.Time{})
	assert.ErrorIs(t, err, apperr.ErrAlreadyConsumed)
	bal, _ := f.ledger.GetBalance(ctx, f.member.ID)
	assert.Zero(t, bal)
}

func TestRequest_Rejects(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Request(context.Background(), f.member, deposits.RequestInput{Amount: 0})
	assert.ErrorIs(t, err, apperr.ErrInvalidAmount)
	_, err = f.svc.Request(context.Background(), &models.Member{ID: uuid.New()}, deposits.RequestInput{Amount: 10})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.Confirm(context.Background(), uuid.New(), time.Time{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestHandler_Create(t *testing.T) {
	f := newFixture(t)
	h := deposits.NewHandler(f.svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/deposit-requests", strings.NewReader(`{"amount":20000,"account_holder":"Kim","bank_name":"KB"}`))
	req = req.WithContext(middleware.WithMember(req.Context(), f.member))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/deposit-requests", strings.NewReader(`{"amount":-5}`))
	req = req.WithContext(middleware.WithMember(req.Context(), f.member))
	rec = httptest.NewRecorder()
	h.Create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
