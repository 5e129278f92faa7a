package applications_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerline/backend/internal/applications"
	"github.com/brokerline/backend/internal/apperr"
	"github.com/brokerline/backend/internal/clock"
	"github.com/brokerline/backend/internal/ledger"
	"github.com/brokerline/backend/internal/memstore"
	"github.com/brokerline/backend/internal/models"
	"github.com/brokerline/backend/internal/validation"
)

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, clock.KST)

type fixture struct {
	store   *memstore.Store
	ledger  *ledger.Service
	svc     *applications.Service
	partner uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	clk := clock.Fixed{T: testNow}
	led := ledger.NewService(store, store.Members(), store.Deposits(), store.Adjustments(), store.Applications(), clk, nil)
	svc := applications.NewService(store, store.Applications(), store.Members(), led, validation.MustNew(), applications.Options{Clock: clk})
	return &fixture{store: store, ledger: led, svc: svc, partner: uuid.New()}
}

func (f *fixture) member(balance int64, method string) *models.Member {
	p := f.partner
	m := &models.Member{
		ID:               uuid.New(),
		PartnerGroupID:   &p,
		Username:         uuid.NewString()[:8],
		Role:             models.RoleMember,
		ApprovalStatus:   models.ApprovalApproved,
		PointBalance:     balance,
		SettlementMethod: method,
	}
	f.store.Members().Seed(m)
	return m
}

// approved submits and partner-approves one application for m.
func (f *fixture) approved(t *testing.T, m *models.Member) *models.InsuranceApplication {
	t.Helper()
	ctx := context.Background()
	a, err := f.svc.Submit(ctx, m, applications.SubmitInput{
		Vehicle:          models.Vehicle{CarNumber: "12가3456", VehicleName: "Sonata"},
		DesiredStartDate: testNow.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	a, err = f.svc.PartnerApprove(ctx, a.ID)
	require.NoError(t, err)
	return a
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	m := f.member(0, models.SettlementPoint)

	a, err := f.svc.Submit(context.Background(), m, applications.SubmitInput{
		Vehicle:          models.Vehicle{CarNumber: "12가3456", VehicleName: "Sonata"},
		DesiredStartDate: testNow,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, a.Status)
	assert.False(t, a.PointDeducted)
	assert.Equal(t, models.DefaultPremium, a.Premium)
	assert.Equal(t, f.partner, a.PartnerGroupID)
	assert.Equal(t, int64(0), f.balance(t, m.ID), "submit does not check or touch the balance")
}

func TestSubmit_CutsStartDateInClockZone(t *testing.T) {
	nz := time.FixedZone("NZST", 12*60*60)
	store := memstore.New()
	clk := clock.Fixed{T: time.Date(2024, 5, 1, 9, 0, 0, 0, nz)}
	led := ledger.NewService(store, store.Members(), store.Deposits(), store.Adjustments(), store.Applications(), clk, nil)
	svc := applications.NewService(store, store.Applications(), store.Members(), led, validation.MustNew(), applications.Options{Clock: clk})
	p := uuid.New()
	m := &models.Member{ID: uuid.New(), PartnerGroupID: &p, Username: "kiwi", Role: models.RoleMember, ApprovalStatus: models.ApprovalApproved}
	store.Members().Seed(m)

	a, err := svc.Submit(context.Background(), m, applications.SubmitInput{
		Vehicle:          models.Vehicle{CarNumber: "12가3456", VehicleName: "Sonata"},
		DesiredStartDate: time.Date(2024, 5, 2, 0, 0, 0, 0, nz),
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", a.DesiredStartDate.In(nz).Format(time.DateOnly))
	assert.True(t, a.DesiredStartDate.Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, nz)), "got %s", a.DesiredStartDate)
}

func TestSubmit_Rejects(t *testing.T) {
	f := newFixture(t)
	m := f.member(0, models.SettlementPoint)
	root := &models.Member{ID: uuid.New(), Role: models.RoleAdmin}

	_, err := f.svc.Submit(context.Background(), root, applications.SubmitInput{Vehicle: models.Vehicle{CarNumber: "1", VehicleName: "x"}, DesiredStartDate: testNow})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Submit(context.Background(), m, applications.SubmitInput{Vehicle: models.Vehicle{VehicleName: "x"}, DesiredStartDate: testNow})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Submit(context.Background(), m, applications.SubmitInput{Vehicle: models.Vehicle{CarNumber: "1", VehicleName: "x"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestActivate_FundsOnceAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	m := f.member(9500, models.SettlementPoint)
	a := f.approved(t, m)

	got, err := f.svc.Activate(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.True(t, got.PointDeducted)
	require.NotNil(t, got.ActivatedAt)
	assert.Equal(t, int64(0), f.balance(t, m.ID))

	again, err := f.svc.Activate(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, again.Status)
	assert.Equal(t, int64(0), f.balance(t, m.ID), "second activate must not deduct")

	rec, err := f.ledger.Reconcile(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, rec.Balanced(), "drift %d", rec.Drift)
}

func TestActivate_InsufficientBalanceLeavesApplicationUntouched(t *testing.T) {
	f := newFixture(t)
	m := f.member(0, models.SettlementPoint)
	a := f.approved(t, m)

	_, err := f.svc.Activate(context.Background(), a.ID)
	require.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	got, err := f.svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartnerApproved, got.Status)
	assert.False(t, got.PointDeducted)
	assert.Nil(t, got.ActivatedAt)
	assert.Equal(t, int64(0), f.balance(t, m.ID))

	// Funding the account makes the retry succeed.
	_, err = f.ledger.RecordDeposit(context.Background(), ledger.DepositInput{MemberID: m.ID, Amount: 10000})
	require.NoError(t, err)
	got, err = f.svc.Activate(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, got.PointDeducted)
	assert.Equal(t, int64(500), f.balance(t, m.ID))
}

func TestActivate_RollsBackDeductionWhenUpdateFails(t *testing.T) {
	f := newFixture(t)
	m := f.member(9500, models.SettlementPoint)
	a := f.approved(t, m)

	f.store.FailNext("applications.UpdateLifecycle", errors.New("disk full"))
	_, err := f.svc.Activate(context.Background(), a.ID)
	require.Error(t, err)

	assert.Equal(t, int64(9500), f.balance(t, m.ID))
	got, _ := f.svc.Get(context.Background(), a.ID)
	assert.Equal(t, models.StatusPartnerApproved, got.Status)
	assert.False(t, got.PointDeducted)
}

func TestActivate_CommitFailureLeavesNoPartialState(t *testing.T) {
	f := newFixture(t)
	m := f.member(9500, models.SettlementPoint)
	a := f.approved(t, m)

	f.store.FailNext("tx.Commit", errors.New("connection reset"))
	_, err := f.svc.Activate(context.Background(), a.ID)
	require.Error(t, err)
	assert.Equal(t, int64(9500), f.balance(t, m.ID))
	got, _ := f.svc.Get(context.Background(), a.ID)
	assert.False(t, got.PointDeducted)
}

func TestActivate_PostpaidSkipsDeduction(t *testing.T) {
	f := newFixture(t)
	m := f.member(0, models.SettlementPostpaid)
	a := f.approved(t, m)

	got, err := f.svc.Activate(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.False(t, got.PointDeducted)
	assert.Equal(t, int64(0), f.balance(t, m.ID))

	_, err = f.svc.Activate(context.Background(), a.ID)
	assert.NoError(t, err, "replay on a postpaid activation is a no-op")
}

// memstore runs transactions one at a time, so this checks service-level
// accounting only. The row-lock path is covered by
// TestMemberRepo_DeductPointsConcurrent against a real database.
func TestActivate_ConcurrentSharedCreator(t *testing.T) {
	f := newFixture(t)
	m := f.member(9500, models.SettlementPoint)
	a1 := f.approved(t, m)
	a2 := f.approved(t, m)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uuid.UUID{a1.ID, a2.ID} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.svc.Activate(context.Background(), id)
		}(i, id)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInsufficientBalance):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, int64(0), f.balance(t, m.ID))
}

func TestTransitions_NeverRegress(t *testing.T) {
	f := newFixture(t)
	m := f.member(20000, models.SettlementPoint)
	ctx := context.Background()

	a, err := f.svc.Submit(ctx, m, applications.SubmitInput{
		Vehicle:          models.Vehicle{CarNumber: "34나5678", VehicleName: "K5"},
		DesiredStartDate: testNow,
	})
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "submitted cannot skip approval")
	_, err = f.svc.Terminate(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = f.svc.PartnerApprove(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.svc.PartnerApprove(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = f.svc.Activate(ctx, a.ID)
	require.NoError(t, err)
	got, err := f.svc.Terminate(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTerminated, got.Status)
	assert.True(t, got.PointDeducted, "funding fact survives termination")
	assert.Equal(t, int64(10500), f.balance(t, m.ID), "no refund on terminate")

	for _, op := range []func(context.Context, uuid.UUID) (*models.InsuranceApplication, error){
		f.svc.PartnerApprove, f.svc.Activate, f.svc.Terminate,
	} {
		_, err := op(ctx, a.ID)
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	}
}

func TestTerminate_FromPartnerApproved(t *testing.T) {
	f := newFixture(t)
	m := f.member(0, models.SettlementPoint)
	a := f.approved(t, m)

	got, err := f.svc.Terminate(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTerminated, got.Status)
	assert.False(t, got.PointDeducted)
	assert.NotNil(t, got.TerminatedAt)
}

func TestActivate_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Activate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestList_Filters(t *testing.T) {
	f := newFixture(t)
	m1 := f.member(0, models.SettlementPoint)
	m2 := f.member(0, models.SettlementPoint)
	f.approved(t, m1)
	f.approved(t, m2)
	_, err := f.svc.Submit(context.Background(), m1, applications.SubmitInput{
		Vehicle:          models.Vehicle{CarNumber: "1", VehicleName: "x"},
		DesiredStartDate: testNow,
	})
	require.NoError(t, err)

	all, err := f.svc.List(context.Background(), models.ApplicationFilter{PartnerGroupID: &f.partner})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := f.svc.List(context.Background(), models.ApplicationFilter{CreatedBy: &m1.ID, Status: models.StatusSubmitted})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = f.svc.List(context.Background(), models.ApplicationFilter{Status: "bogus"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
