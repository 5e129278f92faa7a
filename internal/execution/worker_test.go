package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerline/backend/internal/clock"
	"github.com/brokerline/backend/internal/ledger"
)

type stubSweeper struct {
	calls []time.Time
	n     int64
	err   error
}

func (s *stubSweeper) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	s.calls = append(s.calls, now)
	return s.n, s.err
}

func TestSweepExpiredWorker(t *testing.T) {
	now := time.Date(2024, 1, 1, 3, 0, 0, 0, clock.KST)
	s := &stubSweeper{n: 2}
	w := NewSweepExpiredWorker(s, clock.Fixed{T: now}, nil)

	require.NoError(t, w.Work(context.Background(), &river.Job[SweepExpiredArgs]{}))
	require.Len(t, s.calls, 1)
	assert.Equal(t, now, s.calls[0])

	s.err = errors.New("db down")
	assert.Error(t, w.Work(context.Background(), &river.Job[SweepExpiredArgs]{}), "errors are returned so river retries")
}

type stubLister []uuid.UUID

func (s stubLister) ListIDs(context.Context) ([]uuid.UUID, error) { return s, nil }

type stubReconciler map[uuid.UUID]int64

func (s stubReconciler) Reconcile(_ context.Context, id uuid.UUID) (ledger.Reconciliation, error) {
	return ledger.Reconciliation{MemberID: id, Drift: s[id]}, nil
}

func TestReconcileLedgerWorker(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	w := NewReconcileLedgerWorker(stubLister{a, b}, stubReconciler{b: 100}, nil)
	assert.NoError(t, w.Work(context.Background(), &river.Job[ReconcileLedgerArgs]{}))
}

func TestKinds(t *testing.T) {
	assert.Equal(t, "sweep_expired_virtual_accounts", SweepExpiredArgs{}.Kind())
	assert.Equal(t, "reconcile_ledger", ReconcileLedgerArgs{}.Kind())
	assert.Len(t, PeriodicJobs(0), 2)
}
