// Package execution holds the river workers for background maintenance.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/brokerline/backend/internal/clock"
	"github.com/brokerline/backend/internal/ledger"
)

type SweepExpiredArgs struct{}

func (SweepExpiredArgs) Kind() string { return "sweep_expired_virtual_accounts" }

// Sweeper is satisfied by virtualaccount.Service.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type SweepExpiredWorker struct {
	river.WorkerDefaults[SweepExpiredArgs]
	sweeper Sweeper
	clock   clock.Clock
	log     *slog.Logger
}

func NewSweepExpiredWorker(s Sweeper, clk clock.Clock, log *slog.Logger) *SweepExpiredWorker {
	if clk == nil {
		clk = clock.System{Location: clock.KST}
	}
	if log == nil {
		log = slog.Default()
	}
	return &SweepExpiredWorker{sweeper: s, clock: clk, log: log}
}

func (w *SweepExpiredWorker) Work(ctx context.Context, job *river.Job[SweepExpiredArgs]) error {
	n, err := w.sweeper.SweepExpired(ctx, w.clock.Now())
	if err != nil {
		return fmt.Errorf("sweep expired virtual accounts: %w", err)
	}
	w.log.Info("sweep finished", "expired", n)
	return nil
}

type ReconcileLedgerArgs struct{}

func (ReconcileLedgerArgs) Kind() string { return "reconcile_ledger" }

// Reconciler is satisfied by ledger.Service.
type Reconciler interface {
	Reconcile(ctx context.Context, memberID uuid.UUID) (ledger.Reconciliation, error)
}

// MemberLister enumerates members to reconcile.
type MemberLister interface {
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// ReconcileLedgerWorker compares every stored balance with its history.
// Drift is reported, never corrected.
type ReconcileLedgerWorker struct {
	river.WorkerDefaults[ReconcileLedgerArgs]
	members MemberLister
	ledger  Reconciler
	log     *slog.Logger
}

func NewReconcileLedgerWorker(members MemberLister, r Reconciler, log *slog.Logger) *ReconcileLedgerWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ReconcileLedgerWorker{members: members, ledger: r, log: log}
}

func (w *ReconcileLedgerWorker) Work(ctx context.Context, job *river.Job[ReconcileLedgerArgs]) error {
	ids, err := w.members.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	drifted := 0
	for _, id := range ids {
		rec, err := w.ledger.Reconcile(ctx, id)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", id, err)
		}
		if !rec.Balanced() {
			drifted++
		}
	}
	w.log.Info("ledger reconciled", "members", len(ids), "drifted", drifted)
	return nil
}

// PeriodicJobs schedules the sweep every sweepEvery (and once at start-up)
// and the reconciliation once a day.
func PeriodicJobs(sweepEvery time.Duration) []*river.PeriodicJob {
	if sweepEvery <= 0 {
		sweepEvery = time.Hour
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(sweepEvery),
			func() (river.JobArgs, *river.InsertOpts) { return SweepExpiredArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) { return ReconcileLedgerArgs{}, nil },
			nil,
		),
	}
}

// AddWorkers registers every maintenance worker.
func AddWorkers(workers *river.Workers, sweep *SweepExpiredWorker, reconcile *ReconcileLedgerWorker) {
	river.AddWorker(workers, sweep)
	river.AddWorker(workers, reconcile)
}
