// Package memstore is an in-memory implementation of the repository
// interfaces. Transactions are serialized and roll back to a snapshot, so
// services can be exercised for atomicity without a database.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brokerline/backend/internal/models"
)

type state struct {
	partners        map[uuid.UUID]models.PartnerGroup
	members         map[uuid.UUID]models.Member
	applications    map[uuid.UUID]models.InsuranceApplication
	deposits        []models.DepositHistory
	adjustments     []models.PointAdjustment
	virtualAccounts map[uuid.UUID]models.VirtualAccount
	depositRequests map[uuid.UUID]models.DepositRequest
}

func newState() state {
	return state{
		partners:        make(map[uuid.UUID]models.PartnerGroup),
		members:         make(map[uuid.UUID]models.Member),
		applications:    make(map[uuid.UUID]models.InsuranceApplication),
		virtualAccounts: make(map[uuid.UUID]models.VirtualAccount),
		depositRequests: make(map[uuid.UUID]models.DepositRequest),
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.partners {
		c.partners[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.applications {
		c.applications[k] = v
	}
	for k, v := range s.virtualAccounts {
		c.virtualAccounts[k] = v
	}
	for k, v := range s.depositRequests {
		c.depositRequests[k] = v
	}
	c.deposits = append([]models.DepositHistory(nil), s.deposits...)
	c.adjustments = append([]models.PointAdjustment(nil), s.adjustments...)
	return c
}

// Store holds all entities. txMu is held for the life of a top-level
// transaction; mu guards the maps for each individual call.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data state

	failures map[string]error
	down     bool
}

func New() *Store {
	return &Store{data: newState(), failures: make(map[string]error)}
}

// FailNext makes the next call of the named operation (e.g. "applications.UpdateLifecycle") return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// SetDown makes Begin fail as if the database were unreachable.
func (s *Store) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// injected returns and clears a pending failure. Caller holds mu.
func (s *Store) injected(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

// Begin starts a serialized transaction.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return nil, fmt.Errorf("dial: %w", context.DeadlineExceeded)
	}
	s.txMu.Lock()
	s.mu.Lock()
	snap := s.data.clone()
	s.mu.Unlock()
	return &Tx{store: s, snapshot: snap}, nil
}

// Tx restores its snapshot on rollback. A Tx with a parent is a savepoint.
type Tx struct {
	store    *Store
	snapshot state
	parent   *Tx
	done     bool
}

func (t *Tx) Begin(context.Context) (pgx.Tx, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return &Tx{store: t.store, snapshot: t.store.data.clone(), parent: t}, nil
}

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	err := t.store.injected("tx.Commit")
	t.store.mu.Unlock()
	if err != nil && t.parent == nil {
		t.rollback()
		return err
	}
	t.done = true
	if t.parent == nil {
		t.store.txMu.Unlock()
	}
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.rollback()
	return nil
}

func (t *Tx) rollback() {
	t.done = true
	t.store.mu.Lock()
	t.store.data = t.snapshot
	t.store.mu.Unlock()
	if t.parent == nil {
		t.store.txMu.Unlock()
	}
}

func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *Tx) Conn() *pgx.Conn { return nil }

// uniqueViolation mirrors the error Postgres returns for a duplicate key.
func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

// Members returns the member repository view.
func (s *Store) Members() *MemberRepo { return &MemberRepo{s} }

func (s *Store) Partners() *PartnerRepo { return &PartnerRepo{s} }

func (s *Store) Applications() *ApplicationRepo { return &ApplicationRepo{s} }

func (s *Store) Deposits() *DepositRepo { return &DepositRepo{s} }

func (s *Store) Adjustments() *AdjustmentRepo { return &AdjustmentRepo{s} }

func (s *Store) VirtualAccounts() *VirtualAccountRepo { return &VirtualAccountRepo{s} }

func (s *Store) DepositRequests() *DepositRequestRepo { return &DepositRequestRepo{s} }
