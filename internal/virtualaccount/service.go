// Package virtualaccount issues short-lived collection accounts and turns
// confirmed payments into ledger deposits.
package virtualaccount

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brokerline/backend/internal/apperr"
	"github.com/brokerline/backend/internal/clock"
	"github.com/brokerline/backend/internal/ledger"
	"github.com/brokerline/backend/internal/metrics"
	"github.com/brokerline/backend/internal/models"
)

const (
	DefaultValidDays   = 3
	DefaultMaxAttempts = 5
	DefaultBankName    = "IBK"
	DefaultPrefix      = "7979"
)

type Config struct {
	BankName    string
	Prefix      string
	ValidDays   int
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.BankName == "" {
		c.BankName = DefaultBankName
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.ValidDays <= 0 {
		c.ValidDays = DefaultValidDays
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Payment is the result of a confirmed virtual account deposit.
type Payment struct {
	Account *models.VirtualAccount `json:"virtual_account"`
	Deposit *models.DepositHistory `json:"deposit"`
}

type Service struct {
	pool     TxBeginner
	members  MemberLocker
	accounts Repository
	ledger   DepositRecorder
	cfg      Config
	next     NumberGenerator
	clock    clock.Clock
	log      *slog.Logger
}

func NewService(pool TxBeginner, members MemberLocker, accounts Repository, recorder DepositRecorder, cfg Config, clk clock.Clock, log *slog.Logger) *Service {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.System{Location: clock.KST}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:     pool,
		members:  members,
		accounts: accounts,
		ledger:   recorder,
		cfg:      cfg,
		next:     RandomNumbers(cfg.Prefix),
		clock:    clk,
		log:      log,
	}
}

// WithNumberGenerator replaces the account number source.
func (s *Service) WithNumberGenerator(g NumberGenerator) *Service {
	s.next = g
	return s
}

// ExpiryFor returns the last valid date of an account issued at t: the
// issue date in the business timezone plus the validity window, at midnight.
func (s *Service) ExpiryFor(t time.Time) time.Time {
	return s.today(t).AddDate(0, 0, s.cfg.ValidDays)
}

func (s *Service) today(now time.Time) time.Time {
	return clock.StartOfDay(now.In(clock.LocationOf(s.clock)))
}

// overdue reports whether v's last valid date is already behind now.
func (s *Service) overdue(v *models.VirtualAccount, now time.Time) bool {
	return v.ExpiryDate.Before(s.today(now))
}

// Issue expires the member's pending account, if any, and creates a new one
// in the same transaction. The member row lock serializes concurrent issues.
func (s *Service) Issue(ctx context.Context, memberID uuid.UUID, amount int64) (*models.VirtualAccount, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("requested %d: %w", amount, apperr.ErrInvalidAmount)
	}
	now := s.clock.Now()
	if _, err := s.SweepExpired(ctx, now); err != nil {
		s.log.Warn("lazy sweep failed", "error", err)
	}

	var v *models.VirtualAccount
	var replaced int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		m, err := s.members.GetByIDForUpdate(ctx, tx, memberID)
		if err != nil {
			return fmt.Errorf("lock member: %w", apperr.FromStore(err))
		}
		replaced, err = s.accounts.ExpirePendingForMember(ctx, tx, m.ID)
		if err != nil {
			return fmt.Errorf("expire pending: %w", apperr.FromStore(err))
		}
		holder := m.CompanyName
		if holder == "" {
			holder = m.Username
		}
		v = &models.VirtualAccount{
			ID:             uuid.New(),
			MemberID:       m.ID,
			PartnerGroupID: m.PartnerID(),
			AccountHolder:  holder,
			BankName:       s.cfg.BankName,
			DepositAmount:  amount,
			ExpiryDate:     s.ExpiryFor(now),
			Status:         models.VAStatusPending,
		}
		return s.insertUnique(ctx, tx, v)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordVirtualAccountIssued()
	if replaced > 0 {
		metrics.RecordVirtualAccountsExpired(replaced)
	}
	s.log.Info("virtual account issued", "member_id", memberID, "virtual_account_id", v.ID, "amount", amount, "replaced", replaced)
	return v, nil
}

// insertUnique inserts v under a savepoint, drawing a fresh number after
// each unique violation. A failed statement would otherwise abort the
// whole transaction.
func (s *Service) insertUnique(ctx context.Context, tx pgx.Tx, v *models.VirtualAccount) error {
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		number, err := s.next()
		if err != nil {
			return err
		}
		v.AccountNumber = number
		sp, err := tx.Begin(ctx)
		if err != nil {
			return fmt.Errorf("savepoint: %w", apperr.FromStore(err))
		}
		err = s.accounts.CreateTx(ctx, sp, v)
		if err == nil {
			if err := sp.Commit(ctx); err != nil {
				return fmt.Errorf("release savepoint: %w", apperr.FromStore(err))
			}
			return nil
		}
		_ = sp.Rollback(ctx)
		if !apperr.IsUniqueViolation(err) {
			return fmt.Errorf("insert virtual account: %w", apperr.FromStore(err))
		}
		s.log.Warn("account number collision", "attempt", attempt, "member_id", v.MemberID)
	}
	return fmt.Errorf("%d attempts: %w", s.cfg.MaxAttempts, apperr.ErrDuplicateAccountNumber)
}

// ConfirmPayment marks a pending account paid and records actualAmount as a
// deposit in the same transaction. Paid or expired accounts are rejected.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, actualAmount int64, depositTime time.Time) (*Payment, error) {
	if actualAmount <= 0 {
		return nil, fmt.Errorf("paid %d: %w", actualAmount, apperr.ErrInvalidAmount)
	}
	now := s.clock.Now()
	if depositTime.IsZero() {
		depositTime = now
	}
	if _, err := s.SweepExpired(ctx, now); err != nil {
		s.log.Warn("lazy sweep failed", "error", err)
	}
	var p Payment
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		v, err := s.accounts.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("lock virtual account: %w", apperr.FromStore(err))
		}
		if v.Status != models.VAStatusPending {
			return fmt.Errorf("virtual account %s is %s: %w", v.ID, v.Status, apperr.ErrAlreadyConsumed)
		}
		if s.overdue(v, now) {
			return fmt.Errorf("virtual account %s expired on %s: %w", v.ID, v.ExpiryDate.Format(time.DateOnly), apperr.ErrAlreadyConsumed)
		}
		paidAt := now
		if err := s.accounts.MarkPaid(ctx, tx, v.ID, paidAt); err != nil {
			return fmt.Errorf("mark paid: %w", apperr.FromStore(err))
		}
		v.Status = models.VAStatusPaid
		v.PaidAt = &paidAt
		d, err := s.ledger.RecordDepositTx(ctx, tx, ledger.DepositInput{
			MemberID:      v.MemberID,
			BankName:      v.BankName,
			AccountNumber: v.AccountNumber,
			Amount:        actualAmount,
			DepositTime:   depositTime,
		})
		if err != nil {
			return err
		}
		p = Payment{Account: v, Deposit: d}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if actualAmount != p.Account.DepositAmount {
		s.log.Warn("payment differs from requested amount", "virtual_account_id", id, "requested", p.Account.DepositAmount, "paid", actualAmount)
	}
	s.log.Info("virtual account paid", "virtual_account_id", id, "member_id", p.Account.MemberID, "amount", actualAmount)
	return &p, nil
}

// SweepExpired expires pending accounts whose last valid date is before
// today. Running it again changes nothing.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.accounts.SweepExpired(ctx, s.today(now))
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", apperr.FromStore(err))
	}
	if n > 0 {
		metrics.RecordVirtualAccountsExpired(n)
		s.log.Info("expired virtual accounts", "count", n)
	}
	return n, nil
}

// Pending returns the member's live account or ErrNotFound. An account past
// its expiry date is never live, even before the sweep has marked it.
func (s *Service) Pending(ctx context.Context, memberID uuid.UUID) (*models.VirtualAccount, error) {
	now := s.clock.Now()
	if _, err := s.SweepExpired(ctx, now); err != nil {
		s.log.Warn("lazy sweep failed", "error", err)
	}
	v, err := s.accounts.GetPendingByMember(ctx, memberID)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if s.overdue(v, now) {
		return nil, fmt.Errorf("virtual account %s expired: %w", v.ID, apperr.ErrNotFound)
	}
	return v, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.VirtualAccount, error) {
	v, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return v, nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", apperr.FromStore(err))
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", apperr.FromStore(err))
	}
	return nil
}
