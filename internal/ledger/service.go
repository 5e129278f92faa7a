package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brokerline/backend/internal/apperr"
	"github.com/brokerline/backend/internal/clock"
	"github.com/brokerline/backend/internal/metrics"
	"github.com/brokerline/backend/internal/models"
)

// RecentDepositLimit is how many deposits the account page shows.
const RecentDepositLimit = 3

// DepositInput describes a confirmed bank deposit.
type DepositInput struct {
	MemberID      uuid.UUID
	BankName      string
	AccountNumber string
	Amount        int64
	DepositTime   time.Time
}

// AdjustmentInput describes a manual correction. Actor is the administrator.
type AdjustmentInput struct {
	MemberID uuid.UUID
	Decrease int64
	Increase int64
	Note     string
	Actor    *uuid.UUID
}

// Reconciliation compares the stored balance with the balance derived from history.
type Reconciliation struct {
	MemberID       uuid.UUID `json:"member_id"`
	Deposits       int64     `json:"deposits"`
	Adjustments    int64     `json:"adjustments"`
	FundedPremiums int64     `json:"funded_premiums"`
	Expected       int64     `json:"expected"`
	Actual         int64     `json:"actual"`
	Drift          int64     `json:"drift"`
}

// Balanced reports whether the stored balance matches history.
func (r Reconciliation) Balanced() bool { return r.Drift == 0 }

// Service is the single writer of member point balances. Every mutation
// runs in one transaction that updates the member row and appends history.
type Service struct {
	pool        TxBeginner
	members     MemberRepo
	deposits    DepositRepo
	adjustments AdjustmentRepo
	premiums    PremiumSummer
	clock       clock.Clock
	log         *slog.Logger
}

// NewService returns a ledger Service.
func NewService(pool TxBeginner, members MemberRepo, deposits DepositRepo, adjustments AdjustmentRepo, premiums PremiumSummer, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System{Location: clock.KST}
	}
	return &Service{
		pool:        pool,
		members:     members,
		deposits:    deposits,
		adjustments: adjustments,
		premiums:    premiums,
		clock:       clk,
		log:         logger,
	}
}

// GetBalance returns the member's current balance.
func (s *Service) GetBalance(ctx context.Context, memberID uuid.UUID) (int64, error) {
	m, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return 0, apperr.FromStore(err)
	}
	return m.PointBalance, nil
}

// RecentDeposits returns up to limit deposits, newest first.
func (s *Service) RecentDeposits(ctx context.Context, memberID uuid.UUID, limit int) ([]*models.DepositHistory, error) {
	if limit <= 0 {
		limit = RecentDepositLimit
	}
	list, err := s.deposits.ListRecentByMember(ctx, memberID, limit)
	return list, apperr.FromStore(err)
}

// AdjustmentHistory lists the member's manual corrections, newest first.
func (s *Service) AdjustmentHistory(ctx context.Context, memberID uuid.UUID) ([]*models.PointAdjustment, error) {
	list, err := s.adjustments.ListByMember(ctx, memberID)
	return list, apperr.FromStore(err)
}

// RecordDeposit credits a confirmed deposit in its own transaction.
func (s *Service) RecordDeposit(ctx context.Context, in DepositInput) (*models.DepositHistory, error) {
	var d *models.DepositHistory
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		d, err = s.RecordDepositTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("deposit recorded", "member_id", in.MemberID, "amount", in.Amount, "deposit_id", d.ID)
	return d, nil
}

// RecordDepositTx appends a DepositHistory row and raises the balance by the
// same amount inside the caller's transaction.
func (s *Service) RecordDepositTx(ctx context.Context, tx pgx.Tx, in DepositInput) (*models.DepositHistory, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("deposit of %d: %w", in.Amount, apperr.ErrInvalidAmount)
	}
	m, err := s.members.GetByIDForUpdate(ctx, tx, in.MemberID)
	if err != nil {
		return nil, fmt.Errorf("lock member: %w", apperr.FromStore(err))
	}
	depositTime := in.DepositTime
	if depositTime.IsZero() {
		depositTime = s.clock.Now()
	}
	d := &models.DepositHistory{
		ID:             uuid.New(),
		MemberID:       m.ID,
		PartnerGroupID: m.PartnerID(),
		BankName:       in.BankName,
		AccountNumber:  in.AccountNumber,
		DepositAmount:  in.Amount,
		DepositDate:    depositTime,
	}
	if err := s.deposits.CreateTx(ctx, tx, d); err != nil {
		return nil, fmt.Errorf("insert deposit: %w", apperr.FromStore(err))
	}
	if _, err := s.members.AddPoints(ctx, tx, m.ID, in.Amount); err != nil {
		return nil, fmt.Errorf("credit balance: %w", apperr.FromStore(err))
	}
	metrics.RecordLedgerMutation("deposit")
	return d, nil
}

// ApplyAdjustment records an administrator correction and applies
// increase-decrease to the balance. There is no floor: an adjustment may
// leave the balance negative.
func (s *Service) ApplyAdjustment(ctx context.Context, in AdjustmentInput) (*models.PointAdjustment, error) {
	if in.Decrease < 0 || in.Increase < 0 {
		return nil, fmt.Errorf("adjustment -%d/+%d: %w", in.Decrease, in.Increase, apperr.ErrInvalidAmount)
	}
	if in.Decrease == 0 && in.Increase == 0 {
		return nil, fmt.Errorf("empty adjustment: %w", apperr.ErrInvalidAmount)
	}
	var a *models.PointAdjustment
	var newBalance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		m, err := s.members.GetByIDForUpdate(ctx, tx, in.MemberID)
		if err != nil {
			return fmt.Errorf("lock member: %w", apperr.FromStore(err))
		}
		a = &models.PointAdjustment{
			ID:             uuid.New(),
			MemberID:       m.ID,
			PartnerGroupID: m.PartnerID(),
			DecreaseAmount: in.Decrease,
			IncreaseAmount: in.Increase,
			ChangeAmount:   in.Increase - in.Decrease,
			Note:           in.Note,
			CreatedBy:      in.Actor,
		}
		if err := s.adjustments.CreateTx(ctx, tx, a); err != nil {
			return fmt.Errorf("insert adjustment: %w", apperr.FromStore(err))
		}
		newBalance, err = s.members.AddPoints(ctx, tx, m.ID, a.ChangeAmount)
		if err != nil {
			return fmt.Errorf("apply adjustment: %w", apperr.FromStore(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordLedgerMutation("adjustment")
	s.log.Info("points adjusted", "member_id", in.MemberID, "change", a.ChangeAmount, "balance", newBalance)
	if newBalance < 0 {
		s.log.Warn("adjustment left balance negative", "member_id", in.MemberID, "balance", newBalance)
	}
	return a, nil
}

// DeductForApplication charges amount in its own transaction.
func (s *Service) DeductForApplication(ctx context.Context, memberID uuid.UUID, amount int64) (int64, error) {
	var newBalance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		newBalance, err = s.DeductForApplicationTx(ctx, tx, memberID, amount)
		return err
	})
	return newBalance, err
}

// DeductForApplicationTx lowers the balance by amount inside the caller's
// transaction. The conditional update holds the member row lock until commit,
// so concurrent deductions on one member serialize and cannot overdraw.
func (s *Service) DeductForApplicationTx(ctx context.Context, tx pgx.Tx, memberID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deduction of %d: %w", amount, apperr.ErrInvalidAmount)
	}
	newBalance, err := s.members.DeductPoints(ctx, tx, memberID, amount)
	if errors.Is(err, pgx.ErrNoRows) {
		m, getErr := s.members.GetByIDForUpdate(ctx, tx, memberID)
		if getErr != nil {
			return 0, fmt.Errorf("lock member: %w", apperr.FromStore(getErr))
		}
		metrics.RecordInsufficientBalance()
		return 0, fmt.Errorf("balance %d < %d: %w", m.PointBalance, amount, apperr.ErrInsufficientBalance)
	}
	if err != nil {
		return 0, fmt.Errorf("deduct: %w", apperr.FromStore(err))
	}
	metrics.RecordLedgerMutation("deduction")
	return newBalance, nil
}

// Reconcile recomputes the member's balance from deposits, adjustments and
// charged premiums. The member row is locked so no mutation interleaves.
func (s *Service) Reconcile(ctx context.Context, memberID uuid.UUID) (Reconciliation, error) {
	rec := Reconciliation{MemberID: memberID}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		m, err := s.members.GetByIDForUpdate(ctx, tx, memberID)
		if err != nil {
			return apperr.FromStore(err)
		}
		rec.Actual = m.PointBalance
		if rec.Deposits, err = s.deposits.SumByMember(ctx, tx, memberID); err != nil {
			return apperr.FromStore(err)
		}
		if rec.Adjustments, err = s.adjustments.SumByMember(ctx, tx, memberID); err != nil {
			return apperr.FromStore(err)
		}
		if rec.FundedPremiums, err = s.premiums.SumDeductedPremiums(ctx, tx, memberID); err != nil {
			return apperr.FromStore(err)
		}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	rec.Expected = rec.Deposits + rec.Adjustments - rec.FundedPremiums
	rec.Drift = rec.Actual - rec.Expected
	if !rec.Balanced() {
		s.log.Error("ledger drift", "member_id", memberID, "expected", rec.Expected, "actual", rec.Actual)
	}
	return rec, nil
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
