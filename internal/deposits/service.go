// Package deposits handles member notices of bank transfers. Confirming a
// notice credits the ledger in the same transaction.
package deposits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brokerline/backend/internal/apperr"
	"github.com/brokerline/backend/internal/clock"
	"github.com/brokerline/backend/internal/ledger"
	"github.com/brokerline/backend/internal/models"
)

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repository interface {
	Create(ctx context.Context, d *models.DepositRequest) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.DepositRequest, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, confirmedAt *time.Time) error
	ListByStatus(ctx context.Context, partnerID *uuid.UUID, status string) ([]*models.DepositRequest, error)
}

type PartnerReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PartnerGroup, error)
}

type DepositRecorder interface {
	RecordDepositTx(ctx context.Context, tx pgx.Tx, in ledger.DepositInput) (*models.DepositHistory, error)
}

type RequestInput struct {
	Amount        int64
	AccountHolder string
	BankName      string
}

type Service struct {
	pool     TxBeginner
	requests Repository
	partners PartnerReader
	ledger   DepositRecorder
	clock    clock.Clock
	log      *slog.Logger
}

func NewService(pool TxBeginner, requests Repository, partners PartnerReader, recorder DepositRecorder, clk clock.Clock, log *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System{Location: clock.KST}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{pool: pool, requests: requests, partners: partners, ledger: recorder, clock: clk, log: log}
}

// Request records that m sent a transfer. Nothing is credited until an
// administrator confirms it.
func (s *Service) Request(ctx context.Context, m *models.Member, in RequestInput) (*models.DepositRequest, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("deposit request of %d: %w", in.Amount, apperr.ErrInvalidAmount)
	}
	if m.IsRoot() {
		return nil, fmt.Errorf("root administrator has no point account: %w", apperr.ErrForbidden)
	}
	holder := strings.TrimSpace(in.AccountHolder)
	if holder == "" {
		holder = m.CompanyName
	}
	d := &models.DepositRequest{
		ID:             uuid.New(),
		MemberID:       m.ID,
		PartnerGroupID: m.PartnerID(),
		Amount:         in.Amount,
		AccountHolder:  holder,
		BankName:       strings.TrimSpace(in.BankName),
		Status:         models.DepositRequested,
	}
	if err := s.requests.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create deposit request: %w", apperr.FromStore(err))
	}
	s.log.Info("deposit requested", "request_id", d.ID, "member_id", m.ID, "amount", d.Amount)
	return d, nil
}

// Confirm credits the requested amount to the member. The deposit is booked
// against the partner's receiving account.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, depositTime time.Time) (*models.DepositHistory, error) {
	var hist *models.DepositHistory
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		d, err := s.requests.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("lock deposit request: %w", apperr.FromStore(err))
		}
		if d.Status != models.DepositRequested {
			return fmt.Errorf("deposit request %s is %s: %w", d.ID, d.Status, apperr.ErrAlreadyConsumed)
		}
		account := ""
		p, err := s.partners.GetByID(ctx, d.PartnerGroupID)
		switch err = apperr.FromStore(err); {
		case err == nil:
			account = p.AccountNumber
		case !errors.Is(err, apperr.ErrNotFound):
			return fmt.Errorf("load partner: %w", err)
		}
		now := s.clock.Now()
		if err := s.requests.UpdateStatus(ctx, tx, d.ID, models.DepositConfirmed, &now); err != nil {
			return fmt.Errorf("confirm deposit request: %w", apperr.FromStore(err))
		}
		if depositTime.IsZero() {
			depositTime = d.CreatedAt
		}
		hist, err = s.ledger.RecordDepositTx(ctx, tx, ledger.DepositInput{
			MemberID:      d.MemberID,
			BankName:      d.BankName,
			AccountNumber: account,
			Amount:        d.Amount,
			DepositTime:   depositTime,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("deposit request confirmed", "request_id", id, "member_id", hist.MemberID, "amount", hist.DepositAmount)
	return hist, nil
}

// Cancel withdraws a request that has not been confirmed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		d, err := s.requests.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("lock deposit request: %w", apperr.FromStore(err))
		}
		if d.Status != models.DepositRequested {
			return fmt.Errorf("deposit request %s is %s: %w", d.ID, d.Status, apperr.ErrAlreadyConsumed)
		}
		if err := s.requests.UpdateStatus(ctx, tx, d.ID, models.DepositCancelled, nil); err != nil {
			return fmt.Errorf("cancel deposit request: %w", apperr.FromStore(err))
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("deposit request cancelled", "request_id", id)
	return nil
}

// ListPending returns open requests, oldest first. A nil partnerID lists every partner.
func (s *Service) ListPending(ctx context.Context, partnerID *uuid.UUID) ([]*models.DepositRequest, error) {
	list, err := s.requests.ListByStatus(ctx, partnerID, models.DepositRequested)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if list == nil {
		list = []*models.DepositRequest{}
	}
	return list, nil
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
