package applications

import (
	"context"
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

// SubmitInput is a new application as filed by a member.
type SubmitInput struct {
	Vehicle          models.Vehicle
	DesiredStartDate time.Time
	Memo             string
}

// Service drives the application lifecycle. Activate is the only transition
// that touches the ledger, and it does so in the same transaction that flips
// status and point_deducted.
type Service struct {
	pool      TxBeginner
	apps      Repository
	members   MemberReader
	funder    Funder
	validator VehicleValidator
	premium   int64
	clock     clock.Clock
	log       *slog.Logger
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Premium int64
	Clock   clock.Clock
	Logger  *slog.Logger
}

func NewService(pool TxBeginner, apps Repository, members MemberReader, funder Funder, validator VehicleValidator, opts Options) *Service {
	if opts.Premium <= 0 {
		opts.Premium = models.DefaultPremium
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{Location: clock.KST}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		pool:      pool,
		apps:      apps,
		members:   members,
		funder:    funder,
		validator: validator,
		premium:   opts.Premium,
		clock:     opts.Clock,
		log:       opts.Logger,
	}
}

// Submit files a new application in status submitted. No balance check
// happens here; funding is decided at activation.
func (s *Service) Submit(ctx context.Context, actor *models.Member, in SubmitInput) (*models.InsuranceApplication, error) {
	if actor.IsRoot() {
		return nil, fmt.Errorf("root administrator cannot file applications: %w", apperr.ErrForbidden)
	}
	if s.validator != nil {
		if err := s.validator.ValidateVehicle(in.Vehicle); err != nil {
			return nil, err
		}
	}
	if in.DesiredStartDate.IsZero() {
		return nil, fmt.Errorf("desired start date required: %w", apperr.ErrValidation)
	}
	a := &models.InsuranceApplication{
		ID:               uuid.New(),
		PartnerGroupID:   actor.PartnerID(),
		CreatedBy:        actor.ID,
		Vehicle:          in.Vehicle,
		DesiredStartDate: clock.StartOfDay(in.DesiredStartDate.In(clock.LocationOf(s.clock))),
		Premium:          s.premium,
		Status:           models.StatusSubmitted,
		Memo:             in.Memo,
	}
	if err := s.apps.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create application: %w", apperr.FromStore(err))
	}
	metrics.RecordTransition(string(models.StatusSubmitted))
	s.log.Info("application submitted", "application_id", a.ID, "member_id", actor.ID, "car_number", a.Vehicle.CarNumber)
	return a, nil
}

// PartnerApprove moves submitted -> partner_approved.
func (s *Service) PartnerApprove(ctx context.Context, id uuid.UUID) (*models.InsuranceApplication, error) {
	return s.transition(ctx, id, models.StatusPartnerApproved, func(a *models.InsuranceApplication, now time.Time) {
		a.ApprovedAt = &now
	})
}

// Terminate ends an application. Funded premiums are not refunded.
func (s *Service) Terminate(ctx context.Context, id uuid.UUID) (*models.InsuranceApplication, error) {
	return s.transition(ctx, id, models.StatusTerminated, func(a *models.InsuranceApplication, now time.Time) {
		a.TerminatedAt = &now
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to models.ApplicationStatus, stamp func(*models.InsuranceApplication, time.Time)) (*models.InsuranceApplication, error) {
	var a *models.InsuranceApplication
	var from models.ApplicationStatus
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		a, err = s.apps.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("lock application: %w", apperr.FromStore(err))
		}
		from = a.Status
		if !models.CanTransition(from, to) {
			return fmt.Errorf("%s -> %s: %w", from, to, apperr.ErrInvalidTransition)
		}
		a.Status = to
		stamp(a, s.clock.Now())
		if err := s.apps.UpdateLifecycle(ctx, tx, a); err != nil {
			return fmt.Errorf("update application: %w", apperr.FromStore(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(to))
	s.log.Info("application transitioned", "application_id", id, "from", from, "to", to)
	return a, nil
}

// Activate funds and activates a partner-approved application. The premium
// is deducted from the creator's balance unless the creator is postpaid or
// the application was already charged. Calling Activate again on an active
// application returns it unchanged.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (*models.InsuranceApplication, error) {
	var a *models.InsuranceApplication
	var charged, replay bool
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		a, err = s.apps.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("lock application: %w", apperr.FromStore(err))
		}
		if a.Status != models.StatusPartnerApproved && a.Status != models.StatusActive {
			return fmt.Errorf("%s -> %s: %w", a.Status, models.StatusActive, apperr.ErrInvalidTransition)
		}
		creator, err := s.members.GetByID(ctx, a.CreatedBy)
		if err != nil {
			return fmt.Errorf("load creator: %w", apperr.FromStore(err))
		}
		if a.Status == models.StatusActive {
			// postpaid activations never set point_deducted
			if a.PointDeducted || !creator.Prepaid() {
				replay = true
				return nil
			}
			return fmt.Errorf("active application is unfunded: %w", apperr.ErrInvalidTransition)
		}
		if !a.PointDeducted && creator.Prepaid() {
			balance, err = s.funder.DeductForApplicationTx(ctx, tx, a.CreatedBy, a.Premium)
			if err != nil {
				return err
			}
			a.PointDeducted = true
			charged = true
		}
		now := s.clock.Now()
		a.Status = models.StatusActive
		a.ActivatedAt = &now
		if err := s.apps.UpdateLifecycle(ctx, tx, a); err != nil {
			return fmt.Errorf("update application: %w", apperr.FromStore(err))
		}
		return nil
	})
	if err != nil {
		s.log.Warn("activation failed", "application_id", id, "error", err)
		return nil, err
	}
	if replay {
		s.log.Info("activation replayed", "application_id", id)
		return a, nil
	}
	metrics.RecordTransition(string(models.StatusActive))
	s.log.Info("application activated", "application_id", id, "member_id", a.CreatedBy, "charged", charged, "premium", a.Premium, "balance", balance)
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.InsuranceApplication, error) {
	a, err := s.apps.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return a, nil
}

// List returns applications matching f, newest first.
func (s *Service) List(ctx context.Context, f models.ApplicationFilter) ([]*models.InsuranceApplication, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", f.Status, apperr.ErrValidation)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	list, err := s.apps.List(ctx, f)
	if err != nil {
		return nil, apperr.FromStore(err)
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
