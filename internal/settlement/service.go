// Package settlement aggregates funded premiums per partner for billing.
// It only reads.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/apperr"
	"github.com/brokerline/backend/internal/clock"
	"github.com/brokerline/backend/internal/models"
)

type PremiumSource interface {
	SumFundedByMember(ctx context.Context, partnerID uuid.UUID, from, to time.Time) ([]models.PremiumTotal, error)
}

type PartnerReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PartnerGroup, error)
	List(ctx context.Context) ([]*models.PartnerGroup, error)
}

// Period is the half-open interval [Start, End).
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MonthPeriod is one calendar month in loc.
func MonthPeriod(year int, month time.Month, loc *time.Location) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

func (p Period) valid() bool { return p.End.After(p.Start) }

type Report struct {
	PartnerID     uuid.UUID             `json:"partner_id"`
	PartnerName   string                `json:"partner_name"`
	BankName      string                `json:"bank_name"`
	AccountNumber string                `json:"account_number"`
	Period        Period                `json:"period"`
	Lines         []models.PremiumTotal `json:"lines"`
	Count         int                   `json:"count"`
	Prepaid       int64                 `json:"prepaid_total"`
	Postpaid      int64                 `json:"postpaid_total"`
	Total         int64                 `json:"total"`
}

type Service struct {
	premiums PremiumSource
	partners PartnerReader
	clock    clock.Clock
	log      *slog.Logger
}

func NewService(premiums PremiumSource, partners PartnerReader, clk clock.Clock, log *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System{Location: clock.KST}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{premiums: premiums, partners: partners, clock: clk, log: log}
}

// Month is the calendar month in the service's business timezone.
func (s *Service) Month(year int, month time.Month) Period {
	return MonthPeriod(year, month, clock.LocationOf(s.clock))
}

// Aggregate sums premiums of applications activated within the period.
// Terminated applications count if they were activated. An empty period
// yields a zero report.
func (s *Service) Aggregate(ctx context.Context, partnerID uuid.UUID, period Period) (*Report, error) {
	if !period.valid() {
		return nil, fmt.Errorf("period %s..%s: %w", period.Start, period.End, apperr.ErrValidation)
	}
	p, err := s.partners.GetByID(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("partner %s: %w", partnerID, apperr.FromStore(err))
	}
	return s.aggregate(ctx, p, period)
}

// AggregateAll returns one report per partner.
func (s *Service) AggregateAll(ctx context.Context, period Period) ([]*Report, error) {
	if !period.valid() {
		return nil, fmt.Errorf("period %s..%s: %w", period.Start, period.End, apperr.ErrValidation)
	}
	partners, err := s.partners.List(ctx)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	reports := make([]*Report, 0, len(partners))
	for _, p := range partners {
		r, err := s.aggregate(ctx, p, period)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (s *Service) aggregate(ctx context.Context, p *models.PartnerGroup, period Period) (*Report, error) {
	lines, err := s.premiums.SumFundedByMember(ctx, p.ID, period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("sum premiums: %w", apperr.FromStore(err))
	}
	r := &Report{
		PartnerID:     p.ID,
		PartnerName:   p.Name,
		BankName:      p.BankName,
		AccountNumber: p.AccountNumber,
		Period:        period,
		Lines:         lines,
	}
	if r.Lines == nil {
		r.Lines = []models.PremiumTotal{}
	}
	for _, l := range lines {
		r.Count += l.Count
		if l.SettlementMethod == models.SettlementPostpaid {
			r.Postpaid += l.Premium
		} else {
			r.Prepaid += l.Premium
		}
	}
	r.Total = r.Prepaid + r.Postpaid
	s.log.Debug("settlement aggregated", "partner_id", p.ID, "start", period.Start, "total", r.Total)
	return r, nil
}
