// Package registry onboards partner groups and their members.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/apperr"
	"github.com/brokerline/backend/internal/auth"
	"github.com/brokerline/backend/internal/models"
)

const minPasswordLength = 8

type PartnerInput struct {
	Name           string
	BusinessNumber string
	Representative string
	Phone          string
	BankName       string
	AccountNumber  string
}

type RegisterInput struct {
	PartnerID        uuid.UUID
	Username         string
	Password         string
	CompanyName      string
	SettlementMethod string
}

type Service interface {
	CreatePartner(ctx context.Context, in PartnerInput) (*models.PartnerGroup, error)
	ListPartners(ctx context.Context) ([]*models.PartnerGroup, error)
	Register(ctx context.Context, in RegisterInput) (*models.Member, error)
	PendingMembers(ctx context.Context, actor *models.Member) ([]*models.Member, error)
	ApproveMember(ctx context.Context, actor *models.Member, memberID uuid.UUID) (*models.Member, error)
}

type service struct {
	partners PartnerStore
	members  MemberStore
	log      *slog.Logger
}

func NewService(partners PartnerStore, members MemberStore, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{partners: partners, members: members, log: log}
}

var _ Service = (*service)(nil)

var (
	nonDigits = regexp.MustCompile(`[^0-9]+`)
	username  = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)
)

// normalizeBusinessNumber accepts 10 digits with any separators and returns
// the canonical XXX-XX-XXXXX form.
func normalizeBusinessNumber(s string) (string, error) {
	d := nonDigits.ReplaceAllString(s, "")
	if len(d) != 10 {
		return "", fmt.Errorf("business number %q must have 10 digits: %w", s, apperr.ErrValidation)
	}
	return d[:3] + "-" + d[3:5] + "-" + d[5:], nil
}

func (s *service) CreatePartner(ctx context.Context, in PartnerInput) (*models.PartnerGroup, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("partner name required: %w", apperr.ErrValidation)
	}
	bn, err := normalizeBusinessNumber(in.BusinessNumber)
	if err != nil {
		return nil, err
	}
	p := &models.PartnerGroup{
		ID:             uuid.New(),
		Name:           name,
		BusinessNumber: bn,
		Representative: strings.TrimSpace(in.Representative),
		Phone:          strings.TrimSpace(in.Phone),
		BankName:       strings.TrimSpace(in.BankName),
		AccountNumber:  strings.TrimSpace(in.AccountNumber),
		Active:         true,
	}
	if err := s.partners.Create(ctx, p); err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, fmt.Errorf("partner %q or business number %s already registered: %w", name, bn, apperr.ErrValidation)
		}
		return nil, fmt.Errorf("create partner: %w", apperr.FromStore(err))
	}
	s.log.Info("partner created", "partner_id", p.ID, "name", p.Name)
	return p, nil
}

func (s *service) ListPartners(ctx context.Context) ([]*models.PartnerGroup, error) {
	list, err := s.partners.List(ctx)
	return list, apperr.FromStore(err)
}

// Register creates a pending member of an active partner. The member cannot
// log in until a partner administrator approves it.
func (s *service) Register(ctx context.Context, in RegisterInput) (*models.Member, error) {
	name := strings.ToLower(strings.TrimSpace(in.Username))
	if !username.MatchString(name) {
		return nil, fmt.Errorf("username %q: %w", in.Username, apperr.ErrValidation)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("password shorter than %d characters: %w", minPasswordLength, apperr.ErrValidation)
	}
	method := in.SettlementMethod
	if method == "" {
		method = models.SettlementPoint
	}
	if method != models.SettlementPoint && method != models.SettlementPostpaid {
		return nil, fmt.Errorf("settlement method %q: %w", method, apperr.ErrValidation)
	}
	p, err := s.partners.GetByID(ctx, in.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("partner: %w", apperr.FromStore(err))
	}
	if !p.Active {
		return nil, fmt.Errorf("partner %s is inactive: %w", p.ID, apperr.ErrForbidden)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	m := &models.Member{
		ID:               uuid.New(),
		PartnerGroupID:   &p.ID,
		Username:         name,
		PasswordHash:     hash,
		CompanyName:      strings.TrimSpace(in.CompanyName),
		Role:             models.RoleMember,
		ApprovalStatus:   models.ApprovalPending,
		SettlementMethod: method,
	}
	if err := s.members.Create(ctx, m); err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, fmt.Errorf("username %q taken: %w", name, apperr.ErrValidation)
		}
		return nil, fmt.Errorf("create member: %w", apperr.FromStore(err))
	}
	s.log.Info("member registered", "member_id", m.ID, "partner_id", p.ID)
	return m, nil
}

// PendingMembers lists members awaiting approval; partner administrators see
// only their own partner.
func (s *service) PendingMembers(ctx context.Context, actor *models.Member) ([]*models.Member, error) {
	var scope *uuid.UUID
	if actor.Role != models.RoleAdmin {
		scope = actor.PartnerGroupID
		if scope == nil {
			return nil, apperr.ErrForbidden
		}
	}
	list, err := s.members.ListByApproval(ctx, scope, models.ApprovalPending)
	return list, apperr.FromStore(err)
}

// ApproveMember is idempotent. Members of other partners are reported as
// not found to partner administrators.
func (s *service) ApproveMember(ctx context.Context, actor *models.Member, memberID uuid.UUID) (*models.Member, error) {
	m, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("member: %w", apperr.FromStore(err))
	}
	if actor.Role != models.RoleAdmin && (actor.IsRoot() || m.PartnerID() != actor.PartnerID()) {
		return nil, fmt.Errorf("member %s: %w", memberID, apperr.ErrNotFound)
	}
	if m.ApprovalStatus == models.ApprovalApproved {
		return m, nil
	}
	if err := s.members.SetApproval(ctx, m.ID, models.ApprovalApproved); err != nil {
		return nil, fmt.Errorf("approve member: %w", apperr.FromStore(err))
	}
	m.ApprovalStatus = models.ApprovalApproved
	s.log.Info("member approved", "member_id", m.ID, "approved_by", actor.ID)
	return m, nil
}
