package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/brokerline/backend/internal/apperr"
	"github.com/brokerline/backend/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrPendingApproval    = errors.New("membership pending approval")
)

const tokenTTL = 24 * time.Hour

// Identity is what a verified token says about its bearer.
type Identity struct {
	MemberID  uuid.UUID
	Role      string
	PartnerID *uuid.UUID
}

type Service interface {
	Login(ctx context.Context, partnerID *uuid.UUID, username, password string) (string, *models.Member, error)
	ValidateToken(ctx context.Context, token string) (Identity, error)
}

type service struct {
	members MemberLookup
	secret  []byte
	now     func() time.Time
}

func NewService(members MemberLookup, secret string) *service {
	if secret == "" {
		secret = "dev-only-secret"
	}
	return &service{members: members, secret: []byte(secret), now: time.Now}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	PartnerID string `json:"pid,omitempty"`
}

// HashPassword returns the bcrypt hash stored in members.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *service) Login(ctx context.Context, partnerID *uuid.UUID, username, password string) (string, *models.Member, error) {
	m, err := s.members.GetByUsername(ctx, partnerID, username)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, apperr.FromStore(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if m.ApprovalStatus != models.ApprovalApproved {
		return "", nil, ErrPendingApproval
	}
	tok, err := s.issueToken(m)
	if err != nil {
		return "", nil, err
	}
	return tok, m, nil
}

func (s *service) issueToken(m *models.Member) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   m.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: m.Role,
	}
	if m.PartnerGroupID != nil {
		c.PartnerID = m.PartnerGroupID.String()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(_ context.Context, token string) (Identity, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: subject: %v", ErrInvalidToken, err)
	}
	ident := Identity{MemberID: id, Role: c.Role}
	if c.PartnerID != "" {
		pid, err := uuid.Parse(c.PartnerID)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: partner: %v", ErrInvalidToken, err)
		}
		ident.PartnerID = &pid
	}
	return ident, nil
}
