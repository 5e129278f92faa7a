package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/models"
)

type PartnerStore interface {
	Create(ctx context.Context, p *models.PartnerGroup) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PartnerGroup, error)
	List(ctx context.Context) ([]*models.PartnerGroup, error)
}

type MemberStore interface {
	Create(ctx context.Context, m *models.Member) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	ListByApproval(ctx context.Context, partnerID *uuid.UUID, status string) ([]*models.Member, error)
	SetApproval(ctx context.Context, id uuid.UUID, status string) error
}
