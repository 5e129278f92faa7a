package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/brokerline/backend/internal/models"
)

// MemberLookup resolves login names. partnerID nil selects the root scope.
type MemberLookup interface {
	GetByUsername(ctx context.Context, partnerID *uuid.UUID, username string) (*models.Member, error)
}
