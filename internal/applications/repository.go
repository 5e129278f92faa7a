package applications

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brokerline/backend/internal/models"
)

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository is the application persistence the state machine needs.
type Repository interface {
	Create(ctx context.Context, a *models.InsuranceApplication) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.InsuranceApplication, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.InsuranceApplication, error)
	UpdateLifecycle(ctx context.Context, tx pgx.Tx, a *models.InsuranceApplication) error
	List(ctx context.Context, f models.ApplicationFilter) ([]*models.InsuranceApplication, error)
}

type MemberReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
}

// Funder charges a premium inside the activation transaction.
type Funder interface {
	DeductForApplicationTx(ctx context.Context, tx pgx.Tx, memberID uuid.UUID, amount int64) (int64, error)
}

type VehicleValidator interface {
	ValidateVehicle(v models.Vehicle) error
}
