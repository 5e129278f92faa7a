package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brokerline/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// MemberRepo is the balance-holding side of the ledger.
type MemberRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Member, error)
	AddPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta int64) (newBalance int64, err error)
	DeductPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error)
}

type DepositRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, d *models.DepositHistory) error
	ListRecentByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]*models.DepositHistory, error)
	SumByMember(ctx context.Context, tx pgx.Tx, memberID uuid.UUID) (int64, error)
}

type AdjustmentRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, a *models.PointAdjustment) error
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]*models.PointAdjustment, error)
	SumByMember(ctx context.Context, tx pgx.Tx, memberID uuid.UUID) (int64, error)
}

// PremiumSummer reports premiums already charged to a member. Only Reconcile uses it.
type PremiumSummer interface {
	SumDeductedPremiums(ctx context.Context, tx pgx.Tx, memberID uuid.UUID) (int64, error)
}
