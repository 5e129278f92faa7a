package virtualaccount

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brokerline/backend/internal/ledger"
	"github.com/brokerline/backend/internal/models"
)

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, v *models.VirtualAccount) error
	ExpirePendingForMember(ctx context.Context, tx pgx.Tx, memberID uuid.UUID) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.VirtualAccount, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.VirtualAccount, error)
	GetPendingByMember(ctx context.Context, memberID uuid.UUID) (*models.VirtualAccount, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID, paidAt time.Time) error
	SweepExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// MemberLocker serializes issuance per member.
type MemberLocker interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Member, error)
}

// DepositRecorder credits a confirmed payment inside the caller's transaction.
type DepositRecorder interface {
	RecordDepositTx(ctx context.Context, tx pgx.Tx, in ledger.DepositInput) (*models.DepositHistory, error)
}
