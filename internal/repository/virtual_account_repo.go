package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerline/backend/internal/models"
)

const virtualAccountColumns = `id, member_id, COALESCE(partner_group_id, '00000000-0000-0000-0000-000000000000'::uuid),
	account_holder, bank_name, virtual_account_number, deposit_amount, expiry_date, status, paid_at, created_at`

type VirtualAccountRepo struct {
	pool *pgxpool.Pool
}

func NewVirtualAccountRepo(pool *pgxpool.Pool) *VirtualAccountRepo {
	return &VirtualAccountRepo{pool: pool}
}

func scanVirtualAccount(row pgx.Row) (*models.VirtualAccount, error) {
	var v models.VirtualAccount
	err := row.Scan(&v.ID, &v.MemberID, &v.PartnerGroupID, &v.AccountHolder, &v.BankName, &v.AccountNumber,
		&v.DepositAmount, &v.ExpiryDate, &v.Status, &v.PaidAt, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateTx inserts a pending account. A duplicate account number surfaces as a
// unique violation; callers run it in a savepoint so they can retry.
func (r *VirtualAccountRepo) CreateTx(ctx context.Context, tx pgx.Tx, v *models.VirtualAccount) error {
	return tx.QueryRow(ctx, `
		INSERT INTO virtual_accounts (id, member_id, partner_group_id, account_holder, bank_name, virtual_account_number, deposit_amount, expiry_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, v.ID, v.MemberID, nullUUID(v.PartnerGroupID), v.AccountHolder, v.BankName, v.AccountNumber, v.DepositAmount, v.ExpiryDate, v.Status).
		Scan(&v.CreatedAt)
}

// ExpirePendingForMember expires every pending account of the member.
func (r *VirtualAccountRepo) ExpirePendingForMember(ctx context.Context, tx pgx.Tx, memberID uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE virtual_accounts SET status = 'expired' WHERE member_id = $1 AND status = 'pending'
	`, memberID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *VirtualAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.VirtualAccount, error) {
	return scanVirtualAccount(r.pool.QueryRow(ctx, `SELECT `+virtualAccountColumns+` FROM virtual_accounts WHERE id = $1`, id))
}

// GetByIDForUpdate locks the account row until the transaction ends.
func (r *VirtualAccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.VirtualAccount, error) {
	return scanVirtualAccount(tx.QueryRow(ctx, `SELECT `+virtualAccountColumns+` FROM virtual_accounts WHERE id = $1 FOR UPDATE`, id))
}

func (r *VirtualAccountRepo) GetPendingByMember(ctx context.Context, memberID uuid.UUID) (*models.VirtualAccount, error) {
	return scanVirtualAccount(r.pool.QueryRow(ctx, `
		SELECT `+virtualAccountColumns+` FROM virtual_accounts
		WHERE member_id = $1 AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1
	`, memberID))
}

func (r *VirtualAccountRepo) MarkPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID, paidAt time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE virtual_accounts SET status = 'paid', paid_at = $2 WHERE id = $1`, id, paidAt)
	return err
}

// SweepExpired expires pending accounts whose expiry is before cutoff.
func (r *VirtualAccountRepo) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE virtual_accounts SET status = 'expired' WHERE status = 'pending' AND expiry_date < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
