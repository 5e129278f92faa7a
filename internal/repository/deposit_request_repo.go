package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerline/backend/internal/models"
)

const depositRequestColumns = `id, member_id, COALESCE(partner_group_id, '00000000-0000-0000-0000-000000000000'::uuid),
	amount, account_holder, bank_name, status, created_at, confirmed_at`

type DepositRequestRepo struct {
	pool *pgxpool.Pool
}

func NewDepositRequestRepo(pool *pgxpool.Pool) *DepositRequestRepo {
	return &DepositRequestRepo{pool: pool}
}

func scanDepositRequest(row pgx.Row) (*models.DepositRequest, error) {
	var d models.DepositRequest
	if err := row.Scan(&d.ID, &d.MemberID, &d.PartnerGroupID, &d.Amount, &d.AccountHolder, &d.BankName, &d.Status, &d.CreatedAt, &d.ConfirmedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DepositRequestRepo) Create(ctx context.Context, d *models.DepositRequest) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO deposit_requests (id, member_id, partner_group_id, amount, account_holder, bank_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, d.ID, d.MemberID, nullUUID(d.PartnerGroupID), d.Amount, d.AccountHolder, d.BankName, d.Status).Scan(&d.CreatedAt)
}

// GetByIDForUpdate locks the request row until the transaction ends.
func (r *DepositRequestRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.DepositRequest, error) {
	return scanDepositRequest(tx.QueryRow(ctx, `SELECT `+depositRequestColumns+` FROM deposit_requests WHERE id = $1 FOR UPDATE`, id))
}

func (r *DepositRequestRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, confirmedAt *time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE deposit_requests SET status = $2, confirmed_at = $3 WHERE id = $1`, id, status, confirmedAt)
	return err
}

// ListByStatus returns requests in the given status, oldest first. A nil
// partnerID lists every partner.
func (r *DepositRequestRepo) ListByStatus(ctx context.Context, partnerID *uuid.UUID, status string) ([]*models.DepositRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+depositRequestColumns+` FROM deposit_requests
		WHERE status = $1 AND ($2::uuid IS NULL OR partner_group_id = $2)
		ORDER BY created_at
	`, status, partnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.DepositRequest
	for rows.Next() {
		d, err := scanDepositRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}
