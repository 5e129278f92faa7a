package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerline/backend/internal/models"
)

type DepositRepo struct {
	pool *pgxpool.Pool
}

func NewDepositRepo(pool *pgxpool.Pool) *DepositRepo {
	return &DepositRepo{pool: pool}
}

// CreateTx inserts a deposit history row inside the given transaction.
func (r *DepositRepo) CreateTx(ctx context.Context, tx pgx.Tx, d *models.DepositHistory) error {
	return tx.QueryRow(ctx, `
		INSERT INTO deposit_history (id, member_id, partner_group_id, bank_name, account_number, deposit_amount, deposit_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, d.ID, d.MemberID, nullUUID(d.PartnerGroupID), d.BankName, d.AccountNumber, d.DepositAmount, d.DepositDate).Scan(&d.CreatedAt)
}

// ListRecentByMember returns the newest deposits first.
func (r *DepositRepo) ListRecentByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]*models.DepositHistory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, member_id, COALESCE(partner_group_id, '00000000-0000-0000-0000-000000000000'::uuid), bank_name, account_number, deposit_amount, deposit_date, created_at
		FROM deposit_history WHERE member_id = $1
		ORDER BY deposit_date DESC
		LIMIT $2
	`, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.DepositHistory
	for rows.Next() {
		var d models.DepositHistory
		if err := rows.Scan(&d.ID, &d.MemberID, &d.PartnerGroupID, &d.BankName, &d.AccountNumber, &d.DepositAmount, &d.DepositDate, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &d)
	}
	return list, rows.Err()
}

// SumByMember totals every deposit of the member, read inside tx.
func (r *DepositRepo) SumByMember(ctx context.Context, tx pgx.Tx, memberID uuid.UUID) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(deposit_amount), 0) FROM deposit_history WHERE member_id = $1`, memberID).Scan(&total)
	return total, err
}

// nullUUID stores uuid.Nil as NULL (root-scope records have no partner).
func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
