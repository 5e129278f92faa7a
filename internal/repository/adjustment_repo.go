package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerline/backend/internal/models"
)

type AdjustmentRepo struct {
	pool *pgxpool.Pool
}

func NewAdjustmentRepo(pool *pgxpool.Pool) *AdjustmentRepo {
	return &AdjustmentRepo{pool: pool}
}

// CreateTx inserts an adjustment row inside the given transaction.
func (r *AdjustmentRepo) CreateTx(ctx context.Context, tx pgx.Tx, a *models.PointAdjustment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO point_adjustments (id, member_id, partner_group_id, decrease_amount, increase_amount, change_amount, note, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, a.ID, a.MemberID, nullUUID(a.PartnerGroupID), a.DecreaseAmount, a.IncreaseAmount, a.ChangeAmount, a.Note, a.CreatedBy).Scan(&a.CreatedAt)
}

func (r *AdjustmentRepo) ListByMember(ctx context.Context, memberID uuid.UUID) ([]*models.PointAdjustment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, member_id, COALESCE(partner_group_id, '00000000-0000-0000-0000-000000000000'::uuid), decrease_amount, increase_amount, change_amount, note, created_by, created_at
		FROM point_adjustments WHERE member_id = $1 ORDER BY created_at DESC
	`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PointAdjustment
	for rows.Next() {
		var a models.PointAdjustment
		if err := rows.Scan(&a.ID, &a.MemberID, &a.PartnerGroupID, &a.DecreaseAmount, &a.IncreaseAmount, &a.ChangeAmount, &a.Note, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}

// SumByMember totals change_amount for the member, read inside tx.
func (r *AdjustmentRepo) SumByMember(ctx context.Context, tx pgx.Tx, memberID uuid.UUID) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(change_amount), 0) FROM point_adjustments WHERE member_id = $1`, memberID).Scan(&total)
	return total, err
}
