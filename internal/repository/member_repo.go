package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerline/backend/internal/models"
)

const memberColumns = `id, partner_group_id, username, password_hash, company_name, role, approval_status,
	point_balance, settlement_method, created_at, updated_at`

type MemberRepo struct {
	pool *pgxpool.Pool
}

func NewMemberRepo(pool *pgxpool.Pool) *MemberRepo {
	return &MemberRepo{pool: pool}
}

func scanMember(row pgx.Row) (*models.Member, error) {
	var m models.Member
	err := row.Scan(&m.ID, &m.PartnerGroupID, &m.Username, &m.PasswordHash, &m.CompanyName, &m.Role, &m.ApprovalStatus,
		&m.PointBalance, &m.SettlementMethod, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MemberRepo) Create(ctx context.Context, m *models.Member) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO members (id, partner_group_id, username, password_hash, company_name, role, approval_status, point_balance, settlement_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, m.ID, m.PartnerGroupID, m.Username, m.PasswordHash, m.CompanyName, m.Role, m.ApprovalStatus, m.PointBalance, m.SettlementMethod).
		Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *MemberRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	return scanMember(r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
}

// GetByUsername looks a member up inside a partner; a nil partnerID searches the root scope.
func (r *MemberRepo) GetByUsername(ctx context.Context, partnerID *uuid.UUID, username string) (*models.Member, error) {
	return scanMember(r.pool.QueryRow(ctx, `
		SELECT `+memberColumns+` FROM members
		WHERE username = $1 AND partner_group_id IS NOT DISTINCT FROM $2
	`, username, partnerID))
}

func (r *MemberRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM members ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// GetByIDForUpdate locks the member row until the transaction ends.
func (r *MemberRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Member, error) {
	return scanMember(tx.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1 FOR UPDATE`, id))
}

// AddPoints applies a signed delta with no floor and returns the new balance.
func (r *MemberRepo) AddPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE members SET point_balance = point_balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING point_balance
	`, delta, id).Scan(&newBalance)
	return newBalance, err
}

// DeductPoints subtracts amount only if the balance covers it. pgx.ErrNoRows
// means the member is missing or the balance is short.
func (r *MemberRepo) DeductPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE members SET point_balance = point_balance - $1, updated_at = now()
		WHERE id = $2 AND point_balance >= $1
		RETURNING point_balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// ListByApproval lists members with the given approval status, oldest first.
// A nil partnerID lists every partner.
func (r *MemberRepo) ListByApproval(ctx context.Context, partnerID *uuid.UUID, status string) ([]*models.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+memberColumns+` FROM members
		WHERE approval_status = $1 AND ($2::uuid IS NULL OR partner_group_id = $2)
		ORDER BY created_at
	`, status, partnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (r *MemberRepo) SetApproval(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE members SET approval_status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
