package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerline/backend/internal/models"
)

const partnerColumns = `id, name, business_number, representative, phone, bank_name, account_number, active, created_at`

type PartnerRepo struct {
	pool *pgxpool.Pool
}

func NewPartnerRepo(pool *pgxpool.Pool) *PartnerRepo {
	return &PartnerRepo{pool: pool}
}

func scanPartner(row pgx.Row) (*models.PartnerGroup, error) {
	var p models.PartnerGroup
	if err := row.Scan(&p.ID, &p.Name, &p.BusinessNumber, &p.Representative, &p.Phone, &p.BankName, &p.AccountNumber, &p.Active, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PartnerRepo) Create(ctx context.Context, p *models.PartnerGroup) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO partner_groups (id, name, business_number, representative, phone, bank_name, account_number, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, p.ID, p.Name, p.BusinessNumber, p.Representative, p.Phone, p.BankName, p.AccountNumber, p.Active).Scan(&p.CreatedAt)
}

func (r *PartnerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PartnerGroup, error) {
	return scanPartner(r.pool.QueryRow(ctx, `SELECT `+partnerColumns+` FROM partner_groups WHERE id = $1`, id))
}

func (r *PartnerRepo) List(ctx context.Context) ([]*models.PartnerGroup, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+partnerColumns+` FROM partner_groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PartnerGroup
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
