package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerline/backend/internal/models"
)

const applicationColumns = `id, partner_group_id, created_by, car_number, vehicle_name, vin, desired_start_date, premium,
	status, point_deducted, memo, approved_at, activated_at, terminated_at, created_at, updated_at`

type ApplicationRepo struct {
	pool *pgxpool.Pool
}

func NewApplicationRepo(pool *pgxpool.Pool) *ApplicationRepo {
	return &ApplicationRepo{pool: pool}
}

func scanApplication(row pgx.Row) (*models.InsuranceApplication, error) {
	var a models.InsuranceApplication
	var status string
	err := row.Scan(&a.ID, &a.PartnerGroupID, &a.CreatedBy, &a.Vehicle.CarNumber, &a.Vehicle.VehicleName, &a.Vehicle.VIN,
		&a.DesiredStartDate, &a.Premium, &status, &a.PointDeducted, &a.Memo, &a.ApprovedAt, &a.ActivatedAt, &a.TerminatedAt,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = models.ApplicationStatus(status)
	return &a, nil
}

func (r *ApplicationRepo) Create(ctx context.Context, a *models.InsuranceApplication) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO insurance_applications (id, partner_group_id, created_by, car_number, vehicle_name, vin, desired_start_date, premium, status, point_deducted, memo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, a.ID, a.PartnerGroupID, a.CreatedBy, a.Vehicle.CarNumber, a.Vehicle.VehicleName, a.Vehicle.VIN, a.DesiredStartDate,
		a.Premium, string(a.Status), a.PointDeducted, a.Memo).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *ApplicationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.InsuranceApplication, error) {
	return scanApplication(r.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM insurance_applications WHERE id = $1`, id))
}

// GetByIDForUpdate locks the application row until the transaction ends.
func (r *ApplicationRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.InsuranceApplication, error) {
	return scanApplication(tx.QueryRow(ctx, `SELECT `+applicationColumns+` FROM insurance_applications WHERE id = $1 FOR UPDATE`, id))
}

// UpdateLifecycle writes status, point_deducted and the transition timestamps.
// point_deducted is OR-ed so a stale caller can never clear it.
func (r *ApplicationRepo) UpdateLifecycle(ctx context.Context, tx pgx.Tx, a *models.InsuranceApplication) error {
	return tx.QueryRow(ctx, `
		UPDATE insurance_applications
		SET status = $2, point_deducted = point_deducted OR $3, approved_at = $4, activated_at = $5, terminated_at = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, string(a.Status), a.PointDeducted, a.ApprovedAt, a.ActivatedAt, a.TerminatedAt).Scan(&a.UpdatedAt)
}

func (r *ApplicationRepo) List(ctx context.Context, f models.ApplicationFilter) ([]*models.InsuranceApplication, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PartnerGroupID != nil {
		add("partner_group_id = $%d", *f.PartnerGroupID)
	}
	if f.CreatedBy != nil {
		add("created_by = $%d", *f.CreatedBy)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.CreatedFrom != nil {
		add("created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		add("created_at < $%d", *f.CreatedTo)
	}
	q := `SELECT ` + applicationColumns + ` FROM insurance_applications`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.InsuranceApplication
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// SumDeductedPremiums totals premiums already charged to the member, read inside tx.
func (r *ApplicationRepo) SumDeductedPremiums(ctx context.Context, tx pgx.Tx, memberID uuid.UUID) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(premium), 0) FROM insurance_applications
		WHERE created_by = $1 AND point_deducted
	`, memberID).Scan(&total)
	return total, err
}

// SumFundedByMember groups premiums of applications activated in [from, to)
// that are still active or were terminated after activation.
func (r *ApplicationRepo) SumFundedByMember(ctx context.Context, partnerID uuid.UUID, from, to time.Time) ([]models.PremiumTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.username, m.company_name, m.settlement_method, COUNT(*), SUM(a.premium)
		FROM insurance_applications a
		JOIN members m ON m.id = a.created_by
		WHERE a.partner_group_id = $1
		  AND a.status IN ('active', 'terminated')
		  AND a.activated_at >= $2 AND a.activated_at < $3
		GROUP BY m.id, m.username, m.company_name, m.settlement_method
		ORDER BY m.username
	`, partnerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PremiumTotal
	for rows.Next() {
		var p models.PremiumTotal
		if err := rows.Scan(&p.MemberID, &p.Username, &p.CompanyName, &p.SettlementMethod, &p.Count, &p.Premium); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
