package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brokerline/backend/internal/models"
)

type MemberRepo struct{ s *Store }

// Seed stores m as is, bypassing validation. Tests use it to set opening balances.
func (r *MemberRepo) Seed(m *models.Member) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.SettlementMethod == "" {
		m.SettlementMethod = models.SettlementPoint
	}
	r.s.data.members[m.ID] = *m
}

func (r *MemberRepo) Create(_ context.Context, m *models.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.data.members {
		if other.Username == m.Username && other.PartnerID() == m.PartnerID() {
			return uniqueViolation("members_partner_username_idx")
		}
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	r.s.data.members[m.ID] = *m
	return nil
}

func (r *MemberRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.data.members[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &m, nil
}

func (r *MemberRepo) GetByUsername(_ context.Context, partnerID *uuid.UUID, username string) (*models.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := uuid.Nil
	if partnerID != nil {
		want = *partnerID
	}
	for _, m := range r.s.data.members {
		if m.Username == username && m.PartnerID() == want {
			return &m, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemberRepo) ListIDs(_ context.Context) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.s.data.members))
	for id := range r.s.data.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (r *MemberRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Member, error) {
	return r.GetByID(ctx, id)
}

func (r *MemberRepo) AddPoints(_ context.Context, _ pgx.Tx, id uuid.UUID, delta int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("members.AddPoints"); err != nil {
		return 0, err
	}
	m, ok := r.s.data.members[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	m.PointBalance += delta
	r.s.data.members[id] = m
	return m.PointBalance, nil
}

func (r *MemberRepo) DeductPoints(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.data.members[id]
	if !ok || m.PointBalance < amount {
		return 0, pgx.ErrNoRows
	}
	m.PointBalance -= amount
	r.s.data.members[id] = m
	return m.PointBalance, nil
}

func (r *MemberRepo) ListByApproval(_ context.Context, partnerID *uuid.UUID, status string) ([]*models.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.Member
	for _, m := range r.s.data.members {
		if m.ApprovalStatus != status {
			continue
		}
		if partnerID != nil && m.PartnerID() != *partnerID {
			continue
		}
		list = append(list, &m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (r *MemberRepo) SetApproval(_ context.Context, id uuid.UUID, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.data.members[id]
	if !ok {
		return pgx.ErrNoRows
	}
	m.ApprovalStatus = status
	m.UpdatedAt = time.Now()
	r.s.data.members[id] = m
	return nil
}

type PartnerRepo struct{ s *Store }

func (r *PartnerRepo) Create(_ context.Context, p *models.PartnerGroup) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.data.partners {
		if other.Name == p.Name || other.BusinessNumber == p.BusinessNumber {
			return uniqueViolation("partner_groups_name_key")
		}
	}
	p.CreatedAt = time.Now()
	r.s.data.partners[p.ID] = *p
	return nil
}

func (r *PartnerRepo) GetByID(_ context.Context, id uuid.UUID) (*models.PartnerGroup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.partners[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (r *PartnerRepo) List(_ context.Context) ([]*models.PartnerGroup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := make([]*models.PartnerGroup, 0, len(r.s.data.partners))
	for _, p := range r.s.data.partners {
		p := p
		list = append(list, &p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

type ApplicationRepo struct{ s *Store }

func (r *ApplicationRepo) Create(_ context.Context, a *models.InsuranceApplication) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.s.data.applications[a.ID] = *a
	return nil
}

func (r *ApplicationRepo) GetByID(_ context.Context, id uuid.UUID) (*models.InsuranceApplication, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.data.applications[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &a, nil
}

func (r *ApplicationRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.InsuranceApplication, error) {
	return r.GetByID(ctx, id)
}

func (r *ApplicationRepo) UpdateLifecycle(_ context.Context, _ pgx.Tx, a *models.InsuranceApplication) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("applications.UpdateLifecycle"); err != nil {
		return err
	}
	cur, ok := r.s.data.applications[a.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	cur.Status = a.Status
	cur.PointDeducted = cur.PointDeducted || a.PointDeducted
	cur.ApprovedAt = a.ApprovedAt
	cur.ActivatedAt = a.ActivatedAt
	cur.TerminatedAt = a.TerminatedAt
	cur.UpdatedAt = time.Now()
	a.UpdatedAt = cur.UpdatedAt
	r.s.data.applications[a.ID] = cur
	return nil
}

func (r *ApplicationRepo) List(_ context.Context, f models.ApplicationFilter) ([]*models.InsuranceApplication, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.InsuranceApplication
	for _, a := range r.s.data.applications {
		if f.PartnerGroupID != nil && a.PartnerGroupID != *f.PartnerGroupID {
			continue
		}
		if f.CreatedBy != nil && a.CreatedBy != *f.CreatedBy {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.CreatedFrom != nil && a.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && !a.CreatedAt.Before(*f.CreatedTo) {
			continue
		}
		a := a
		list = append(list, &a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(list) {
			return nil, nil
		}
		list = list[f.Offset:]
	}
	if f.Limit > 0 && len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, nil
}

func (r *ApplicationRepo) SumDeductedPremiums(_ context.Context, _ pgx.Tx, memberID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, a := range r.s.data.applications {
		if a.CreatedBy == memberID && a.PointDeducted {
			total += a.Premium
		}
	}
	return total, nil
}

func (r *ApplicationRepo) SumFundedByMember(_ context.Context, partnerID uuid.UUID, from, to time.Time) ([]models.PremiumTotal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byMember := make(map[uuid.UUID]*models.PremiumTotal)
	for _, a := range r.s.data.applications {
		if a.PartnerGroupID != partnerID || a.ActivatedAt == nil {
			continue
		}
		if a.Status != models.StatusActive && a.Status != models.StatusTerminated {
			continue
		}
		if a.ActivatedAt.Before(from) || !a.ActivatedAt.Before(to) {
			continue
		}
		t, ok := byMember[a.CreatedBy]
		if !ok {
			m := r.s.data.members[a.CreatedBy]
			t = &models.PremiumTotal{MemberID: m.ID, Username: m.Username, CompanyName: m.CompanyName, SettlementMethod: m.SettlementMethod}
			byMember[a.CreatedBy] = t
		}
		t.Count++
		t.Premium += a.Premium
	}
	list := make([]models.PremiumTotal, 0, len(byMember))
	for _, t := range byMember {
		list = append(list, *t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Username < list[j].Username })
	return list, nil
}

type DepositRepo struct{ s *Store }

func (r *DepositRepo) CreateTx(_ context.Context, _ pgx.Tx, d *models.DepositHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("deposits.CreateTx"); err != nil {
		return err
	}
	d.CreatedAt = time.Now()
	r.s.data.deposits = append(r.s.data.deposits, *d)
	return nil
}

func (r *DepositRepo) ListRecentByMember(_ context.Context, memberID uuid.UUID, limit int) ([]*models.DepositHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.DepositHistory
	for _, d := range r.s.data.deposits {
		if d.MemberID == memberID {
			d := d
			list = append(list, &d)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].DepositDate.After(list[j].DepositDate) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *DepositRepo) SumByMember(_ context.Context, _ pgx.Tx, memberID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, d := range r.s.data.deposits {
		if d.MemberID == memberID {
			total += d.DepositAmount
		}
	}
	return total, nil
}

// All returns every deposit row in insertion order.
func (r *DepositRepo) All() []models.DepositHistory {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.DepositHistory(nil), r.s.data.deposits...)
}

type AdjustmentRepo struct{ s *Store }

func (r *AdjustmentRepo) CreateTx(_ context.Context, _ pgx.Tx, a *models.PointAdjustment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.CreatedAt = time.Now()
	r.s.data.adjustments = append(r.s.data.adjustments, *a)
	return nil
}

func (r *AdjustmentRepo) ListByMember(_ context.Context, memberID uuid.UUID) ([]*models.PointAdjustment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.PointAdjustment
	for i := len(r.s.data.adjustments) - 1; i >= 0; i-- {
		a := r.s.data.adjustments[i]
		if a.MemberID == memberID {
			list = append(list, &a)
		}
	}
	return list, nil
}

func (r *AdjustmentRepo) SumByMember(_ context.Context, _ pgx.Tx, memberID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, a := range r.s.data.adjustments {
		if a.MemberID == memberID {
			total += a.ChangeAmount
		}
	}
	return total, nil
}

type VirtualAccountRepo struct{ s *Store }

func (r *VirtualAccountRepo) CreateTx(_ context.Context, _ pgx.Tx, v *models.VirtualAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.data.virtualAccounts {
		if other.AccountNumber == v.AccountNumber {
			return uniqueViolation("virtual_accounts_virtual_account_number_key")
		}
		if v.Status == models.VAStatusPending && other.Status == models.VAStatusPending && other.MemberID == v.MemberID {
			return uniqueViolation("virtual_accounts_one_pending_idx")
		}
	}
	v.CreatedAt = time.Now()
	r.s.data.virtualAccounts[v.ID] = *v
	return nil
}

func (r *VirtualAccountRepo) ExpirePendingForMember(_ context.Context, _ pgx.Tx, memberID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, v := range r.s.data.virtualAccounts {
		if v.MemberID == memberID && v.Status == models.VAStatusPending {
			v.Status = models.VAStatusExpired
			r.s.data.virtualAccounts[id] = v
			n++
		}
	}
	return n, nil
}

func (r *VirtualAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*models.VirtualAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.data.virtualAccounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &v, nil
}

func (r *VirtualAccountRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.VirtualAccount, error) {
	return r.GetByID(ctx, id)
}

func (r *VirtualAccountRepo) GetPendingByMember(_ context.Context, memberID uuid.UUID) (*models.VirtualAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.data.virtualAccounts {
		if v.MemberID == memberID && v.Status == models.VAStatusPending {
			return &v, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *VirtualAccountRepo) MarkPaid(_ context.Context, _ pgx.Tx, id uuid.UUID, paidAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.data.virtualAccounts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	v.Status = models.VAStatusPaid
	v.PaidAt = &paidAt
	r.s.data.virtualAccounts[id] = v
	return nil
}

func (r *VirtualAccountRepo) SweepExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("virtual_accounts.SweepExpired"); err != nil {
		return 0, err
	}
	var n int64
	for id, v := range r.s.data.virtualAccounts {
		if v.Status == models.VAStatusPending && v.ExpiryDate.Before(cutoff) {
			v.Status = models.VAStatusExpired
			r.s.data.virtualAccounts[id] = v
			n++
		}
	}
	return n, nil
}

// ByMember returns every account issued to the member.
func (r *VirtualAccountRepo) ByMember(memberID uuid.UUID) []models.VirtualAccount {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []models.VirtualAccount
	for _, v := range r.s.data.virtualAccounts {
		if v.MemberID == memberID {
			list = append(list, v)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}

type DepositRequestRepo struct{ s *Store }

func (r *DepositRequestRepo) Create(_ context.Context, d *models.DepositRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d.CreatedAt = time.Now()
	r.s.data.depositRequests[d.ID] = *d
	return nil
}

func (r *DepositRequestRepo) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.DepositRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.data.depositRequests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &d, nil
}

func (r *DepositRequestRepo) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status string, confirmedAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.data.depositRequests[id]
	if !ok {
		return pgx.ErrNoRows
	}
	d.Status = status
	d.ConfirmedAt = confirmedAt
	r.s.data.depositRequests[id] = d
	return nil
}

func (r *DepositRequestRepo) ListByStatus(_ context.Context, partnerID *uuid.UUID, status string) ([]*models.DepositRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.DepositRequest
	for _, d := range r.s.data.depositRequests {
		if d.Status != status {
			continue
		}
		if partnerID != nil && d.PartnerGroupID != *partnerID {
			continue
		}
		d := d
		list = append(list, &d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}
