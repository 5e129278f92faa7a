package models

import (
	"time"

	"github.com/google/uuid"
)

// Member roles.
const (
	RoleMember       = "member"
	RolePartnerAdmin = "partner_admin"
	RoleAdmin        = "admin"
)

// Member approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
)

// Settlement methods. Point members prepay through their balance; postpaid
// members are billed from the settlement report.
const (
	SettlementPoint    = "point"
	SettlementPostpaid = "postpaid"
)

type Member struct {
	ID               uuid.UUID  `json:"id"`
	PartnerGroupID   *uuid.UUID `json:"partner_group_id,omitempty"`
	Username         string     `json:"username"`
	PasswordHash     string     `json:"-"`
	CompanyName      string     `json:"company_name"`
	Role             string     `json:"role"`
	ApprovalStatus   string     `json:"approval_status"`
	PointBalance     int64      `json:"point_balance"`
	SettlementMethod string     `json:"settlement_method"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsRoot reports whether the member sits outside every partner (the root administrator).
func (m *Member) IsRoot() bool { return m.PartnerGroupID == nil }

// Prepaid reports whether activations are funded from the point balance.
func (m *Member) Prepaid() bool { return m.SettlementMethod != SettlementPostpaid }

// PartnerID returns the member's partner or uuid.Nil for the root scope.
func (m *Member) PartnerID() uuid.UUID {
	if m.PartnerGroupID == nil {
		return uuid.Nil
	}
	return *m.PartnerGroupID
}
