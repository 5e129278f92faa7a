package models

import "github.com/google/uuid"

// PremiumTotal is one member's funded premiums within a settlement period.
type PremiumTotal struct {
	MemberID         uuid.UUID `json:"member_id"`
	Username         string    `json:"username"`
	CompanyName      string    `json:"company_name"`
	SettlementMethod string    `json:"settlement_method"`
	Count            int       `json:"count"`
	Premium          int64     `json:"premium"`
}
