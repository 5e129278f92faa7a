package models

import (
	"time"

	"github.com/google/uuid"
)

// Virtual account statuses.
const (
	VAStatusPending = "pending"
	VAStatusPaid    = "paid"
	VAStatusExpired = "expired"
)

// VirtualAccount is a short-lived collection account issued to one member.
type VirtualAccount struct {
	ID             uuid.UUID  `json:"id"`
	MemberID       uuid.UUID  `json:"member_id"`
	PartnerGroupID uuid.UUID  `json:"partner_group_id"`
	AccountHolder  string     `json:"account_holder"`
	BankName       string     `json:"bank_name"`
	AccountNumber  string     `json:"virtual_account_number"`
	DepositAmount  int64      `json:"deposit_amount"`
	ExpiryDate     time.Time  `json:"expiry_date"`
	Status         string     `json:"status"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
