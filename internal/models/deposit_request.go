package models

import (
	"time"

	"github.com/google/uuid"
)

// Deposit request statuses.
const (
	DepositRequested = "requested"
	DepositConfirmed = "confirmed"
	DepositCancelled = "cancelled"
)

// DepositRequest is a member's notice that a bank transfer was sent.
type DepositRequest struct {
	ID             uuid.UUID  `json:"id"`
	MemberID       uuid.UUID  `json:"member_id"`
	PartnerGroupID uuid.UUID  `json:"partner_group_id"`
	Amount         int64      `json:"amount"`
	AccountHolder  string     `json:"account_holder"`
	BankName       string     `json:"bank_name"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
}
