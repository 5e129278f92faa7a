package models

import (
	"time"

	"github.com/google/uuid"
)

// DepositHistory is an append-only record of a confirmed bank deposit.
type DepositHistory struct {
	ID             uuid.UUID `json:"id"`
	MemberID       uuid.UUID `json:"member_id"`
	PartnerGroupID uuid.UUID `json:"partner_group_id"`
	BankName       string    `json:"bank_name"`
	AccountNumber  string    `json:"account_number"`
	DepositAmount  int64     `json:"deposit_amount"`
	DepositDate    time.Time `json:"deposit_date"`
	CreatedAt      time.Time `json:"created_at"`
}

// PointAdjustment is an append-only manual correction by an administrator.
type PointAdjustment struct {
	ID             uuid.UUID  `json:"id"`
	MemberID       uuid.UUID  `json:"member_id"`
	PartnerGroupID uuid.UUID  `json:"partner_group_id"`
	DecreaseAmount int64      `json:"decrease_amount"`
	IncreaseAmount int64      `json:"increase_amount"`
	ChangeAmount   int64      `json:"change_amount"`
	Note           string     `json:"note"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
