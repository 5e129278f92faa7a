package models

import (
	"time"

	"github.com/google/uuid"
)

// PartnerGroup is a tenant organization. Members, applications and ledger
// records all belong to exactly one partner, except the root administrator.
type PartnerGroup struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	BusinessNumber string    `json:"business_number"`
	Representative string    `json:"representative"`
	Phone          string    `json:"phone"`
	BankName       string    `json:"bank_name"`
	AccountNumber  string    `json:"account_number"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}
