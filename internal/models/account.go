package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds one user's spendable balance. Exactly one account exists per
// user; the balance is mutated only by transfers and the accrual job.
type Account struct {
	ID      int64           `json:"id"`
	UserID  int64           `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	// InitialDeposit is the owner's opening deposit, carried alongside the
	// balance because the accrual cap is recomputed from it every cycle.
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
