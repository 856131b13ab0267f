package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is one completed money movement between two distinct accounts.
// Records are append-only and never mutated after creation.
type Transfer struct {
	ID          int64           `json:"id"`
	SenderID    int64           `json:"sender_id"`
	RecipientID int64           `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   time.Time       `json:"timestamp"`
}
