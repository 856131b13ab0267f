package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered customer. Email and PhoneNumber are nullable,
// but a user always keeps at least one of them.
type User struct {
	ID             int64           `json:"id"`
	Username       string          `json:"username"`
	FullName       string          `json:"full_name"`
	Email          *string         `json:"email,omitempty"`
	PhoneNumber    *string         `json:"phone_number,omitempty"`
	DateOfBirth    time.Time       `json:"date_of_birth"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
	PasswordHash   string          `json:"-"` // Not serialized
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HasContactInfo reports whether the user still has at least one contact method.
func (u *User) HasContactInfo() bool {
	return u.Email != nil || u.PhoneNumber != nil
}
