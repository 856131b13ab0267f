package service

import "errors"

// Domain errors. Every rejected operation carries a distinguishable reason so
// the caller can decide whether to correct input, retry, or abort.
var (
	// ErrInvalidTransfer rejects self-transfers and non-positive amounts.
	ErrInvalidTransfer = errors.New("you cannot transfer money to your account")

	// ErrSenderNotFound means the sending party has no account.
	ErrSenderNotFound = errors.New("sender not found")

	// ErrRecipientNotFound means the receiving party has no account.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrInsufficientBalance is raised under lock when the sender cannot
	// cover the requested amount.
	ErrInsufficientBalance = errors.New("there are not enough funds in the account to complete the transfer")

	// ErrUserNotFound means the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoContactInfo rejects removing a user's last contact method.
	ErrNoContactInfo = errors.New("you can't delete all contact info")

	// User registration rejections, checked in order.
	ErrInvalidInitialDeposit = errors.New("initial deposit can't be 0 or less")
	ErrUsernameTaken         = errors.New("this username is already in use")
	ErrEmailTaken            = errors.New("this email is already in use")
	ErrPhoneTaken            = errors.New("this phone number is already in use")

	// ErrInvalidCredentials rejects a failed sign-in without detail.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
