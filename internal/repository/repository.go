package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bankoperations/bank-service/internal/models"
)

// Storage-level errors shared by all backends.
var (
	// ErrUserNotFound is returned by user lookups that match nothing.
	ErrUserNotFound = errors.New("user not found")

	// ErrAccountNotFound is returned when no account exists for an owner id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrLockTimeout is returned when an exclusive account lock cannot be
	// acquired within the configured wait bound. Safe to retry.
	ErrLockTimeout = errors.New("timed out waiting for account lock")
)

// UserFilter describes an optional-field search over users. Zero values mean
// "no constraint". FullNamePrefix matches the beginning of the full name;
// Email and PhoneNumber match exactly; BornAfter is a strict lower bound.
type UserFilter struct {
	FullNamePrefix string
	Email          string
	PhoneNumber    string
	BornAfter      *time.Time
	Page           int
	Size           int
	SortBy         string
	SortDesc       bool
}

// Tx is a unit of work over account rows and the transfer ledger. Rows read
// through GetAccountForUpdate stay exclusively locked until Commit or
// Rollback; all writes staged in the Tx apply atomically on Commit.
type Tx interface {
	// GetAccountForUpdate reads the account of ownerID under an exclusive
	// lock. A concurrent Tx holding the same account blocks this call; the
	// wait is bounded and ErrLockTimeout is returned when it elapses.
	GetAccountForUpdate(ctx context.Context, ownerID int64) (*models.Account, error)

	// SaveAccount stages the account's new balance for commit.
	SaveAccount(ctx context.Context, account *models.Account) error

	// AppendTransfer stages a ledger row and assigns its id.
	AppendTransfer(ctx context.Context, transfer *models.Transfer) error

	Commit() error
	Rollback() error
}

// Store is the persistence boundary used by the service layer. Two backends
// exist: Postgres (production) and an in-memory store (tests, demos).
type Store interface {
	// CreateUser persists the user and its account (opening balance equal to
	// the initial deposit) as one atomic unit, filling in generated fields.
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByPhone(ctx context.Context, phone string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context) ([]*models.User, error)
	SearchUsers(ctx context.Context, filter UserFilter) ([]*models.User, error)

	// GetAccount reads an account without locking it. Non-authoritative;
	// display use only.
	GetAccount(ctx context.Context, ownerID int64) (*models.Account, error)

	// ListAccountOwners returns the owner ids of all accounts.
	ListAccountOwners(ctx context.Context) ([]int64, error)

	ListTransfersByUser(ctx context.Context, userID int64) ([]*models.Transfer, error)

	// Begin opens a unit of work for balance mutations.
	Begin(ctx context.Context) (Tx, error)
}
