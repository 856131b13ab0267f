package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/bankoperations/bank-service/internal/models"
)

// lockNotAvailable is the Postgres error code raised when lock_timeout
// expires while waiting on a row lock.
const lockNotAvailable = "55P03"

// Postgres implements Store on top of database/sql with the lib/pq driver.
type Postgres struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewPostgres initializes a Postgres-backed store. lockTimeout bounds the
// wait for row locks inside transactions opened via Begin.
func NewPostgres(db *sql.DB, lockTimeout time.Duration) *Postgres {
	return &Postgres{db: db, lockTimeout: lockTimeout}
}

// CreateUser inserts the user and its account in one transaction.
func (p *Postgres) CreateUser(ctx context.Context, user *models.User) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO bank.users (username, full_name, email, phone_number, date_of_birth, initial_deposit, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err = tx.QueryRowContext(ctx, query,
		user.Username, user.FullName, nullString(user.Email), nullString(user.PhoneNumber),
		user.DateOfBirth, user.InitialDeposit, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bank.accounts (user_id, balance, created_at, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		user.ID, user.InitialDeposit)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user creation: %w", err)
	}
	return nil
}

const userColumns = `id, username, full_name, email, phone_number, date_of_birth, initial_deposit, password_hash, created_at, updated_at`

func (p *Postgres) findUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	var email, phone sql.NullString
	query := `SELECT ` + userColumns + ` FROM bank.users WHERE ` + where
	err := p.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.FullName, &email, &phone,
		&user.DateOfBirth, &user.InitialDeposit, &user.PasswordHash,
		&user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	user.Email = stringPtr(email)
	user.PhoneNumber = stringPtr(phone)
	return user, nil
}

// FindUserByID retrieves a user by id.
func (p *Postgres) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	return p.findUser(ctx, "id = $1", id)
}

// FindUserByUsername retrieves a user by username.
func (p *Postgres) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return p.findUser(ctx, "username = $1", username)
}

// FindUserByEmail retrieves a user by email.
func (p *Postgres) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return p.findUser(ctx, "email = $1", email)
}

// FindUserByPhone retrieves a user by phone number.
func (p *Postgres) FindUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return p.findUser(ctx, "phone_number = $1", phone)
}

// UpdateUser persists mutable user fields (contact info).
func (p *Postgres) UpdateUser(ctx context.Context, user *models.User) error {
	query := `
		UPDATE bank.users
		SET email = $1, phone_number = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
		RETURNING updated_at`
	err := p.db.QueryRowContext(ctx, query,
		nullString(user.Email), nullString(user.PhoneNumber), user.ID).
		Scan(&user.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// ListUsers returns all users ordered by id.
func (p *Postgres) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM bank.users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// sortColumns whitelists the fields search results can be ordered by.
var sortColumns = map[string]string{
	"id":            "id",
	"username":      "username",
	"full_name":     "full_name",
	"email":         "email",
	"phone_number":  "phone_number",
	"date_of_birth": "date_of_birth",
}

// SearchUsers filters users by optional criteria with pagination.
func (p *Postgres) SearchUsers(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM bank.users WHERE 1=1`
	args := []interface{}{}
	n := 0
	next := func() string {
		n++
		return fmt.Sprintf("$%d", n)
	}

	if filter.FullNamePrefix != "" {
		query += ` AND full_name LIKE ` + next()
		args = append(args, filter.FullNamePrefix+"%")
	}
	if filter.Email != "" {
		query += ` AND email = ` + next()
		args = append(args, filter.Email)
	}
	if filter.PhoneNumber != "" {
		query += ` AND phone_number = ` + next()
		args = append(args, filter.PhoneNumber)
	}
	if filter.BornAfter != nil {
		query += ` AND date_of_birth > ` + next()
		args = append(args, *filter.BornAfter)
	}

	col, ok := sortColumns[filter.SortBy]
	if !ok {
		col = "id"
	}
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	size := filter.Size
	if size <= 0 {
		size = 10
	}
	query += fmt.Sprintf(" ORDER BY %s %s LIMIT %s", col, dir, next())
	args = append(args, size)
	query += " OFFSET " + next()
	args = append(args, filter.Page*size)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]*models.User, error) {
	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		var email, phone sql.NullString
		if err := rows.Scan(
			&user.ID, &user.Username, &user.FullName, &email, &phone,
			&user.DateOfBirth, &user.InitialDeposit, &user.PasswordHash,
			&user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.Email = stringPtr(email)
		user.PhoneNumber = stringPtr(phone)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	return users, nil
}

const accountQuery = `
	SELECT a.id, a.user_id, a.balance, u.initial_deposit, a.created_at, a.updated_at
	FROM bank.accounts a
	JOIN bank.users u ON u.id = a.user_id
	WHERE a.user_id = $1`

// GetAccount reads an account without taking a lock.
func (p *Postgres) GetAccount(ctx context.Context, ownerID int64) (*models.Account, error) {
	account := &models.Account{}
	err := p.db.QueryRowContext(ctx, accountQuery, ownerID).Scan(
		&account.ID, &account.UserID, &account.Balance, &account.InitialDeposit,
		&account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListAccountOwners returns all account owner ids in ascending order.
func (p *Postgres) ListAccountOwners(ctx context.Context) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT user_id FROM bank.accounts ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list account owners: %w", err)
	}
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owner id: %w", err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read owner ids: %w", err)
	}
	return owners, nil
}

// ListTransfersByUser returns all transfers the user participated in,
// oldest first.
func (p *Postgres) ListTransfersByUser(ctx context.Context, userID int64) ([]*models.Transfer, error) {
	query := `
		SELECT id, sender_id, recipient_id, amount, created_at
		FROM bank.transfers
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY id`
	rows, err := p.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*models.Transfer
	for rows.Next() {
		t := &models.Transfer{}
		if err := rows.Scan(&t.ID, &t.SenderID, &t.RecipientID, &t.Amount, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transfers: %w", err)
	}
	return transfers, nil
}

// Begin opens a transaction with a bounded row-lock wait.
func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// SET LOCAL scopes the timeout to this transaction only.
	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, timeout); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to set lock timeout: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx *sql.Tx
}

// GetAccountForUpdate locks the account row until the transaction ends.
func (t *pgTx) GetAccountForUpdate(ctx context.Context, ownerID int64) (*models.Account, error) {
	account := &models.Account{}
	err := t.tx.QueryRowContext(ctx, accountQuery+` FOR UPDATE OF a`, ownerID).Scan(
		&account.ID, &account.UserID, &account.Balance, &account.InitialDeposit,
		&account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == lockNotAvailable {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return account, nil
}

// SaveAccount writes the new balance of a previously locked row.
func (t *pgTx) SaveAccount(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE bank.accounts
		SET balance = $1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $2`
	res, err := t.tx.ExecContext(ctx, query, account.Balance, account.UserID)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AppendTransfer inserts a ledger row and fills in its id.
func (t *pgTx) AppendTransfer(ctx context.Context, transfer *models.Transfer) error {
	query := `
		INSERT INTO bank.transfers (sender_id, recipient_id, amount, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	err := t.tx.QueryRowContext(ctx, query,
		transfer.SenderID, transfer.RecipientID, transfer.Amount, transfer.Timestamp).
		Scan(&transfer.ID)
	if err != nil {
		return fmt.Errorf("failed to append transfer: %w", err)
	}
	return nil
}

func (t *pgTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to rollback: %w", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
