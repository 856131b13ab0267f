package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bankoperations/bank-service/internal/models"
)

// Memory implements Store entirely in process. Each account carries its own
// lock channel, so two transactions touching different accounts never block
// each other; transactions touching the same account serialize on it exactly
// like a row lock would. Used by tests and as a databaseless demo backend.
type Memory struct {
	mu          sync.Mutex
	lockTimeout time.Duration

	nextUserID     int64
	nextTransferID int64
	nextAccountID  int64

	users     map[int64]*models.User
	accounts  map[int64]*models.Account // keyed by owner id
	locks     map[int64]chan struct{}   // per-owner exclusive lock, cap 1
	transfers []*models.Transfer
}

// NewMemory initializes an empty in-memory store. lockTimeout bounds the
// wait inside GetAccountForUpdate.
func NewMemory(lockTimeout time.Duration) *Memory {
	return &Memory{
		lockTimeout: lockTimeout,
		users:       make(map[int64]*models.User),
		accounts:    make(map[int64]*models.Account),
		locks:       make(map[int64]chan struct{}),
	}
}

// CreateUser stores the user and opens its account with the initial deposit.
func (m *Memory) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextUserID++
	m.nextAccountID++
	now := time.Now()
	user.ID = m.nextUserID
	user.CreatedAt = now
	user.UpdatedAt = now

	cp := *user
	m.users[user.ID] = &cp
	m.accounts[user.ID] = &models.Account{
		ID:             m.nextAccountID,
		UserID:         user.ID,
		Balance:        user.InitialDeposit,
		InitialDeposit: user.InitialDeposit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return nil
}

// FindUserByID retrieves a user by id.
func (m *Memory) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) findUser(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

// FindUserByUsername retrieves a user by username.
func (m *Memory) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return u.Username == username })
}

// FindUserByEmail retrieves a user by email.
func (m *Memory) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return u.Email != nil && *u.Email == email })
}

// FindUserByPhone retrieves a user by phone number.
func (m *Memory) FindUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return u.PhoneNumber != nil && *u.PhoneNumber == phone })
}

// UpdateUser persists mutable user fields.
func (m *Memory) UpdateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	stored.Email = user.Email
	stored.PhoneNumber = user.PhoneNumber
	stored.UpdatedAt = time.Now()
	user.UpdatedAt = stored.UpdatedAt
	return nil
}

// ListUsers returns all users ordered by id.
func (m *Memory) ListUsers(ctx context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SearchUsers filters users by optional criteria with pagination.
func (m *Memory) SearchUsers(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	m.mu.Lock()
	var out []*models.User
	for _, u := range m.users {
		if filter.FullNamePrefix != "" && !strings.HasPrefix(u.FullName, filter.FullNamePrefix) {
			continue
		}
		if filter.Email != "" && (u.Email == nil || *u.Email != filter.Email) {
			continue
		}
		if filter.PhoneNumber != "" && (u.PhoneNumber == nil || *u.PhoneNumber != filter.PhoneNumber) {
			continue
		}
		if filter.BornAfter != nil && !u.DateOfBirth.After(*filter.BornAfter) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	m.mu.Unlock()

	less := func(a, b *models.User) bool { return a.ID < b.ID }
	switch filter.SortBy {
	case "username":
		less = func(a, b *models.User) bool { return a.Username < b.Username }
	case "full_name":
		less = func(a, b *models.User) bool { return a.FullName < b.FullName }
	case "date_of_birth":
		less = func(a, b *models.User) bool { return a.DateOfBirth.Before(b.DateOfBirth) }
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.SortDesc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})

	size := filter.Size
	if size <= 0 {
		size = 10
	}
	start := filter.Page * size
	if start >= len(out) {
		return nil, nil
	}
	end := start + size
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

// GetAccount reads an account snapshot without locking.
func (m *Memory) GetAccount(ctx context.Context, ownerID int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[ownerID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// ListAccountOwners returns all account owner ids in ascending order.
func (m *Memory) ListAccountOwners(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owners := make([]int64, 0, len(m.accounts))
	for id := range m.accounts {
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return owners, nil
}

// ListTransfersByUser returns the user's transfers, oldest first.
func (m *Memory) ListTransfersByUser(ctx context.Context, userID int64) ([]*models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transfer
	for _, t := range m.transfers {
		if t.SenderID == userID || t.RecipientID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Begin opens an in-memory unit of work.
func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	return &memTx{
		store:  m,
		staged: make(map[int64]*models.Account),
	}, nil
}

// lockFor returns the lock channel of an owner, creating it on first use.
func (m *Memory) lockFor(ownerID int64) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[ownerID]
	if !ok {
		l = make(chan struct{}, 1)
		m.locks[ownerID] = l
	}
	return l
}

type heldLock struct {
	ownerID int64
	ch      chan struct{}
}

type memTx struct {
	store  *Memory
	held   []heldLock                // locks taken by this tx
	staged map[int64]*models.Account // pending saves keyed by owner
	queue  []*models.Transfer        // pending ledger appends
	done   bool
}

func (t *memTx) holds(ownerID int64) bool {
	for _, h := range t.held {
		if h.ownerID == ownerID {
			return true
		}
	}
	return false
}

// GetAccountForUpdate takes the owner's exclusive lock, waiting at most the
// store's lock timeout, then reads the current account state.
func (t *memTx) GetAccountForUpdate(ctx context.Context, ownerID int64) (*models.Account, error) {
	if !t.holds(ownerID) {
		l := t.store.lockFor(ownerID)
		timer := time.NewTimer(t.store.lockTimeout)
		defer timer.Stop()
		select {
		case l <- struct{}{}:
			t.held = append(t.held, heldLock{ownerID: ownerID, ch: l})
		case <-timer.C:
			return nil, ErrLockTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if staged, ok := t.staged[ownerID]; ok {
		cp := *staged
		return &cp, nil
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	a, ok := t.store.accounts[ownerID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// SaveAccount stages the account's new state for commit.
func (t *memTx) SaveAccount(ctx context.Context, account *models.Account) error {
	cp := *account
	t.staged[account.UserID] = &cp
	return nil
}

// AppendTransfer stages a ledger row; the id is assigned at commit.
func (t *memTx) AppendTransfer(ctx context.Context, transfer *models.Transfer) error {
	t.queue = append(t.queue, transfer)
	return nil
}

// Commit applies all staged writes under the store mutex, then releases the
// account locks. Either every staged write lands or none does.
func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	now := time.Now()
	for ownerID, staged := range t.staged {
		stored, ok := t.store.accounts[ownerID]
		if !ok {
			t.store.mu.Unlock()
			t.release()
			return ErrAccountNotFound
		}
		stored.Balance = staged.Balance
		stored.UpdatedAt = now
	}
	for _, transfer := range t.queue {
		t.store.nextTransferID++
		transfer.ID = t.store.nextTransferID
		cp := *transfer
		t.store.transfers = append(t.store.transfers, &cp)
	}
	t.store.mu.Unlock()
	t.release()
	return nil
}

// Rollback discards staged writes and releases held locks. Calling it after
// Commit is a no-op.
func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.staged = make(map[int64]*models.Account)
	t.queue = nil
	t.release()
	return nil
}

func (t *memTx) release() {
	t.done = true
	for _, h := range t.held {
		<-h.ch
	}
	t.held = nil
}
