package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankoperations/bank-service/internal/repository"
)

func TestTransferToSameAccount(t *testing.T) {
	svc, _ := newTestService(t, time.Second)
	sender := registerUser(t, svc, "alice", "100")

	_, err := svc.Transfer(context.Background(), sender.ID, sender.ID, decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, ErrInvalidTransfer)
	requireBalance(t, svc, sender.ID, "100")
}

func TestTransferSenderNotFound(t *testing.T) {
	svc, _ := newTestService(t, time.Second)
	recipient := registerUser(t, svc, "bob", "50")

	_, err := svc.Transfer(context.Background(), recipient.ID+100, recipient.ID, decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, ErrSenderNotFound)
	requireBalance(t, svc, recipient.ID, "50")
}

func TestTransferRecipientNotFound(t *testing.T) {
	svc, _ := newTestService(t, time.Second)
	sender := registerUser(t, svc, "alice", "100")

	_, err := svc.Transfer(context.Background(), sender.ID, sender.ID+100, decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, ErrRecipientNotFound)
	requireBalance(t, svc, sender.ID, "100")
}

// A missing sender is reported before a missing recipient even when both are
// absent and even when the recipient id sorts first for locking.
func TestTransferSenderNotFoundWins(t *testing.T) {
	svc, _ := newTestService(t, time.Second)
	user := registerUser(t, svc, "alice", "100")

	_, err := svc.Transfer(context.Background(), user.ID+200, user.ID+100, decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, ErrSenderNotFound)
}

func TestTransferNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t, time.Second)
	sender := registerUser(t, svc, "alice", "100")
	recipient := registerUser(t, svc, "bob", "50")

	for _, amount := range []string{"0", "-5"} {
		_, err := svc.Transfer(context.Background(), sender.ID, recipient.ID, decimal.RequireFromString(amount))
		assert.ErrorIs(t, err, ErrInvalidTransfer, "amount %s", amount)
	}
	requireBalance(t, svc, sender.ID, "100")
	requireBalance(t, svc, recipient.ID, "50")
}

func TestTransferInsufficientBalance(t *testing.T) {
	svc, _ := newTestService(t, time.Second)
	sender := registerUser(t, svc, "alice", "50")
	recipient := registerUser(t, svc, "bob", "100")

	_, err := svc.Transfer(context.Background(), sender.ID, recipient.ID, decimal.RequireFromString("100"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	requireBalance(t, svc, sender.ID, "50")
	requireBalance(t, svc, recipient.ID, "100")

	transfers, err := svc.ListTransfers(context.Background(), sender.ID)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestTransferSuccess(t *testing.T) {
	svc, _ := newTestService(t, time.Second)
	sender := registerUser(t, svc, "alice", "100")
	recipient := registerUser(t, svc, "bob", "50")

	transfer, err := svc.Transfer(context.Background(), sender.ID, recipient.ID, decimal.RequireFromString("30"))
	require.NoError(t, err)

	assert.NotZero(t, transfer.ID)
	assert.Equal(t, sender.ID, transfer.SenderID)
	assert.Equal(t, recipient.ID, transfer.RecipientID)
	assert.True(t, transfer.Amount.Equal(decimal.RequireFromString("30")))
	assert.False(t, transfer.Timestamp.IsZero())

	requireBalance(t, svc, sender.ID, "70")
	requireBalance(t, svc, recipient.ID, "80")

	transfers, err := svc.ListTransfers(context.Background(), sender.ID)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, transfer.ID, transfers[0].ID)
}

// Sender delta plus recipient delta is zero: no money created or destroyed.
func TestTransferConservation(t *testing.T) {
	svc, _ := newTestService(t, time.Second)
	sender := registerUser(t, svc, "alice", "300")
	recipient := registerUser(t, svc, "bob", "120")

	before := balanceOf(t, svc, sender.ID).Add(balanceOf(t, svc, recipient.ID))
	for _, amount := range []string{"10", "25.50", "0.01"} {
		_, err := svc.Transfer(context.Background(), sender.ID, recipient.ID, decimal.RequireFromString(amount))
		require.NoError(t, err)
	}
	after := balanceOf(t, svc, sender.ID).Add(balanceOf(t, svc, recipient.ID))
	assert.True(t, before.Equal(after), "total before %s, after %s", before, after)
}

// N concurrent debits from one account must all land: the locking discipline
// permits no lost updates.
func TestTransferConcurrentSameSender(t *testing.T) {
	svc, _ := newTestService(t, 10*time.Second)
	sender := registerUser(t, svc, "alice", "1000")
	recipient := registerUser(t, svc, "bob", "0.01")

	const n = 25
	amount := decimal.RequireFromString("2")

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(context.Background(), sender.ID, recipient.ID, amount)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	requireBalance(t, svc, sender.ID, "950")
	requireBalance(t, svc, recipient.ID, "50.01")

	transfers, err := svc.ListTransfers(context.Background(), sender.ID)
	require.NoError(t, err)
	assert.Len(t, transfers, n)
}

// Transfers flowing in opposite directions between the same two accounts
// must not deadlock; the canonical lock order makes them serialize.
func TestTransferOppositeDirections(t *testing.T) {
	svc, _ := newTestService(t, 10*time.Second)
	a := registerUser(t, svc, "alice", "500")
	b := registerUser(t, svc, "bob", "500")

	const rounds = 20
	amount := decimal.RequireFromString("1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := svc.Transfer(context.Background(), a.ID, b.ID, amount)
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := svc.Transfer(context.Background(), b.ID, a.ID, amount)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	// Equal traffic both ways leaves both balances where they started.
	requireBalance(t, svc, a.ID, "500")
	requireBalance(t, svc, b.ID, "500")
}

// A transfer that cannot take the sender's row lock within the bound fails
// with the transient lock-timeout error instead of blocking indefinitely.
func TestTransferLockTimeout(t *testing.T) {
	svc, store := newTestService(t, 100*time.Millisecond)
	sender := registerUser(t, svc, "alice", "100")
	recipient := registerUser(t, svc, "bob", "50")

	blocker, err := store.Begin(context.Background())
	require.NoError(t, err)
	_, err = blocker.GetAccountForUpdate(context.Background(), sender.ID)
	require.NoError(t, err)

	_, err = svc.Transfer(context.Background(), sender.ID, recipient.ID, decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, repository.ErrLockTimeout)

	require.NoError(t, blocker.Rollback())
	requireBalance(t, svc, sender.ID, "100")
	requireBalance(t, svc, recipient.ID, "50")
}
