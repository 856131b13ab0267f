package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/bankoperations/bank-service/internal/config"
	"github.com/bankoperations/bank-service/internal/models"
	"github.com/bankoperations/bank-service/internal/repository"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:            "test-secret",
		LockTimeout:          5 * time.Second,
		AccrualInterval:      time.Minute,
		AccrualGrowthFactor:  decimal.RequireFromString("1.05"),
		AccrualCapMultiplier: decimal.RequireFromString("2.07"),
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(t *testing.T, lockTimeout time.Duration) (*Service, *repository.Memory) {
	t.Helper()
	store := repository.NewMemory(lockTimeout)
	cfg := testConfig()
	cfg.LockTimeout = lockTimeout
	return NewService(store, testLogger(), cfg, nil), store
}

// registerUser creates a user whose account opens with the given deposit.
func registerUser(t *testing.T, svc *Service, username, deposit string) *models.User {
	t.Helper()
	email := username + "@example.com"
	user, err := svc.Register(context.Background(), RegisterRequest{
		Username:       username,
		FullName:       "Test " + username,
		Password:       "password123",
		Email:          &email,
		DateOfBirth:    time.Date(1990, 1, 15, 0, 0, 0, 0, time.UTC),
		InitialDeposit: decimal.RequireFromString(deposit),
	})
	require.NoError(t, err)
	return user
}

func balanceOf(t *testing.T, svc *Service, ownerID int64) decimal.Decimal {
	t.Helper()
	account, err := svc.GetAccount(context.Background(), ownerID)
	require.NoError(t, err)
	return account.Balance
}

func requireBalance(t *testing.T, svc *Service, ownerID int64, want string) {
	t.Helper()
	got := balanceOf(t, svc, ownerID)
	require.True(t, got.Equal(decimal.RequireFromString(want)),
		"balance of user %d: got %s, want %s", ownerID, got, want)
}
