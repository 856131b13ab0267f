package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/bankoperations/bank-service/internal/config"
	"github.com/bankoperations/bank-service/internal/models"
	"github.com/bankoperations/bank-service/internal/repository"
)

// Notifier delivers out-of-band messages about completed transfers. The
// transfer itself never waits on or fails because of a notification.
type Notifier interface {
	SendTransferNotification(to, username string, transfer *models.Transfer, incoming bool) error
}

// Service handles business logic
type Service struct {
	repo     repository.Store
	log      *logrus.Logger
	config   *config.Config
	notifier Notifier
}

// NewService initializes a new service. notifier may be nil, which disables
// transfer notifications.
func NewService(repo repository.Store, log *logrus.Logger, cfg *config.Config, notifier Notifier) *Service {
	return &Service{repo: repo, log: log, config: cfg, notifier: notifier}
}

// RegisterRequest carries the fields needed to create a user and its account.
type RegisterRequest struct {
	Username       string
	FullName       string
	Password       string
	Email          *string
	PhoneNumber    *string
	DateOfBirth    time.Time
	InitialDeposit decimal.Decimal
}

// Register validates the request, creates the user and opens its account
// with the initial deposit as the starting balance.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if err := s.validateRegistration(ctx, req); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:       req.Username,
		FullName:       req.FullName,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		DateOfBirth:    req.DateOfBirth,
		InitialDeposit: req.InitialDeposit,
		PasswordHash:   string(hashedPassword),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User with username %s was created", user.Username)
	return user, nil
}

// validateRegistration applies the registration rules in order; the first
// failing check wins.
func (s *Service) validateRegistration(ctx context.Context, req RegisterRequest) error {
	if req.InitialDeposit.Sign() <= 0 {
		return ErrInvalidInitialDeposit
	}
	if req.Email == nil && req.PhoneNumber == nil {
		return ErrNoContactInfo
	}

	if _, err := s.repo.FindUserByUsername(ctx, req.Username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return fmt.Errorf("failed to check username: %w", err)
	}

	if req.Email != nil {
		if _, err := s.repo.FindUserByEmail(ctx, *req.Email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return fmt.Errorf("failed to check email: %w", err)
		}
	}

	if req.PhoneNumber != nil {
		if _, err := s.repo.FindUserByPhone(ctx, *req.PhoneNumber); err == nil {
			return ErrPhoneTaken
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return fmt.Errorf("failed to check phone number: %w", err)
		}
	}
	return nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.repo.FindUserByUsername(ctx, username)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", user.ID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User %s sign in", user.Username)
	return tokenString, nil
}

// GetAccount returns a non-authoritative balance snapshot for display.
func (s *Service) GetAccount(ctx context.Context, ownerID int64) (*models.Account, error) {
	account, err := s.repo.GetAccount(ctx, ownerID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, ErrUserNotFound
	}
	return account, err
}

// ListTransfers returns the user's transfer history, oldest first.
func (s *Service) ListTransfers(ctx context.Context, userID int64) ([]*models.Transfer, error) {
	return s.repo.ListTransfersByUser(ctx, userID)
}
