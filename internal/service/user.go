package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bankoperations/bank-service/internal/models"
	"github.com/bankoperations/bank-service/internal/repository"
)

// GetUserByID retrieves a user by id.
func (s *Service) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ListUsers returns all registered users.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.repo.ListUsers(ctx)
}

// SearchUsers filters users by the optional criteria with pagination.
func (s *Service) SearchUsers(ctx context.Context, filter repository.UserFilter) ([]*models.User, error) {
	return s.repo.SearchUsers(ctx, filter)
}

// UpdateEmail replaces the user's email address.
func (s *Service) UpdateEmail(ctx context.Context, userID int64, newEmail string) (*models.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	old := "<none>"
	if user.Email != nil {
		old = *user.Email
	}
	user.Email = &newEmail
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update email: %w", err)
	}

	s.log.Infof("User with ID %d updated email %s to %s", userID, old, newEmail)
	return user, nil
}

// UpdatePhoneNumber replaces the user's phone number.
func (s *Service) UpdatePhoneNumber(ctx context.Context, userID int64, newPhone string) (*models.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	old := "<none>"
	if user.PhoneNumber != nil {
		old = *user.PhoneNumber
	}
	user.PhoneNumber = &newPhone
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update phone number: %w", err)
	}

	s.log.Infof("User with ID %d updated phone %s to %s", userID, old, newPhone)
	return user, nil
}

// DeleteEmail removes the user's email. Refused when the phone number is the
// only other contact method and is absent: a user always keeps at least one.
func (s *Service) DeleteEmail(ctx context.Context, userID int64) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PhoneNumber == nil {
		return ErrNoContactInfo
	}

	user.Email = nil
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to delete email: %w", err)
	}
	s.log.Infof("User with ID %d deleted email", userID)
	return nil
}

// DeletePhoneNumber removes the user's phone number, subject to the same
// last-contact-method rule as DeleteEmail.
func (s *Service) DeletePhoneNumber(ctx context.Context, userID int64) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Email == nil {
		return ErrNoContactInfo
	}

	user.PhoneNumber = nil
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to delete phone number: %w", err)
	}
	s.log.Infof("User with ID %d deleted phone number", userID)
	return nil
}
