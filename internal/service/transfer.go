package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bankoperations/bank-service/internal/models"
	"github.com/bankoperations/bank-service/internal/repository"
)

// Transfer atomically moves amount from the sender's account to the
// recipient's. Both rows are locked for the duration; no other transfer or
// accrual step can observe an intermediate state. On success exactly one
// ledger row is appended; on any failure no state changes.
//
// Failure order: self-transfer, missing sender, missing recipient,
// non-positive amount, insufficient balance (checked under lock). Lock waits
// are bounded; exceeding the bound returns repository.ErrLockTimeout, which
// is transient and safe for the caller to retry. The engine itself never
// retries.
func (s *Service) Transfer(ctx context.Context, senderID, recipientID int64, amount decimal.Decimal) (*models.Transfer, error) {
	if senderID == recipientID {
		return nil, ErrInvalidTransfer
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transfer: %w", err)
	}
	defer tx.Rollback()

	// Lock both rows in ascending owner-id order. Every component that locks
	// more than one account uses this order, so two transfers flowing in
	// opposite directions between the same pair cannot deadlock.
	first, second := senderID, recipientID
	if recipientID < senderID {
		first, second = recipientID, senderID
	}
	accounts := make(map[int64]*models.Account, 2)
	for _, ownerID := range []int64{first, second} {
		account, err := tx.GetAccountForUpdate(ctx, ownerID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				continue
			}
			return nil, err
		}
		accounts[ownerID] = account
	}

	// A missing sender is reported before a missing recipient regardless of
	// which row was probed first.
	sender, ok := accounts[senderID]
	if !ok {
		return nil, ErrSenderNotFound
	}
	recipient, ok := accounts[recipientID]
	if !ok {
		return nil, ErrRecipientNotFound
	}

	if amount.Sign() <= 0 {
		return nil, ErrInvalidTransfer
	}
	if sender.Balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}

	sender.Balance = sender.Balance.Sub(amount)
	recipient.Balance = recipient.Balance.Add(amount)
	if err := tx.SaveAccount(ctx, sender); err != nil {
		return nil, fmt.Errorf("failed to debit sender: %w", err)
	}
	if err := tx.SaveAccount(ctx, recipient); err != nil {
		return nil, fmt.Errorf("failed to credit recipient: %w", err)
	}

	transfer := &models.Transfer{
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      amount,
		Timestamp:   time.Now(),
	}
	if err := tx.AppendTransfer(ctx, transfer); err != nil {
		return nil, fmt.Errorf("failed to append transfer record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}

	s.log.Infof("User with ID %d sent %s to user with ID %d", senderID, amount, recipientID)
	s.notifyTransfer(transfer)
	return transfer, nil
}

// notifyTransfer sends emails to both parties in the background. Delivery
// failures are logged and never affect the committed transfer.
func (s *Service) notifyTransfer(transfer *models.Transfer) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.notifyParty(ctx, transfer, transfer.SenderID, false)
		s.notifyParty(ctx, transfer, transfer.RecipientID, true)
	}()
}

func (s *Service) notifyParty(ctx context.Context, transfer *models.Transfer, userID int64, incoming bool) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		s.log.Warnf("Skipping transfer notification for user %d: %v", userID, err)
		return
	}
	if user.Email == nil {
		return
	}
	if err := s.notifier.SendTransferNotification(*user.Email, user.Username, transfer, incoming); err != nil {
		s.log.Errorf("Failed to notify user %d about transfer %d: %v", userID, transfer.ID, err)
	}
}
