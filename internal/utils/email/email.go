package email

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/bankoperations/bank-service/internal/config"
	"github.com/bankoperations/bank-service/internal/models"
)

// Sender delivers transfer notifications via SMTP.
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendTransferNotification tells one party about a completed transfer.
// incoming selects the credited-party wording.
func (s *Sender) SendTransferNotification(to, username string, transfer *models.Transfer, incoming bool) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	if incoming {
		e.Subject = "Incoming Transfer Notification"
	} else {
		e.Subject = "Outgoing Transfer Notification"
	}

	body := fmt.Sprintf("Dear %s,\n\n", username)
	if incoming {
		body += fmt.Sprintf(
			"You received %s from user %d.\n"+
				"Transfer time: %s\n",
			transfer.Amount, transfer.SenderID, transfer.Timestamp.Format("2006-01-02 15:04:05"),
		)
	} else {
		body += fmt.Sprintf(
			"You sent %s to user %d.\n"+
				"Transfer time: %s\n",
			transfer.Amount, transfer.RecipientID, transfer.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}
	body += "\nBest regards,\nBank Service"
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
