package receipt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridConfig configures email receipts.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// BaseURL overrides the send endpoint; empty uses SendGrid's.
	BaseURL string
}

// SendGridSender emails receipts through SendGrid.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *slog.Logger
}

// NewSendGridSender creates an email sender.
func NewSendGridSender(cfg SendGridConfig, logger *slog.Logger) (*SendGridSender, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid api key is empty")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("receipt from address is empty")
	}

	client := sendgrid.NewSendClient(cfg.APIKey)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	return &SendGridSender{
		client: client,
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}, nil
}

// Channel implements Sender.
func (s *SendGridSender) Channel() string { return ChannelEmail }

// Send implements Sender.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if msg.To.Email == "" {
		return ErrNoContact
	}

	message := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail(msg.To.Name, msg.To.Email), msg.Text, msg.HTML)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.WarnContext(ctx, "sendgrid rejected receipt",
			slog.Int("status", response.StatusCode),
			slog.String("body", response.Body),
		)
		return fmt.Errorf("sendgrid send failed: status=%d", response.StatusCode)
	}
	return nil
}
