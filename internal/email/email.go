package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Message carries both renderings of one email. Either body may be empty.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender logs emails instead of sending them, used with EMAIL_TRANSPORT=log.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email (log transport)", "to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}

// ResendSender sends emails via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTML,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

type Config struct {
	Transport    string // smtp | resend | log | ""
	From         string
	ResendAPIKey string
	SMTP         SMTPConfig
}

// NewSender picks the transport named by cfg.Transport. It returns nil when no transport is
// configured, so email dispatches fail as not configured instead of crashing.
func NewSender(cfg Config, logger *slog.Logger) Sender {
	switch cfg.Transport {
	case "log":
		return &LogSender{logger: logger.With("component", "email")}
	case "resend":
		return &ResendSender{
			client: resend.NewClient(cfg.ResendAPIKey),
			from:   cfg.From,
		}
	case "smtp":
		return NewSMTPSender(cfg.SMTP, cfg.From)
	default:
		return nil
	}
}
