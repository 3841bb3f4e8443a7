package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailSender is the transport. Implementations can be swapped without
// touching the message composition above them.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// SendGridSender sends via the SendGrid API.
type SendGridSender struct {
	client   *sendgrid.Client
	from     string
	fromName string
	logger   zerolog.Logger
}

func NewSendGridSender(apiKey, from, fromName string, logger zerolog.Logger) *SendGridSender {
	if apiKey == "" {
		return nil
	}
	return &SendGridSender{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
		logger:   logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	message := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.from),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		msg.Body,
	)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Debug().Str("to", msg.To).Str("subject", msg.Subject).Msg("email sent")
	return nil
}

var _ EmailSender = (*SendGridSender)(nil)

// StubSender logs instead of sending. Used in tests and when no API key is
// configured.
type StubSender struct {
	logger zerolog.Logger
}

func NewStubSender(logger zerolog.Logger) *StubSender {
	return &StubSender{logger: logger}
}

func (s *StubSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("stub email sender: would send")
	return nil
}

var _ EmailSender = (*StubSender)(nil)
