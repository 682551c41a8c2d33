package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

// ResendEmails is the part of the Resend client the sender uses.
type ResendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// resendSender implements Sender on the Resend API.
type resendSender struct {
	emails ResendEmails
	from   string
	logger zerolog.Logger
}

// NewResendSender creates a sender for apiKey.
func NewResendSender(apiKey, from string, logger zerolog.Logger) Sender {
	return NewResendSenderFrom(resend.NewClient(apiKey).Emails, from, logger)
}

// NewResendSenderFrom wraps an existing emails service.
func NewResendSenderFrom(emails ResendEmails, from string, logger zerolog.Logger) Sender {
	return &resendSender{
		emails: emails,
		from:   from,
		logger: logger.With().Str("component", "resend-sender").Logger(),
	}
}

func (s *resendSender) Send(ctx context.Context, email Email) error {
	req := &resend.SendEmailRequest{
		From:    s.from,
		To:      email.To,
		Subject: email.Subject,
		Html:    email.HTML,
	}
	for _, a := range email.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Filename: a.Filename,
			Content:  a.Content,
		})
	}

	resp, err := s.emails.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", strings.Join(email.To, ","), err)
	}

	s.logger.Debug().
		Str("email_id", resp.Id).
		Strs("to", email.To).
		Str("subject", email.Subject).
		Msg("email sent")
	return nil
}

// logSender writes emails to the log instead of sending them.
type logSender struct {
	logger zerolog.Logger
}

// NewLogSender creates a sender for environments without an email provider.
func NewLogSender(logger zerolog.Logger) Sender {
	return &logSender{logger: logger.With().Str("component", "log-sender").Logger()}
}

func (s *logSender) Send(ctx context.Context, email Email) error {
	s.logger.Info().
		Strs("to", email.To).
		Str("subject", email.Subject).
		Int("attachments", len(email.Attachments)).
		Msg("email not sent: no provider configured")
	return nil
}
