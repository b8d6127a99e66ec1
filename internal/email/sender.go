// Package email delivers transactional mail. Only the sign-in link is sent
// from this service.
package email

import (
	"context"
	"log/slog"

	"processhub_backend/platform/config"
	"processhub_backend/platform/logger"
)

const subjectMagicLink = "Your sign-in link"

// Sender delivers transactional emails.
type Sender interface {
	SendMagicLinkEmail(ctx context.Context, toEmail, signInURL string, expiresInMinutes int) error
}

// NoopSender drops every message. Used when email is disabled.
type NoopSender struct {
	log *logger.Logger
}

func (n NoopSender) SendMagicLinkEmail(_ context.Context, toEmail, _ string, _ int) error {
	if n.log != nil {
		n.log.Debug("email disabled, magic link not sent", slog.String("email_fp", logger.EmailFingerprint(toEmail)))
	}
	return nil
}

// NewSender returns an SMTP sender, or a NoopSender when email is disabled.
func NewSender(cfg config.EmailConfig, log *logger.Logger) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{log: log}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}

func magicLinkContent(signInURL string, expiresInMinutes int) (string, error) {
	return renderEmailTemplate("magic_link.html", magicLinkEmailData{
		baseEmailData: baseEmailData{
			Title:      subjectMagicLink,
			Heading:    "Sign in to ProcessHub",
			Subheading: "Use the button below to finish signing in.",
			CTALabel:   "Sign in",
			CTAURL:     signInURL,
		},
		ExpiresInMinutes: expiresInMinutes,
	})
}
