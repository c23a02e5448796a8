package notify

import (
	"strings"

	"github.com/wolfman30/clinic-serial/pkg/logging"
)

// ProviderConfig selects and configures the email provider.
type ProviderConfig struct {
	Provider          string // "sendgrid", "ses", "stub" or "auto"
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
}

// NewEmailSender picks an EmailSender. "auto" prefers SendGrid when a key is
// set, then SES when a client and sender address exist. Anything that cannot
// be configured falls back to the stub sender.
func NewEmailSender(cfg ProviderConfig, ses SESAPI, logger *logging.Logger) EmailSender {
	if logger == nil {
		logger = logging.Default()
	}

	sendGrid := func() EmailSender {
		if s := NewSendGridSender(SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}
	viaSES := func() EmailSender {
		if cfg.SESFromEmail == "" {
			return nil
		}
		if s := NewSESSender(ses, SESConfig{FromEmail: cfg.SESFromEmail, FromName: cfg.SendGridFromName}, logger); s != nil {
			return s
		}
		return nil
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	var sender EmailSender
	switch provider {
	case "sendgrid":
		sender = sendGrid()
	case "ses":
		sender = viaSES()
	case "stub", "none":
	default:
		if sender = sendGrid(); sender == nil {
			sender = viaSES()
		}
	}
	if sender == nil {
		logger.Warn("email provider not configured, using stub sender", "provider", provider)
		return NewStubEmailSender(logger)
	}
	return sender
}
