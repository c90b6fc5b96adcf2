// Package alert delivers operational notifications, currently over SMTP.
// The circuit breaker around the oracle's model client raises one when it
// opens.
package alert

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/soundprediction/reconcile/pkg/config"
)

// Alerter sends a notification with a subject and body.
type Alerter interface {
	Alert(subject, message string) error
}

// EmailAlerter implements Alerter over SMTP. A disabled config turns every
// Alert into a no-op so callers never need to branch.
type EmailAlerter struct {
	cfg config.AlertConfig
}

var _ Alerter = (*EmailAlerter)(nil)

// NewEmailAlerter creates a new email alerter.
func NewEmailAlerter(cfg config.AlertConfig) *EmailAlerter {
	return &EmailAlerter{cfg: cfg}
}

// Alert sends an email with the given subject and message.
func (a *EmailAlerter) Alert(subject, message string) error {
	if !a.cfg.Enabled {
		return nil
	}

	auth := smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.SMTPHost)

	var msg strings.Builder
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(a.cfg.To, ","))
	fmt.Fprintf(&msg, "Subject: [reconcile] %s\r\n\r\n", subject)
	fmt.Fprintf(&msg, "%s\r\n", message)

	addr := fmt.Sprintf("%s:%d", a.cfg.SMTPHost, a.cfg.SMTPPort)
	if err := smtp.SendMail(addr, auth, a.cfg.From, a.cfg.To, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}

// NoOpAlerter discards every alert.
type NoOpAlerter struct{}

var _ Alerter = (*NoOpAlerter)(nil)

func (n *NoOpAlerter) Alert(subject, message string) error {
	return nil
}
