package infra

import (
	"fmt"
	"net/smtp"
	"strings"

	"fulfillment/internal/config"

	"github.com/jordan-wright/email"
)

// Mailer sends plain-text notices through the configured SMTP relay.
type Mailer struct {
	host     string
	user     string
	password string
	addr     string
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		addr:     fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
	}
}

// Configured reports whether an SMTP host was provided.
func (m *Mailer) Configured() bool { return m.host != "" }

// AuditNotice is the content of an override-close notification.
type AuditNotice struct {
	DocumentType   string
	DocumentID     string
	ClosedBy       string
	OverrideReason string
	ClosedAt       string
	// Unfulfilled lists "line <id>: <remaining> of <original> remaining" rows.
	Unfulfilled []string
}

// SendAuditNotice mails an override-close notice to the audit recipient.
func (m *Mailer) SendAuditNotice(to string, n AuditNotice) error {
	var body strings.Builder
	fmt.Fprintf(&body, "%s %s was closed with an admin override.\n\n", n.DocumentType, n.DocumentID)
	fmt.Fprintf(&body, "Closed by: %s\nClosed at: %s\nReason: %s\n", n.ClosedBy, n.ClosedAt, n.OverrideReason)
	if len(n.Unfulfilled) > 0 {
		body.WriteString("\nUnfulfilled line items:\n")
		for _, row := range n.Unfulfilled {
			body.WriteString("  - " + row + "\n")
		}
	}

	e := email.NewEmail()
	e.From = m.user
	e.To = []string{to}
	e.Subject = fmt.Sprintf("[fulfillment] %s %s closed with override", n.DocumentType, n.DocumentID)
	e.Text = []byte(body.String())

	auth := smtp.PlainAuth("", m.user, m.password, m.host)
	return e.Send(m.addr, auth)
}
