// internal/app/system/mailer/mailer.go
package mailer

import (
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// ErrMissingRecipient is returned when an email has no To address. This is a
// permanent failure: the dispatcher must not retry it.
var ErrMissingRecipient = errors.New("email has no recipient")

// Email is a single outbound message.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Config holds SMTP settings, loaded from app config at startup.
type Config struct {
	Host     string
	Port     int
	User     string // empty for unauthenticated relays (e.g. Mailpit)
	Pass     string
	From     string
	FromName string
}

// Mailer sends email over SMTP. Send is synchronous; the dispatcher runs it
// off the request path and owns retry policy.
type Mailer struct {
	cfg Config
	log *zap.Logger
}

// New creates a Mailer with the given SMTP configuration.
func New(cfg Config, logger *zap.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: logger}
}

// Send delivers one email. Missing recipient is ErrMissingRecipient;
// transport failures come back wrapped for the caller to classify.
func (m *Mailer) Send(e Email) error {
	if strings.TrimSpace(e.To) == "" {
		return ErrMissingRecipient
	}
	if e.Subject == "" || (e.TextBody == "" && e.HTMLBody == "") {
		return errors.New("email missing subject or body")
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	}

	msg := m.buildMessage(e)
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{e.To}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", e.To, err)
	}

	m.log.Debug("email sent", zap.String("to", e.To), zap.String("subject", e.Subject))
	return nil
}

// buildMessage assembles a multipart/alternative MIME message so clients can
// pick the text or HTML part.
func (m *Mailer) buildMessage(e Email) []byte {
	const boundary = "bloodbridge-alt-boundary"

	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", m.cfg.FromName), m.cfg.From)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", e.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", e.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	if e.TextBody != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(e.TextBody)
		b.WriteString("\r\n")
	}
	if e.HTMLBody != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(e.HTMLBody)
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}
