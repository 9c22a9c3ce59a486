// Package email delivers sign-in codes over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	mail "github.com/go-mail/mail"
)

// ErrNotConfigured is returned when no SMTP host is set.
var ErrNotConfigured = errors.New("email: SMTP host not configured")

// Dialer sends a composed message. *mail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPSender sends code emails through one SMTP relay.
type SMTPSender struct {
	From    string
	Subject string
	dialer  Dialer
}

// NewSMTPSender returns a sender for host:port. go-mail negotiates STARTTLS when offered;
// port 465 uses implicit TLS.
func NewSMTPSender(host string, port int, from, user, pass string) *SMTPSender {
	if host == "" {
		return &SMTPSender{From: from}
	}
	d := mail.NewDialer(host, port, user, pass)
	d.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	d.SSL = port == 465
	return newSender(d, from)
}

func newSender(d Dialer, from string) *SMTPSender {
	return &SMTPSender{From: from, Subject: "Your sign-in code", dialer: d}
}

// Send emails code to address.
func (s *SMTPSender) Send(ctx context.Context, address, code string) error {
	if s.dialer == nil {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", address)
	m.SetHeader("Subject", s.Subject)
	m.SetBody("text/plain", textBody(code))
	m.AddAlternative("text/html", htmlBody(code))
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func textBody(code string) string {
	return "Your sign-in code is " + code + ".\n\nIt expires in 10 minutes. If you did not request it, ignore this email.\n"
}

func htmlBody(code string) string {
	return `<p>Your sign-in code is <strong>` + code + `</strong>.</p>` +
		`<p>It expires in 10 minutes. If you did not request it, ignore this email.</p>`
}
