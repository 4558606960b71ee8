// Package mail delivers transactional HTML email.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
)

var (
	ErrNoRecipients = errors.New("no recipients")

	// ErrDelivery marks a failure of the mail server to accept a message.
	ErrDelivery = errors.New("email delivery failed")
)

type Sender interface {
	Send(ctx context.Context, subject string, recipients []string, html string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *SMTPSender) Send(ctx context.Context, subject string, recipients []string, html string) error {
	m, err := buildMessage(s.from, subject, recipients, html)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send %q: %w: %v", subject, ErrDelivery, err)
	}
	return nil
}

func buildMessage(from, subject string, recipients []string, html string) (*gomail.Message, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", recipients...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)
	return m, nil
}

// LogSender only logs messages. Used when no SMTP host is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, subject string, recipients []string, _ string) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	log.Printf("mail skipped (no smtp host) subject=%q to=%v", subject, recipients)
	return nil
}

// NewSender returns an SMTP sender, or a LogSender when cfg has no host.
func NewSender(cfg SMTPConfig) Sender {
	if cfg.Host == "" {
		return LogSender{}
	}
	return NewSMTPSender(cfg)
}
