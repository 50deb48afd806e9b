// Package notify sends welcome messages to newly registered accounts and
// attendees by email and SMS.
package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"

	"go.uber.org/zap"
)

// MailConfig holds SMTP settings. An empty Username disables delivery and
// the mailer only logs what it would have sent.
type MailConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	FromName string `koanf:"from_name"`
}

func (c MailConfig) configured() bool { return c.Username != "" && c.Password != "" }

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers HTML mail through an authenticated SMTP relay.
type SMTPMailer struct {
	cfg  MailConfig
	log  *zap.Logger
	send sendMailFunc
}

func NewSMTPMailer(cfg MailConfig, log *zap.Logger) *SMTPMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPMailer{cfg: cfg, log: log, send: smtp.SendMail}
}

// Send ignores ctx deadlines; net/smtp has no context support.
func (m *SMTPMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	if !m.cfg.configured() {
		m.log.Info("smtp not configured, email not sent",
			zap.String("to", to),
			zap.String("subject", subject),
		)
		return nil
	}
	msg := []byte(fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		m.cfg.FromName, m.cfg.From, to, subject, htmlBody,
	))
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := m.send(net.JoinHostPort(m.cfg.Host, m.cfg.Port), auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
