package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/contacts-api/internal/metrics"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

// SMTPMailer delivers over SMTP, upgrading with STARTTLS when offered.
type SMTPMailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPMailer{cfg: cfg, logger: logger}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	subject, body, err := Render(msg)
	if err != nil {
		return err
	}

	if err := m.deliver(ctx, msg.To, m.message(msg.To, subject, body)); err != nil {
		metrics.MailSent.WithLabelValues("smtp", "error").Inc()
		return fmt.Errorf("mail/smtp: sending %s to %s: %w", msg.Template, msg.To, err)
	}

	metrics.MailSent.WithLabelValues("smtp", "ok").Inc()
	m.logger.InfoContext(ctx, "mail sent",
		slog.String("template", msg.Template),
		slog.String("to", msg.To),
	)
	return nil
}

// message builds the RFC 5322 text. Display names are quoted or encoded by
// net/mail, so a comma or non-ASCII character in FromName stays one address.
func (m *SMTPMailer) message(to, subject, body string) []byte {
	from := &netmail.Address{Name: m.cfg.FromName, Address: m.cfg.From}
	rcpt := &netmail.Address{Address: to}
	return []byte(strings.Join([]string{
		"From: " + from.String(),
		"To: " + rcpt.String(),
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		body,
	}, "\r\n"))
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, raw []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	dialer := net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	// Bound the whole conversation, not only the dial.
	deadline := time.Now().Add(m.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer func() { _ = c.Quit() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return err
		}
	}
	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return err
		}
	}

	if err := c.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
