// Package notify delivers messages to account holders.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/config"
)

// Notifier sends account messages.
type Notifier interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// New returns an SMTPNotifier when a host is configured and a LogNotifier
// otherwise.
func New(cfg config.NotificationConfig, logger *zap.Logger) Notifier {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		logger.Info("SMTP_HOST not set; reset links are written to the log")
		return NewLogNotifier(logger)
	}
	return NewSMTPNotifier(cfg, logger)
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, to, link string) error {
	n.logger.Info("password reset link", zap.String("to", to), zap.String("link", link))
	return nil
}

// SMTPNotifier sends plain text mail through an SMTP relay.
type SMTPNotifier struct {
	addr   string
	from   string
	auth   smtp.Auth
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier builds a notifier for cfg. PLAIN auth is used when a user
// is configured.
func NewSMTPNotifier(cfg config.NotificationConfig, logger *zap.Logger) *SMTPNotifier {
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost)
	}
	return &SMTPNotifier{
		addr:   fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		from:   cfg.EmailFrom,
		auth:   auth,
		logger: logger,
		send:   smtp.SendMail,
	}
}

func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, to, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body := "You requested a password reset.\r\n\r\n" +
		"Open the link below to choose a new password:\r\n" + link + "\r\n\r\n" +
		"If you did not request this, ignore this message.\r\n"
	msg := buildMessage(n.from, to, "Password reset", body)

	if err := n.send(n.addr, n.auth, n.from, []string{to}, msg); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	n.logger.Info("password reset mail sent", zap.String("to", to))
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
