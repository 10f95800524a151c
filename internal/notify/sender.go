// Package notify emails users when their reading is ready. It consumes the
// reading events the server publishes.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"pathlet/internal/config"
)

// Sender delivers a notification
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Config holds the notifier's email and Kafka settings
type Config struct {
	Mode     string // "log" or "smtp"
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	AppURL   string

	ConsumerGroup string
	DLQTopic      string
	MaxRetries    int
	HTTPPort      int
}

// LoadConfig reads the notifier configuration from the environment
func LoadConfig() (*Config, error) {
	smtpPort, err := config.GetEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	retries, err := config.GetEnvInt("NOTIFY_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	httpPort, err := config.GetEnvInt("NOTIFIER_PORT", 8086)
	if err != nil {
		return nil, err
	}

	return &Config{
		Mode:     config.GetEnvOrDefault("EMAIL_MODE", "log"),
		Host:     config.GetEnvOrDefault("SMTP_HOST", ""),
		Port:     smtpPort,
		User:     config.GetEnvOrDefault("SMTP_USER", ""),
		Password: config.GetEnvOrDefault("SMTP_PASSWORD", ""),
		From:     config.GetEnvOrDefault("SMTP_FROM", "noreply@pathlet.app"),
		FromName: config.GetEnvOrDefault("SMTP_FROM_NAME", "Pathlet"),
		AppURL:   config.GetEnvOrDefault("APP_URL", "http://localhost:5173"),

		ConsumerGroup: config.GetEnvOrDefault("KAFKA_CONSUMER_GROUP", "pathlet-notifier"),
		DLQTopic:      config.GetEnvOrDefault("KAFKA_TOPIC_READINGS_DLQ", "reading-events-dlq"),
		MaxRetries:    retries,
		HTTPPort:      httpPort,
	}, nil
}

// NewSender creates a sender for cfg.Mode
func NewSender(cfg *Config, logger *slog.Logger) Sender {
	if cfg.Mode == "smtp" {
		return &smtpSender{config: cfg, send: smtp.SendMail}
	}
	return &logSender{logger: logger}
}

// logSender only logs, for development
type logSender struct {
	logger *slog.Logger
}

func (s *logSender) Send(_ context.Context, n Notification) error {
	s.logger.Info("[DEV] Reading ready email",
		"recipient", n.Recipient,
		"reading_id", n.ReadingID,
		"sun_sign", n.SunSign)
	return nil
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// smtpSender sends notifications via SMTP
type smtpSender struct {
	config *Config
	send   sendMailFunc
}

func (s *smtpSender) Send(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", s.config.FromName, s.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", n.Recipient)
	msg.WriteString("Subject: Your Pathlet reading is ready\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(s.body(n))

	var auth smtp.Auth
	if s.config.User != "" {
		auth = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if err := s.send(addr, auth, s.config.From, []string{n.Recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *smtpSender) body(n Notification) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1 style="color: #7c3aed;">Your reading is ready</h1>
    <p>Your insights have been generated: a <strong>%s</strong> sun sign with a <strong>%s</strong> energy type.</p>
    <p><a href="%s/readings/%s" style="color: #7c3aed;">Open your reading</a> and ask your guide anything about it.</p>
    <hr style="border: none; border-top: 1px solid #ddd; margin: 30px 0;">
    <p style="font-size: 12px; color: #999;">This is an automated message, please do not reply to this email.</p>
</body>
</html>
`, n.SunSign, n.EnergyType, strings.TrimRight(s.config.AppURL, "/"), n.ReadingID)
}
