package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/textproto"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
	gomail "gopkg.in/gomail.v2"
)

// EmailSender — транспорт отправки писем.
type EmailSender interface {
	// Send отправляет письмо и возвращает идентификатор сообщения.
	Send(ctx context.Context, p *domain.EmailPayload) (messageID string, err error)
}

// SMTPConfig — конфигурация SMTP транспорта.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPConfigFromEnv читает конфигурацию из переменных окружения
// SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASS.
func SMTPConfigFromEnv() SMTPConfig {
	port := 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	host := os.Getenv("SMTP_HOST")
	if host == "" {
		host = "localhost"
	}

	return SMTPConfig{
		Host:     host,
		Port:     port,
		Username: os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASS"),
	}
}

// SMTPSender — отправка писем через SMTP.
type SMTPSender struct {
	dialer *gomail.Dialer
	logger *slog.Logger
}

// NewSMTPSender создаёт новый SMTPSender.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}
}

// Send отправляет письмо через SMTP.
//
// Ответ сервера 5xx классифицируется как bounce (адрес отвергнут),
// остальные ошибки — временные.
func (s *SMTPSender) Send(ctx context.Context, p *domain.EmailPayload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := fmt.Sprintf("<%s@mailflow>", uuid.New())

	m := gomail.NewMessage()
	m.SetHeader("From", p.From)
	m.SetHeader("To", p.To)
	m.SetHeader("Subject", p.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", p.BodyHTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return "", Bounce(fmt.Errorf("smtp %d: %s", tpErr.Code, tpErr.Msg))
		}
		return "", fmt.Errorf("smtp send: %w", err)
	}

	s.logger.Debug("email sent",
		"to", p.To,
		"message_id", messageID,
	)

	return messageID, nil
}
