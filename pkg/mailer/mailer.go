package mailer

import (
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

var ErrDisabled = errors.New("mailer disabled")

type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Dialer is the part of gomail.Dialer the mailer needs.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Mailer struct {
	cfg    Config
	dialer Dialer
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}
}

// NewWithDialer is used by tests to capture outgoing messages.
func NewWithDialer(cfg Config, dialer Dialer, logger *slog.Logger) *Mailer {
	m := New(cfg, logger)
	m.dialer = dialer
	return m
}

func (m *Mailer) Send(to, subject, htmlBody string) error {
	if !m.cfg.Enabled {
		m.logger.Debug("mail disabled, skipping send", "to", to, "subject", subject)
		return ErrDisabled
	}
	if to == "" {
		return errors.New("mail recipient is empty")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	m.logger.Info("mail sent", "to", to, "subject", subject)
	return nil
}
