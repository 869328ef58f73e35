package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
	To       string `yaml:"to"` // venue operator address
}

// EmailSender delivers notification mail over SMTP.
type EmailSender struct {
	config EmailConfig
	auth   smtp.Auth
}

// NewEmailSender creates a sender. Auth is optional; without credentials the
// sender connects directly.
func NewEmailSender(config EmailConfig) *EmailSender {
	var auth smtp.Auth
	if config.User != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.User, config.Password, config.Host)
	}
	return &EmailSender{config: config, auth: auth}
}

// Send delivers one HTML mail to the configured recipient.
func (s *EmailSender) Send(subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	fromHeader := s.config.From
	if strings.TrimSpace(s.config.FromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	to := sanitizeHeader(s.config.To)
	msg := []string{
		fmt.Sprintf("From: %s", sanitizeHeader(fromHeader)),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", sanitizeHeader(subject)),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		htmlBody,
	}
	body := []byte(strings.Join(msg, "\r\n"))

	return smtp.SendMail(addr, s.auth, s.config.From, []string{to}, body)
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
