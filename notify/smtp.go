package notify

import (
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/evdnx/gotrend/config"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP e-mails notifications. An empty host disables it.
type SMTP struct {
	cfg  config.SMTP
	send sendFunc
}

func NewSMTP(cfg config.SMTP) *SMTP {
	return &SMTP{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTP) Notify(recipient, subject, body string) error {
	if s.cfg.Host == "" || recipient == "" {
		return nil
	}
	port := s.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}
	if err := s.send(addr, auth, from, []string{recipient}, buildMessage(from, recipient, subject, body)); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
