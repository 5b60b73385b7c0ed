package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"time"
)

// SMTPConfig holds relay settings. Username may be empty for unauthenticated relays.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	config SMTPConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now    func() time.Time
}

// NewSMTPSender returns a sender for config.
func NewSMTPSender(config SMTPConfig) *SMTPSender {
	return &SMTPSender{config: config, send: smtp.SendMail, now: time.Now}
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.From == "" {
		msg.From = s.config.From
	}
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	return s.send(addr, auth, msg.From, []string{msg.To}, msg.Bytes(s.now()))
}
