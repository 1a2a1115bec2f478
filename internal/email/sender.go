// Package email manda el mail de bienvenida en el signup por password.
// Es best-effort: un fallo de SMTP nunca falla el signup.
package email

import (
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/clave/internal/observability/logger"
)

// Sender manda emails transaccionales.
type Sender interface {
	SendWelcome(to, name string) error
}

// SMTPSender implementa Sender contra un SMTP clásico.
type SMTPSender struct {
	Host string
	Port int
	From string
	User string
	Pass string
}

// NewSMTPSender crea un sender SMTP.
func NewSMTPSender(host string, port int, from, user, pass string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, From: from, User: user, Pass: pass}
}

func (s *SMTPSender) SendWelcome(to, name string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Bienvenido a Clave")
	m.SetBody("text/plain", fmt.Sprintf("Hola %s, tu cuenta quedó creada.", name))

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	if err := d.DialAndSend(m); err != nil {
		logger.L().Warn("smtp send failed", logger.Component("email"), logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// NopSender descarta los emails (dev/testing o SMTP sin configurar).
type NopSender struct{}

func (NopSender) SendWelcome(string, string) error { return nil }
