package mail

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Mailer sends verification codes over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func New(host string, port int, username, password, from string) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (m *Mailer) SendResetCode(to, code string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your password reset code")
	msg.SetBody("text/plain", fmt.Sprintf(
		"Your password reset code is %s. It expires shortly; ignore this mail if you did not request it.", code))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail failed: %w", err)
	}
	return nil
}
