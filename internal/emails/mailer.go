// Package emails delivers outbound mail over SMTP. Delivery retries and
// bounce handling belong to the mail provider, not this process.
package emails

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer(config Config) (*Mailer, error) {
	if config.Host == "" || config.Port <= 0 {
		return nil, fmt.Errorf("smtp host and port are required")
	}
	from := config.From
	if from == "" {
		from = config.Username
	}
	if from == "" {
		return nil, fmt.Errorf("smtp sender address is required")
	}

	return &Mailer{
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
		from:   from,
	}, nil
}

// SendMail sends a single message with both text and HTML bodies. The
// context is honored only up front; gomail dials synchronously.
func (m *Mailer) SendMail(ctx context.Context, to, subject, text, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	message := gomail.NewMessage()
	message.SetHeader("From", m.from)
	message.SetHeader("To", to)
	message.SetHeader("Subject", subject)
	message.SetBody("text/plain", text)
	if html != "" {
		message.AddAlternative("text/html", html)
	}

	if err := m.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	return nil
}
