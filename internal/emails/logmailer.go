package emails

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogMailer is the development fallback when SMTP is not configured: it
// writes the message to the log instead of sending it.
type LogMailer struct {
	logger *logrus.Logger
}

func NewLogMailer(logger *logrus.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendMail(ctx context.Context, to, subject, text, html string) error {
	m.logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
		"text":    text,
	}).Info("mail_not_sent_smtp_unconfigured")
	return nil
}
