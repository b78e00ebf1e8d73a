package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Mailer delivers one email
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes outgoing mail to the log instead of an SMTP relay
type LogMailer struct {
	Logger logrus.FieldLogger
}

func (m LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.Logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Info(body)
	return nil
}
