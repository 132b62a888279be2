// Package mailer delivers transactional email.
package mailer

import (
	"context"

	"github.com/sirupsen/logrus"
)

type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogSender stands in when no SMTP host is configured. It drops the message
// and records that it did; the body is never logged since it carries tokens.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) Send(_ context.Context, to, subject, _ string) error {
	logrus.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Warn("Mail transport not configured, message dropped")
	return nil
}
