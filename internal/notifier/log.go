package notifier

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-servicing/internal/domain"
)

// LogEmailSender writes emails to the log instead of sending them.
type LogEmailSender struct {
	logger logrus.FieldLogger
}

func NewLogEmailSender(logger logrus.FieldLogger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) Send(_ context.Context, to, subject, text, _ string) (domain.SendReceipt, error) {
	id := "log-" + uuid.NewString()
	s.logger.WithFields(logrus.Fields{
		"channel":    domain.ChannelEmail,
		"to":         to,
		"subject":    subject,
		"message_id": id,
	}).Info(text)
	return domain.SendReceipt{Success: true, MessageID: id}, nil
}

// LogMessageSender writes WhatsApp or SMS messages to the log.
type LogMessageSender struct {
	channel domain.Channel
	logger  logrus.FieldLogger
}

func NewLogMessageSender(channel domain.Channel, logger logrus.FieldLogger) *LogMessageSender {
	return &LogMessageSender{channel: channel, logger: logger}
}

func (s *LogMessageSender) Send(_ context.Context, to, message string) (domain.SendReceipt, error) {
	id := "log-" + uuid.NewString()
	s.logger.WithFields(logrus.Fields{
		"channel":    s.channel,
		"to":         to,
		"message_id": id,
	}).Info(message)
	return domain.SendReceipt{Success: true, MessageID: id}, nil
}
