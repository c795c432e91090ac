package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/internal/metrics"
	"github.com/segyhp/loan-servicing/internal/repository"
	customError "github.com/segyhp/loan-servicing/pkg/errors"
	"github.com/segyhp/loan-servicing/pkg/utils"
)

// EmailSender delivers an email with a plain text and an optional HTML body.
type EmailSender interface {
	Send(ctx context.Context, to, subject, text, html string) (domain.SendReceipt, error)
}

// MessageSender delivers a short text message (WhatsApp, SMS).
type MessageSender interface {
	Send(ctx context.Context, to, message string) (domain.SendReceipt, error)
}

// Senders holds one sender per channel. A nil sender marks the channel as not configured.
type Senders struct {
	Email    EmailSender
	WhatsApp MessageSender
	SMS      MessageSender
}

var errChannelNotConfigured = errors.New("channel not configured")

// DefaultDeliveryTTL keeps a sent marker past the end of the day it was claimed on.
const DefaultDeliveryTTL = 48 * time.Hour

// DispatchOutcome is the result of sending one reminder on all its channels.
type DispatchOutcome struct {
	Results    []domain.NotificationResult
	Suppressed int
}

// Sent counts successful attempts.
func (o DispatchOutcome) Sent() int {
	n := 0
	for _, r := range o.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Failed counts failed attempts.
func (o DispatchOutcome) Failed() int {
	return len(o.Results) - o.Sent()
}

// Dispatcher sends a reminder through every channel its rule enables.
type Dispatcher struct {
	senders   Senders
	log       repository.NotificationLog
	guard     repository.DeliveryGuard
	guardTTL  time.Duration
	templates *Templates
	clock     utils.Clock
	metrics   *metrics.Metrics
	logger    logrus.FieldLogger
}

type DispatcherOption func(*Dispatcher)

// WithDeliveryGuard enables the at-most-once marker per installment, rule,
// channel and day.
func WithDeliveryGuard(guard repository.DeliveryGuard, ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.guard = guard
		if ttl > 0 {
			d.guardTTL = ttl
		}
	}
}

func WithTemplates(t *Templates) DispatcherOption {
	return func(d *Dispatcher) { d.templates = t }
}

func WithClock(c utils.Clock) DispatcherOption {
	return func(d *Dispatcher) { d.clock = c }
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher appending every attempt to log.
func NewDispatcher(senders Senders, log repository.NotificationLog, logger logrus.FieldLogger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		senders:   senders,
		log:       log,
		guardTTL:  DefaultDeliveryTTL,
		templates: NewTemplates(),
		clock:     utils.SystemClock{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends the reminder for payment under rule and returns one result
// per attempted channel.
func (d *Dispatcher) Dispatch(ctx context.Context, payment *domain.PendingPayment, rule *domain.ReminderSchedule, daysUntilDue int) []domain.NotificationResult {
	return d.DispatchReminder(ctx, payment, domain.DueReminder{Rule: rule, DaysUntilDue: daysUntilDue}).Results
}

// DispatchReminder is Dispatch reporting suppressed channels as well.
// Channels are tried in the order email, whatsapp, sms. A failure on one
// channel never stops the others.
func (d *Dispatcher) DispatchReminder(ctx context.Context, payment *domain.PendingPayment, due domain.DueReminder) DispatchOutcome {
	var outcome DispatchOutcome
	rule := due.Rule
	data := NewMessageData(payment, due.DaysUntilDue)
	day := d.clock.Now().Format(utils.DateLayout)

	logger := d.logger.WithFields(logrus.Fields{
		"loan_id":        payment.LoanID,
		"installment_id": payment.InstallmentID,
		"rule":           rule.Name,
		"days_until_due": due.DaysUntilDue,
	})

	for _, channel := range domain.Channels {
		if !rule.Channels.Has(channel) {
			continue
		}
		recipient, ok := recipientFor(payment, channel)
		if !ok {
			logger.WithField("channel", channel).Debug("No contact for channel, skipping")
			continue
		}

		key := deliveryKey(payment.InstallmentID, rule.ID, channel, day)
		claimed := false
		if d.guard != nil {
			ok, err := d.guard.Claim(ctx, key, d.guardTTL)
			switch {
			case err != nil:
				logger.WithError(err).WithField("channel", channel).Warn("Delivery guard unavailable, sending without marker")
			case !ok:
				logger.WithField("channel", channel).Info("Reminder already sent today, suppressed")
				outcome.Suppressed++
				continue
			default:
				claimed = true
			}
		}

		result := d.send(ctx, channel, recipient, payment, rule, data)

		if !result.Success && claimed {
			if err := d.guard.Release(ctx, key); err != nil {
				logger.WithError(err).WithField("channel", channel).Warn("Failed to release delivery marker")
			}
		}
		if err := d.log.Append(ctx, &result); err != nil {
			logger.WithError(err).WithField("channel", channel).Error("Failed to append notification log")
		}
		d.metrics.ObserveNotification(channel, result.Success)

		entry := logger.WithFields(logrus.Fields{"channel": channel, "message_id": result.MessageID})
		if result.Success {
			entry.Info("Reminder sent")
		} else {
			entry.WithField("error", result.Error).Warn("Reminder send failed")
		}
		outcome.Results = append(outcome.Results, result)
	}

	return outcome
}

// send performs one attempt. Sender panics are turned into failed results.
func (d *Dispatcher) send(ctx context.Context, channel domain.Channel, recipient string, payment *domain.PendingPayment, rule *domain.ReminderSchedule, data MessageData) (result domain.NotificationResult) {
	result = domain.NotificationResult{
		ID:            uuid.New(),
		LoanID:        payment.LoanID,
		InstallmentID: payment.InstallmentID,
		CustomerID:    payment.CustomerID,
		RuleID:        rule.ID,
		Channel:       channel,
		Recipient:     recipient,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.MessageID = ""
			result.Error = customError.WrapChannelSend(string(channel), fmt.Errorf("sender panic: %v", r)).Error()
		}
		result.Timestamp = d.clock.Now()
	}()

	msg, err := d.templates.Render(channel, rule, data)
	if err != nil {
		result.Error = customError.WrapChannelSend(string(channel), fmt.Errorf("render message: %w", err)).Error()
		return result
	}

	var receipt domain.SendReceipt
	switch channel {
	case domain.ChannelEmail:
		if d.senders.Email == nil {
			err = errChannelNotConfigured
			break
		}
		receipt, err = d.senders.Email.Send(ctx, recipient, msg.Subject, msg.Text, msg.HTML)
	case domain.ChannelWhatsApp:
		if d.senders.WhatsApp == nil {
			err = errChannelNotConfigured
			break
		}
		receipt, err = d.senders.WhatsApp.Send(ctx, recipient, msg.Text)
	case domain.ChannelSMS:
		if d.senders.SMS == nil {
			err = errChannelNotConfigured
			break
		}
		receipt, err = d.senders.SMS.Send(ctx, recipient, msg.Text)
	}

	switch {
	case err != nil:
		result.Error = customError.WrapChannelSend(string(channel), err).Error()
	case !receipt.Success:
		result.MessageID = receipt.MessageID
		result.Error = customError.WrapChannelSend(string(channel), errors.New("sender rejected the message")).Error()
	default:
		result.Success = true
		result.MessageID = receipt.MessageID
	}
	return result
}

func recipientFor(payment *domain.PendingPayment, channel domain.Channel) (string, bool) {
	switch channel {
	case domain.ChannelEmail:
		return payment.CustomerEmail, payment.HasEmail()
	case domain.ChannelWhatsApp, domain.ChannelSMS:
		return payment.CustomerPhone, payment.HasPhone()
	}
	return "", false
}

func deliveryKey(installmentID, ruleID uuid.UUID, channel domain.Channel, day string) string {
	return fmt.Sprintf("reminder:%s:%s:%s:%s", installmentID, ruleID, channel, day)
}
