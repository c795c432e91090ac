package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/internal/metrics"
	"github.com/segyhp/loan-servicing/internal/mocks"
	"github.com/segyhp/loan-servicing/internal/repository"
	"github.com/segyhp/loan-servicing/internal/service"
	customError "github.com/segyhp/loan-servicing/pkg/errors"
	"github.com/segyhp/loan-servicing/pkg/utils"
)

var allChannels = domain.ChannelSet{Email: true, WhatsApp: true, SMS: true}

func pendingPayment() *domain.PendingPayment {
	due := date("2024-10-01")
	return &domain.PendingPayment{
		InstallmentID: uuid.New(),
		LoanID:        "LOAN-001",
		Sequence:      2,
		DueDate:       &due,
		AmountDue:     decimal.RequireFromString("1041.66"),
		Status:        domain.InstallmentStatusPending,
		CustomerID:    "CUST-1",
		CustomerName:  "Budi Santoso",
		CustomerEmail: "budi@example.com",
		CustomerPhone: "+6281234567890",
	}
}

type panicSender struct{}

func (panicSender) Send(context.Context, string, string) (domain.SendReceipt, error) {
	panic("gateway client bug")
}

func okEmailSender(id string) *mocks.MockEmailSender {
	m := &mocks.MockEmailSender{}
	m.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.SendReceipt{Success: true, MessageID: id}, nil)
	return m
}

func newTestDispatcher(senders service.Senders, log repository.NotificationLog, opts ...service.DispatcherOption) (*service.Dispatcher, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	clock := utils.NewFixedClock(time.Date(2024, 9, 24, 9, 0, 0, 0, time.UTC))
	opts = append([]service.DispatcherOption{service.WithClock(clock)}, opts...)
	return service.NewDispatcher(senders, log, logger, opts...), hook
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name           string
		senders        func() service.Senders
		channels       domain.ChannelSet
		payment        func() *domain.PendingPayment
		expectedOrder  []domain.Channel
		expectedOK     []bool
		errorContains  map[domain.Channel]string
		validateResult func(*testing.T, []domain.NotificationResult)
	}{
		{
			name: "Success - All channels in fixed order",
			senders: func() service.Senders {
				return service.Senders{
					Email:    okEmailSender("email-1"),
					WhatsApp: mocks.NewSuccessfulMessageSender("wa-1"),
					SMS:      mocks.NewSuccessfulMessageSender("sms-1"),
				}
			},
			channels:      allChannels,
			payment:       pendingPayment,
			expectedOrder: []domain.Channel{domain.ChannelEmail, domain.ChannelWhatsApp, domain.ChannelSMS},
			expectedOK:    []bool{true, true, true},
			validateResult: func(t *testing.T, results []domain.NotificationResult) {
				assert.Equal(t, "email-1", results[0].MessageID)
				assert.Equal(t, "budi@example.com", results[0].Recipient)
				assert.Equal(t, "+6281234567890", results[1].Recipient)
				assert.Equal(t, "sms-1", results[2].MessageID)
				for _, r := range results {
					assert.Equal(t, "LOAN-001", r.LoanID)
					assert.Equal(t, "CUST-1", r.CustomerID)
					assert.Empty(t, r.Error)
					assert.False(t, r.Timestamp.IsZero())
				}
			},
		},
		{
			name: "Partial - Email failure does not stop WhatsApp",
			senders: func() service.Senders {
				email := &mocks.MockEmailSender{}
				email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(domain.SendReceipt{}, errors.New("smtp: connection refused"))
				return service.Senders{Email: email, WhatsApp: mocks.NewSuccessfulMessageSender("wa-1")}
			},
			channels:      emailAndWhatsApp,
			payment:       pendingPayment,
			expectedOrder: []domain.Channel{domain.ChannelEmail, domain.ChannelWhatsApp},
			expectedOK:    []bool{false, true},
			errorContains: map[domain.Channel]string{domain.ChannelEmail: "connection refused"},
		},
		{
			name: "Skip - Missing phone skips WhatsApp and SMS silently",
			senders: func() service.Senders {
				return service.Senders{
					Email:    okEmailSender("email-1"),
					WhatsApp: mocks.NewSuccessfulMessageSender("wa-1"),
					SMS:      mocks.NewSuccessfulMessageSender("sms-1"),
				}
			},
			channels: allChannels,
			payment: func() *domain.PendingPayment {
				p := pendingPayment()
				p.CustomerPhone = " "
				return p
			},
			expectedOrder: []domain.Channel{domain.ChannelEmail},
			expectedOK:    []bool{true},
		},
		{
			name: "Skip - Invalid email skips email",
			senders: func() service.Senders {
				return service.Senders{WhatsApp: mocks.NewSuccessfulMessageSender("wa-1")}
			},
			channels: emailAndWhatsApp,
			payment: func() *domain.PendingPayment {
				p := pendingPayment()
				p.CustomerEmail = "not-an-address"
				return p
			},
			expectedOrder: []domain.Channel{domain.ChannelWhatsApp},
			expectedOK:    []bool{true},
		},
		{
			name: "Failure - Channel without sender",
			senders: func() service.Senders {
				return service.Senders{Email: okEmailSender("email-1")}
			},
			channels:      domain.ChannelSet{Email: true, SMS: true},
			payment:       pendingPayment,
			expectedOrder: []domain.Channel{domain.ChannelEmail, domain.ChannelSMS},
			expectedOK:    []bool{true, false},
			errorContains: map[domain.Channel]string{domain.ChannelSMS: "channel not configured"},
		},
		{
			name: "Failure - Sender rejects without error",
			senders: func() service.Senders {
				wa := &mocks.MockMessageSender{}
				wa.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(domain.SendReceipt{Success: false, MessageID: "wa-9"}, nil)
				return service.Senders{WhatsApp: wa}
			},
			channels:      domain.ChannelSet{WhatsApp: true},
			payment:       pendingPayment,
			expectedOrder: []domain.Channel{domain.ChannelWhatsApp},
			expectedOK:    []bool{false},
			errorContains: map[domain.Channel]string{domain.ChannelWhatsApp: "rejected"},
		},
		{
			name: "Failure - Sender panic is contained",
			senders: func() service.Senders {
				return service.Senders{WhatsApp: panicSender{}, SMS: mocks.NewSuccessfulMessageSender("sms-1")}
			},
			channels:      domain.ChannelSet{WhatsApp: true, SMS: true},
			payment:       pendingPayment,
			expectedOrder: []domain.Channel{domain.ChannelWhatsApp, domain.ChannelSMS},
			expectedOK:    []bool{false, true},
			errorContains: map[domain.Channel]string{domain.ChannelWhatsApp: "gateway client bug"},
		},
		{
			name: "Empty - Rule without channels",
			senders: func() service.Senders {
				return service.Senders{}
			},
			channels: domain.ChannelSet{},
			payment:  pendingPayment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := repository.NewMemoryNotificationLog()
			dispatcher, _ := newTestDispatcher(tt.senders(), log)
			r := rule("7 days before", 7, domain.DirectionBeforeDue, true, 0, tt.channels)
			payment := tt.payment()

			results := dispatcher.Dispatch(context.Background(), payment, r, 7)

			require.Len(t, results, len(tt.expectedOrder))
			assert.Equal(t, len(results), log.Len())
			for i, res := range results {
				assert.Equal(t, tt.expectedOrder[i], res.Channel)
				assert.Equal(t, tt.expectedOK[i], res.Success, "channel %s", res.Channel)
				assert.Equal(t, r.ID, res.RuleID)
				assert.Equal(t, payment.InstallmentID, res.InstallmentID)
				if want, ok := tt.errorContains[res.Channel]; ok {
					assert.Contains(t, res.Error, want)
					assert.Contains(t, res.Error, customError.ErrCodeChannelSendFailed)
				}
			}
			if tt.validateResult != nil {
				tt.validateResult(t, results)
			}
		})
	}
}

func TestDispatch_RendersTemplates(t *testing.T) {
	email := &mocks.MockEmailSender{}
	email.On("Send", mock.Anything, "budi@example.com",
		"Payment reminder: installment due in 7 day(s)",
		mock.MatchedBy(func(text string) bool {
			return strings.Contains(text, "Budi Santoso") &&
				strings.Contains(text, "LOAN-001") &&
				strings.Contains(text, "1041.66") &&
				strings.Contains(text, "2024-10-01")
		}),
		mock.MatchedBy(func(html string) bool {
			return strings.Contains(html, "<strong>1041.66</strong>")
		}),
	).Return(domain.SendReceipt{Success: true, MessageID: "m-1"}, nil)

	sms := &mocks.MockMessageSender{}
	sms.On("Send", mock.Anything, "+6281234567890", "Loan LOAN-001: 1041.66 overdue 3d since 2024-10-01. Please pay now.").
		Return(domain.SendReceipt{Success: true}, nil)

	dispatcher, _ := newTestDispatcher(service.Senders{Email: email, SMS: sms}, repository.NewMemoryNotificationLog())

	results := dispatcher.Dispatch(context.Background(), pendingPayment(),
		rule("7 days before", 7, domain.DirectionBeforeDue, true, 0, domain.ChannelSet{Email: true}), 7)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	results = dispatcher.Dispatch(context.Background(), pendingPayment(),
		rule("3 days overdue", 3, domain.DirectionAfterDue, true, 0, domain.ChannelSet{SMS: true}), -3)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	email.AssertExpectations(t)
	sms.AssertExpectations(t)
}

func TestDispatch_CustomTemplateRef(t *testing.T) {
	templates := service.NewTemplates()
	require.NoError(t, templates.Register("friendly", domain.ChannelWhatsApp, service.TemplateSource{
		Text: "Halo {{.CustomerName}}, cicilan {{.Amount}} jatuh tempo {{.DueDate}}.",
	}))

	wa := &mocks.MockMessageSender{}
	wa.On("Send", mock.Anything, mock.Anything, "Halo Budi Santoso, cicilan 1041.66 jatuh tempo 2024-10-01.").
		Return(domain.SendReceipt{Success: true}, nil)

	dispatcher, _ := newTestDispatcher(service.Senders{WhatsApp: wa}, repository.NewMemoryNotificationLog(), service.WithTemplates(templates))
	r := rule("due", 0, domain.DirectionOnDue, true, 0, domain.ChannelSet{WhatsApp: true})
	r.TemplateRef = "friendly"

	results := dispatcher.Dispatch(context.Background(), pendingPayment(), r, 0)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	wa.AssertExpectations(t)
}

func TestDispatch_DeliveryGuard(t *testing.T) {
	guard := repository.NewMemoryDeliveryGuard()
	wa := mocks.NewSuccessfulMessageSender("wa-1")

	failing := &mocks.MockEmailSender{}
	failing.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.SendReceipt{}, errors.New("timeout"))

	log := repository.NewMemoryNotificationLog()
	dispatcher, _ := newTestDispatcher(service.Senders{Email: failing, WhatsApp: wa}, log, service.WithDeliveryGuard(guard, time.Hour))
	payment := pendingPayment()
	r := rule("due", 0, domain.DirectionOnDue, true, 0, emailAndWhatsApp)
	due := domain.DueReminder{Rule: r, DaysUntilDue: 0}

	first := dispatcher.DispatchReminder(context.Background(), payment, due)
	assert.Equal(t, 1, first.Sent())
	assert.Equal(t, 1, first.Failed())
	assert.Equal(t, 0, first.Suppressed)

	// WhatsApp already went out today; the failed email released its marker and is retried.
	second := dispatcher.DispatchReminder(context.Background(), payment, due)
	require.Len(t, second.Results, 1)
	assert.Equal(t, domain.ChannelEmail, second.Results[0].Channel)
	assert.Equal(t, 1, second.Suppressed)

	wa.AssertNumberOfCalls(t, "Send", 1)
	failing.AssertNumberOfCalls(t, "Send", 2)
	assert.Equal(t, 3, log.Len())
}

func TestDispatch_DeliveryGuardUnavailable(t *testing.T) {
	guard := &mocks.MockDeliveryGuard{}
	guard.On("Claim", mock.Anything, mock.AnythingOfType("string"), time.Hour).Return(false, errors.New("redis down"))

	wa := mocks.NewSuccessfulMessageSender("wa-1")
	dispatcher, hook := newTestDispatcher(service.Senders{WhatsApp: wa}, repository.NewMemoryNotificationLog(), service.WithDeliveryGuard(guard, time.Hour))

	results := dispatcher.Dispatch(context.Background(), pendingPayment(),
		rule("due", 0, domain.DirectionOnDue, true, 0, domain.ChannelSet{WhatsApp: true}), 0)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	guard.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "Delivery guard unavailable") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestDispatch_DeliveryKey(t *testing.T) {
	guard := &mocks.MockDeliveryGuard{}
	payment := pendingPayment()
	r := rule("due", 0, domain.DirectionOnDue, true, 0, domain.ChannelSet{SMS: true})
	key := "reminder:" + payment.InstallmentID.String() + ":" + r.ID.String() + ":sms:2024-09-24"
	guard.On("Claim", mock.Anything, key, service.DefaultDeliveryTTL).Return(true, nil)

	dispatcher, _ := newTestDispatcher(service.Senders{SMS: mocks.NewSuccessfulMessageSender("s")}, repository.NewMemoryNotificationLog(), service.WithDeliveryGuard(guard, 0))

	results := dispatcher.Dispatch(context.Background(), payment, r, 0)

	require.Len(t, results, 1)
	guard.AssertExpectations(t)
}

func TestDispatch_LogAppendFailure(t *testing.T) {
	log := &mocks.MockNotificationLog{}
	log.On("Append", mock.Anything, mock.Anything).Return(errors.New("insert failed"))

	dispatcher, hook := newTestDispatcher(service.Senders{WhatsApp: mocks.NewSuccessfulMessageSender("wa-1")}, log)

	results := dispatcher.Dispatch(context.Background(), pendingPayment(),
		rule("due", 0, domain.DirectionOnDue, true, 0, domain.ChannelSet{WhatsApp: true}), 0)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	require.NotNil(t, hook.LastEntry())

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "Failed to append notification log" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestDispatch_Metrics(t *testing.T) {
	m := metrics.New()
	email := &mocks.MockEmailSender{}
	email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.SendReceipt{}, errors.New("boom"))

	dispatcher, _ := newTestDispatcher(service.Senders{Email: email, WhatsApp: mocks.NewSuccessfulMessageSender("wa")},
		repository.NewMemoryNotificationLog(), service.WithMetrics(m))

	dispatcher.Dispatch(context.Background(), pendingPayment(), rule("due", 0, domain.DirectionOnDue, true, 0, emailAndWhatsApp), 0)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "loan_reminder_notifications_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			var channel, status string
			for _, l := range metric.GetLabel() {
				switch l.GetName() {
				case "channel":
					channel = l.GetValue()
				case "status":
					status = l.GetValue()
				}
			}
			counts[channel+"/"+status] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), counts["email/failed"])
	assert.Equal(t, float64(1), counts["whatsapp/sent"])
}
