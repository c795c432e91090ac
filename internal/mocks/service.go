package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/internal/scheduler"
)

type MockLoanService struct {
	mock.Mock
}

func (m *MockLoanService) ApproveApplication(ctx context.Context, request *domain.ApproveLoanRequest) (*domain.Loan, []*domain.Installment, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*domain.Loan), args.Get(1).([]*domain.Installment), args.Error(2)
}

func (m *MockLoanService) GetInstallments(ctx context.Context, loanID string) ([]*domain.Installment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Installment), args.Error(1)
}

func (m *MockLoanService) ListReminderRules(ctx context.Context) ([]*domain.ReminderSchedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ReminderSchedule), args.Error(1)
}

func (m *MockLoanService) SaveReminderRule(ctx context.Context, rule *domain.ReminderSchedule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockLoanService) ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]*domain.NotificationResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.NotificationResult), args.Error(1)
}

type MockReminderScheduler struct {
	mock.Mock
}

func (m *MockReminderScheduler) Start(cfg domain.SchedulerConfig) error {
	args := m.Called(cfg)
	return args.Error(0)
}

func (m *MockReminderScheduler) Stop() {
	m.Called()
}

func (m *MockReminderScheduler) Status() domain.SchedulerStatus {
	args := m.Called()
	return args.Get(0).(domain.SchedulerStatus)
}

// CheckNow delivers the configured outcome on an already-filled channel, or
// returns the configured channel as is.
func (m *MockReminderScheduler) CheckNow(ctx context.Context) <-chan scheduler.CycleOutcome {
	args := m.Called(ctx)
	switch ch := args.Get(0).(type) {
	case chan scheduler.CycleOutcome:
		return ch
	case <-chan scheduler.CycleOutcome:
		return ch
	}
	done := make(chan scheduler.CycleOutcome, 1)
	done <- args.Get(0).(scheduler.CycleOutcome)
	close(done)
	return done
}
