package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/segyhp/loan-servicing/internal/domain"
)

type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) Delete(ctx context.Context, loanID string) error {
	args := m.Called(ctx, loanID)
	return args.Error(0)
}

type MockApprovalRepository struct {
	mock.Mock
}

func (m *MockApprovalRepository) Approve(ctx context.Context, loan *domain.Loan, installments []*domain.Installment) error {
	args := m.Called(ctx, loan, installments)
	return args.Error(0)
}

type MockApplicationRepository struct {
	mock.Mock
}

func (m *MockApplicationRepository) GetByID(ctx context.Context, applicationID string) (*domain.LoanApplication, error) {
	args := m.Called(ctx, applicationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanApplication), args.Error(1)
}

func (m *MockApplicationRepository) UpdateStatus(ctx context.Context, applicationID, status string) error {
	args := m.Called(ctx, applicationID, status)
	return args.Error(0)
}

type MockInstallmentRepository struct {
	mock.Mock
}

func (m *MockInstallmentRepository) CreateBatch(ctx context.Context, loanID string, installments []*domain.Installment) error {
	args := m.Called(ctx, loanID, installments)
	return args.Error(0)
}

func (m *MockInstallmentRepository) FindPending(ctx context.Context, filter domain.PendingFilter) ([]*domain.PendingPayment, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PendingPayment), args.Error(1)
}

func (m *MockInstallmentRepository) MarkDeleted(ctx context.Context, loanID string) error {
	args := m.Called(ctx, loanID)
	return args.Error(0)
}

func (m *MockInstallmentRepository) GetByLoanID(ctx context.Context, loanID string) ([]*domain.Installment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Installment), args.Error(1)
}

type MockReminderRuleRepository struct {
	mock.Mock
}

func (m *MockReminderRuleRepository) FindEnabled(ctx context.Context) ([]*domain.ReminderSchedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ReminderSchedule), args.Error(1)
}

func (m *MockReminderRuleRepository) List(ctx context.Context) ([]*domain.ReminderSchedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ReminderSchedule), args.Error(1)
}

func (m *MockReminderRuleRepository) Upsert(ctx context.Context, rule *domain.ReminderSchedule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

type MockNotificationLog struct {
	mock.Mock
}

func (m *MockNotificationLog) Append(ctx context.Context, result *domain.NotificationResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockNotificationLog) List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.NotificationResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.NotificationResult), args.Error(1)
}

type MockDeliveryGuard struct {
	mock.Mock
}

func (m *MockDeliveryGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockDeliveryGuard) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
