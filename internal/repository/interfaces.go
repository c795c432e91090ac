package repository

import (
	"context"
	"time"

	"github.com/segyhp/loan-servicing/internal/domain"
)

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create creates a new loan
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByLoanID retrieves a loan by its loan ID
	GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error)

	// Delete soft-deletes a loan; used to roll back a failed approval
	Delete(ctx context.Context, loanID string) error
}

// ApprovalRepository stores an approved loan atomically.
type ApprovalRepository interface {
	// Approve inserts the loan and its schedule and marks the application
	// approved, all or nothing
	Approve(ctx context.Context, loan *domain.Loan, installments []*domain.Installment) error
}

// ApplicationRepository reads and updates loan applications.
type ApplicationRepository interface {
	GetByID(ctx context.Context, applicationID string) (*domain.LoanApplication, error)
	UpdateStatus(ctx context.Context, applicationID, status string) error
}

// InstallmentRepository defines the interface for installment data operations
type InstallmentRepository interface {
	// CreateBatch inserts every installment of a loan or none of them
	CreateBatch(ctx context.Context, loanID string, installments []*domain.Installment) error

	// FindPending lists pending installments joined with borrower contact details
	FindPending(ctx context.Context, filter domain.PendingFilter) ([]*domain.PendingPayment, error)

	// MarkDeleted soft-deletes all installments of a loan
	MarkDeleted(ctx context.Context, loanID string) error

	// GetByLoanID retrieves the schedule of a loan ordered by sequence
	GetByLoanID(ctx context.Context, loanID string) ([]*domain.Installment, error)
}

// ReminderRuleRepository defines the interface for reminder rule configuration
type ReminderRuleRepository interface {
	FindEnabled(ctx context.Context) ([]*domain.ReminderSchedule, error)
	List(ctx context.Context) ([]*domain.ReminderSchedule, error)
	Upsert(ctx context.Context, rule *domain.ReminderSchedule) error
}

// NotificationLog is the append-only sink for send attempts.
type NotificationLog interface {
	Append(ctx context.Context, result *domain.NotificationResult) error
	List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.NotificationResult, error)
}

// DeliveryGuard records "already sent" markers so a reminder goes out at most
// once per key.
type DeliveryGuard interface {
	// Claim returns false when the key is already claimed
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops a claim, e.g. after a failed send
	Release(ctx context.Context, key string) error
}
