package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/internal/repository"
	customError "github.com/segyhp/loan-servicing/pkg/errors"
)

// LoanService turns approved applications into loans and serves the read
// side used by the back office.
type LoanService struct {
	LoanRepo        repository.LoanRepository
	ApplicationRepo repository.ApplicationRepository
	InstallmentRepo repository.InstallmentRepository
	RuleRepo        repository.ReminderRuleRepository
	NotificationLog repository.NotificationLog
	ApprovalRepo    repository.ApprovalRepository
	logger          logrus.FieldLogger
}

type LoanServiceOption func(*LoanService)

// WithApprovalStore makes approvals write the loan, its schedule and the
// application status in a single transaction.
func WithApprovalStore(repo repository.ApprovalRepository) LoanServiceOption {
	return func(s *LoanService) {
		s.ApprovalRepo = repo
	}
}

func NewLoanService(
	loanRepo repository.LoanRepository,
	applicationRepo repository.ApplicationRepository,
	installmentRepo repository.InstallmentRepository,
	ruleRepo repository.ReminderRuleRepository,
	notificationLog repository.NotificationLog,
	logger logrus.FieldLogger,
	opts ...LoanServiceOption,
) *LoanService {
	s := &LoanService{
		LoanRepo:        loanRepo,
		ApplicationRepo: applicationRepo,
		InstallmentRepo: installmentRepo,
		RuleRepo:        ruleRepo,
		NotificationLog: notificationLog,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApproveApplication creates the loan and its installment schedule for an
// application. Either the loan, its schedule and the approved status are all
// stored, or the application keeps its previous status and no loan remains.
func (s *LoanService) ApproveApplication(ctx context.Context, request *domain.ApproveLoanRequest) (*domain.Loan, []*domain.Installment, error) {
	// 1. Load the application and make sure it can still be approved
	app, err := s.ApplicationRepo.GetByID(ctx, request.ApplicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, customError.WrapApplicationNotFound(request.ApplicationID)
		}
		return nil, nil, customError.WrapDatabaseError(err)
	}
	if !app.Approvable() {
		return nil, nil, customError.WrapApplicationNotApprovable(app.ID, app.Status)
	}

	// 2. Narrow the request into validated terms and build the schedule
	terms, err := request.Terms()
	if err != nil {
		return nil, nil, err
	}
	installments, err := GenerateInstallments(request.LoanID, terms)
	if err != nil {
		return nil, nil, err
	}

	// 3. Reject duplicate loan ids before writing anything
	existing, err := s.LoanRepo.GetByLoanID(ctx, request.LoanID)
	if err == nil && existing != nil {
		return nil, nil, customError.WrapLoanAlreadyExists(request.LoanID)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, customError.WrapDatabaseError(err)
	}

	now := time.Now()
	loan := &domain.Loan{
		ID:              uuid.New(),
		LoanID:          request.LoanID,
		ApplicationID:   app.ID,
		CustomerID:      app.CustomerID,
		Principal:       terms.Principal,
		Interest:        terms.Interest,
		ClosingFee:      terms.ClosingFee,
		TotalRepayment:  terms.TotalRepayment(),
		DisbursedAmount: terms.DisbursedAmount(),
		Tenure:          terms.Tenure,
		Frequency:       terms.Frequency,
		StartDate:       terms.StartDate,
		Status:          domain.LoanStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	logger := s.logger.WithFields(logrus.Fields{
		"application_id": app.ID,
		"loan_id":        loan.LoanID,
	})

	if s.ApprovalRepo != nil {
		if err := s.ApprovalRepo.Approve(ctx, loan, installments); err != nil {
			if customError.CodeOf(err) != "" {
				return nil, nil, err
			}
			logger.WithError(err).Error("Failed to store approved loan")
			return nil, nil, customError.WrapDatabaseError(err)
		}
		logApproved(logger, loan, installments)
		return loan, installments, nil
	}

	// Without a transactional store each write is undone by hand on failure

	// 4. Save the loan
	if err := s.LoanRepo.Create(ctx, loan); err != nil {
		if customError.CodeOf(err) == customError.ErrCodeLoanAlreadyExists {
			return nil, nil, err
		}
		return nil, nil, customError.WrapDatabaseError(err)
	}

	// 5. Save the schedule, all rows or none
	if err := s.InstallmentRepo.CreateBatch(ctx, loan.LoanID, installments); err != nil {
		logger.WithError(err).Error("Failed to store installment schedule, rolling back loan")
		s.rollback(ctx, logger, loan.LoanID, false)
		return nil, nil, customError.WrapDatabaseError(err)
	}

	// 6. Mark the application approved
	if err := s.ApplicationRepo.UpdateStatus(ctx, app.ID, domain.ApplicationStatusApproved); err != nil {
		logger.WithError(err).Error("Failed to mark application approved, rolling back loan")
		s.rollback(ctx, logger, loan.LoanID, true)
		return nil, nil, customError.WrapDatabaseError(err)
	}

	logApproved(logger, loan, installments)
	return loan, installments, nil
}

func logApproved(logger logrus.FieldLogger, loan *domain.Loan, installments []*domain.Installment) {
	logger.WithFields(logrus.Fields{
		"installments":    len(installments),
		"total_repayment": loan.TotalRepayment.StringFixed(2),
	}).Info("Loan approved")
}

// rollback removes what an interrupted approval already stored.
func (s *LoanService) rollback(ctx context.Context, logger logrus.FieldLogger, loanID string, scheduleStored bool) {
	if scheduleStored {
		if err := s.InstallmentRepo.MarkDeleted(ctx, loanID); err != nil {
			logger.WithError(err).Error("Rollback: failed to delete installments")
		}
	}
	if err := s.LoanRepo.Delete(ctx, loanID); err != nil {
		logger.WithError(err).Error("Rollback: failed to delete loan")
	}
}

// GetInstallments returns the schedule of a loan ordered by sequence.
func (s *LoanService) GetInstallments(ctx context.Context, loanID string) ([]*domain.Installment, error) {
	if _, err := s.LoanRepo.GetByLoanID(ctx, loanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapLoanNotFound(loanID)
		}
		return nil, customError.WrapDatabaseError(err)
	}

	installments, err := s.InstallmentRepo.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return installments, nil
}

// ListReminderRules returns every configured rule, enabled or not.
func (s *LoanService) ListReminderRules(ctx context.Context) ([]*domain.ReminderSchedule, error) {
	rules, err := s.RuleRepo.List(ctx)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return rules, nil
}

// SaveReminderRule creates or replaces a rule.
func (s *LoanService) SaveReminderRule(ctx context.Context, rule *domain.ReminderSchedule) error {
	if rule.Direction == domain.DirectionOnDue {
		rule.OffsetDays = 0
	}
	if err := s.RuleRepo.Upsert(ctx, rule); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

// ListNotifications queries the notification log, newest first.
func (s *LoanService) ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]*domain.NotificationResult, error) {
	results, err := s.NotificationLog.List(ctx, filter)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return results, nil
}
