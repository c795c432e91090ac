package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/segyhp/loan-servicing/internal/domain"
	customError "github.com/segyhp/loan-servicing/pkg/errors"
)

func sampleLoan(loanID string) *domain.Loan {
	now := time.Now()
	return &domain.Loan{
		ID:             uuid.New(),
		LoanID:         loanID,
		ApplicationID:  "APP-1",
		CustomerID:     "CUST-1",
		Principal:      decimal.NewFromInt(300),
		TotalRepayment: decimal.NewFromInt(300),
		Tenure:         3,
		Frequency:      domain.FrequencyMonthly,
		StartDate:      now,
		Status:         domain.LoanStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestApprovalRepository_Approve(t *testing.T) {
	tests := []struct {
		name         string
		setupMock    func(mock sqlmock.Sqlmock)
		expectedCode string
		expectErr    bool
	}{
		{
			name: "Success - Loan, schedule and status committed together",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO loans").WillReturnResult(sqlmock.NewResult(0, 1))
				for i := 0; i < 3; i++ {
					mock.ExpectExec("INSERT INTO installments").WillReturnResult(sqlmock.NewResult(0, 1))
				}
				mock.ExpectExec("UPDATE loan_applications").
					WithArgs("APP-1", domain.ApplicationStatusApproved, sqlmock.AnyArg(),
						domain.ApplicationStatusPending, domain.ApplicationStatusUnderReview).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "Error - Installment insert fails and nothing is kept",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO loans").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec("INSERT INTO installments").WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			expectErr: true,
		},
		{
			name: "Error - Application decided meanwhile",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO loans").WillReturnResult(sqlmock.NewResult(0, 1))
				for i := 0; i < 3; i++ {
					mock.ExpectExec("INSERT INTO installments").WillReturnResult(sqlmock.NewResult(0, 1))
				}
				mock.ExpectExec("UPDATE loan_applications").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			expectErr:    true,
			expectedCode: customError.ErrCodeApplicationNotApprovable,
		},
		{
			name: "Error - Live loan with the same id",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO loans").WillReturnError(&pq.Error{Code: "23505"})
				mock.ExpectRollback()
			},
			expectErr:    true,
			expectedCode: customError.ErrCodeLoanAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewApprovalRepository(db)
			tt.setupMock(mock)

			err := repo.Approve(context.Background(), sampleLoan("LN-1"), sampleInstallments("LN-1", 3))

			if tt.expectErr {
				assert.Error(t, err)
				if tt.expectedCode != "" {
					assert.Equal(t, tt.expectedCode, customError.CodeOf(err))
				}
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestApprovalRepository_RetryAfterFailedApproval(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApprovalRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO loans").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO installments").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO loans").WithArgs(sqlmock.AnyArg(), "LN-1", sqlmock.AnyArg(), sqlmock.AnyArg(),
		sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO installments").WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("UPDATE loan_applications").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Approve(context.Background(), sampleLoan("LN-1"), sampleInstallments("LN-1", 3))
	assert.Error(t, err)

	err = repo.Approve(context.Background(), sampleLoan("LN-1"), sampleInstallments("LN-1", 3))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
