package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/segyhp/loan-servicing/internal/domain"
	customError "github.com/segyhp/loan-servicing/pkg/errors"
)

const pgUniqueViolation = "23505"

type loanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	return insertLoan(ctx, r.db, loan)
}

// insertLoan runs on the pool or inside an approval transaction.
func insertLoan(ctx context.Context, exec sqlx.ExecerContext, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (id, loan_id, application_id, customer_id, principal, interest, closing_fee,
			total_repayment, disbursed_amount, tenure, frequency, start_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := exec.ExecContext(ctx, query,
		loan.ID,
		loan.LoanID,
		loan.ApplicationID,
		loan.CustomerID,
		loan.Principal,
		loan.Interest,
		loan.ClosingFee,
		loan.TotalRepayment,
		loan.DisbursedAmount,
		loan.Tenure,
		loan.Frequency,
		loan.StartDate,
		loan.Status,
		loan.CreatedAt,
		loan.UpdatedAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return customError.WrapLoanAlreadyExists(loan.LoanID)
	}

	return err
}

func (r *loanRepository) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	query := `
		SELECT id, loan_id, application_id, customer_id, principal, interest, closing_fee, total_repayment,
			disbursed_amount, tenure, frequency, start_date, status, created_at, updated_at
		FROM loans
		WHERE loan_id = $1 AND deleted_at IS NULL
	`

	var loan domain.Loan
	err := r.db.GetContext(ctx, &loan, query, loanID)
	if err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) Delete(ctx context.Context, loanID string) error {
	query := `
		UPDATE loans
		SET deleted_at = $2, updated_at = $2
		WHERE loan_id = $1 AND deleted_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, loanID, time.Now())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type applicationRepository struct {
	db *sqlx.DB
}

func NewApplicationRepository(db *sqlx.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

func (r *applicationRepository) GetByID(ctx context.Context, applicationID string) (*domain.LoanApplication, error) {
	query := `
		SELECT id, customer_id, customer_name, COALESCE(customer_email, '') AS customer_email,
			COALESCE(customer_phone, '') AS customer_phone, status, updated_at
		FROM loan_applications
		WHERE id = $1
	`

	var app domain.LoanApplication
	if err := r.db.GetContext(ctx, &app, query, applicationID); err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *applicationRepository) UpdateStatus(ctx context.Context, applicationID, status string) error {
	query := `
		UPDATE loan_applications
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, applicationID, status, time.Now())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
