package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/loan-servicing/internal/domain"
	customError "github.com/segyhp/loan-servicing/pkg/errors"
)

type approvalRepository struct {
	db *sqlx.DB
}

func NewApprovalRepository(db *sqlx.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

// Approve stores the loan, its schedule and the approved application status
// in one transaction. A failure at any step leaves nothing behind, so the same
// loan id can be approved again.
func (r *approvalRepository) Approve(ctx context.Context, loan *domain.Loan, installments []*domain.Installment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertLoan(ctx, tx, loan); err != nil {
		return err
	}
	if err := insertInstallments(ctx, tx, loan.LoanID, installments); err != nil {
		return err
	}

	// Only an application still waiting for a decision moves to approved
	query := `
		UPDATE loan_applications
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status IN ($4, $5)
	`
	res, err := tx.ExecContext(ctx, query,
		loan.ApplicationID,
		domain.ApplicationStatusApproved,
		time.Now(),
		domain.ApplicationStatusPending,
		domain.ApplicationStatusUnderReview,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return customError.WrapApplicationNotApprovable(loan.ApplicationID, "no longer pending")
	}

	return tx.Commit()
}
