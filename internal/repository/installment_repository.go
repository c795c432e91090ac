package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/loan-servicing/internal/domain"
)

type installmentRepository struct {
	db *sqlx.DB
}

func NewInstallmentRepository(db *sqlx.DB) InstallmentRepository {
	return &installmentRepository{db: db}
}

func (r *installmentRepository) CreateBatch(ctx context.Context, loanID string, installments []*domain.Installment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertInstallments(ctx, tx, loanID, installments); err != nil {
		return err
	}
	return tx.Commit()
}

func insertInstallments(ctx context.Context, tx *sqlx.Tx, loanID string, installments []*domain.Installment) error {
	query := `
		INSERT INTO installments (id, loan_id, sequence, due_date, amount_due, principal_portion, interest_portion,
			fee_portion, status, amount_paid, payment_verified, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	for _, inst := range installments {
		if inst.LoanID != loanID {
			return fmt.Errorf("installment %d belongs to loan %s, not %s", inst.Sequence, inst.LoanID, loanID)
		}
		_, err := tx.ExecContext(ctx, query,
			inst.ID,
			inst.LoanID,
			inst.Sequence,
			inst.DueDate,
			inst.AmountDue,
			inst.PrincipalPortion,
			inst.InterestPortion,
			inst.FeePortion,
			inst.Status,
			inst.AmountPaid,
			inst.PaymentVerified,
			inst.PaidAt,
			inst.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *installmentRepository) FindPending(ctx context.Context, filter domain.PendingFilter) ([]*domain.PendingPayment, error) {
	var (
		conds = []string{"i.status = 'pending'", "i.deleted_at IS NULL", "l.deleted_at IS NULL"}
		args  []interface{}
	)
	if filter.LoanID != "" {
		args = append(args, filter.LoanID)
		conds = append(conds, fmt.Sprintf("i.loan_id = $%d", len(args)))
	}
	if filter.DueAfter != nil {
		args = append(args, *filter.DueAfter)
		conds = append(conds, fmt.Sprintf("i.due_date >= $%d", len(args)))
	}
	if filter.DueBefore != nil {
		args = append(args, *filter.DueBefore)
		conds = append(conds, fmt.Sprintf("i.due_date <= $%d", len(args)))
	}

	query := `
		SELECT i.id AS installment_id, i.loan_id, i.sequence, i.due_date, i.amount_due, i.status,
			a.customer_id, a.customer_name,
			COALESCE(a.customer_email, '') AS customer_email,
			COALESCE(a.customer_phone, '') AS customer_phone
		FROM installments i
		JOIN loans l ON l.loan_id = i.loan_id
		JOIN loan_applications a ON a.id = l.application_id
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY i.due_date, i.loan_id, i.sequence`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var payments []*domain.PendingPayment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *installmentRepository) MarkDeleted(ctx context.Context, loanID string) error {
	query := `
		UPDATE installments
		SET deleted_at = $2
		WHERE loan_id = $1 AND deleted_at IS NULL
	`

	_, err := r.db.ExecContext(ctx, query, loanID, time.Now())
	return err
}

func (r *installmentRepository) GetByLoanID(ctx context.Context, loanID string) ([]*domain.Installment, error) {
	query := `
		SELECT id, loan_id, sequence, due_date, amount_due, principal_portion, interest_portion, fee_portion,
			status, amount_paid, payment_verified, paid_at, created_at
		FROM installments
		WHERE loan_id = $1 AND deleted_at IS NULL
		ORDER BY sequence
	`

	var installments []*domain.Installment
	err := r.db.SelectContext(ctx, &installments, query, loanID)
	if err != nil {
		return nil, err
	}

	return installments, nil
}
