package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/loan-servicing/pkg/errors"
)

// Business logic constants
const (
	InstallmentStatusPending = "pending"
	InstallmentStatusPaid    = "paid"
	InstallmentStatusOverdue = "overdue"
	InstallmentStatusSettled = "settled"
)

// Installment is one scheduled repayment of a loan.
type Installment struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	LoanID           string          `json:"loan_id" db:"loan_id"`
	Sequence         int             `json:"sequence" db:"sequence"`
	DueDate          time.Time       `json:"due_date" db:"due_date"`
	AmountDue        decimal.Decimal `json:"amount_due" db:"amount_due"`
	PrincipalPortion decimal.Decimal `json:"principal_portion" db:"principal_portion"`
	InterestPortion  decimal.Decimal `json:"interest_portion" db:"interest_portion"`
	FeePortion       decimal.Decimal `json:"fee_portion" db:"fee_portion"`
	Status           string          `json:"status" db:"status"` // pending, paid, overdue, settled
	AmountPaid       decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	PaymentVerified  bool            `json:"payment_verified" db:"payment_verified"`
	PaidAt           *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

type InstallmentsResponse struct {
	LoanID       string         `json:"loan_id"`
	Installments []*Installment `json:"installments"`
}

// PendingFilter narrows FindPending. Zero values mean no restriction.
type PendingFilter struct {
	LoanID    string
	DueAfter  *time.Time
	DueBefore *time.Time
	Limit     int
}

// PendingPayment is a pending installment joined with the contact details of
// the borrower, as read by the reminder cycle.
type PendingPayment struct {
	InstallmentID uuid.UUID       `json:"installment_id" db:"installment_id"`
	LoanID        string          `json:"loan_id" db:"loan_id"`
	Sequence      int             `json:"sequence" db:"sequence"`
	DueDate       *time.Time      `json:"due_date" db:"due_date"`
	AmountDue     decimal.Decimal `json:"amount_due" db:"amount_due"`
	Status        string          `json:"status" db:"status"`
	CustomerID    string          `json:"customer_id" db:"customer_id"`
	CustomerName  string          `json:"customer_name" db:"customer_name"`
	CustomerEmail string          `json:"customer_email" db:"customer_email"`
	CustomerPhone string          `json:"customer_phone" db:"customer_phone"`
}

// Validate returns a MalformedRecordWarning when the row cannot be reminded about.
func (p *PendingPayment) Validate() error {
	id := p.InstallmentID.String()
	switch {
	case p.InstallmentID == uuid.Nil:
		return customError.WrapMalformedRecord(p.LoanID, "missing installment id")
	case strings.TrimSpace(p.LoanID) == "":
		return customError.WrapMalformedRecord(id, "missing loan id")
	case p.DueDate == nil || p.DueDate.IsZero():
		return customError.WrapMalformedRecord(id, "missing due date")
	case p.AmountDue.IsNegative():
		return customError.WrapMalformedRecord(id, "negative amount due")
	}
	return nil
}

// HasEmail reports whether an email reminder can be addressed.
func (p *PendingPayment) HasEmail() bool {
	return strings.Contains(p.CustomerEmail, "@")
}

// HasPhone reports whether a WhatsApp or SMS reminder can be addressed.
func (p *PendingPayment) HasPhone() bool {
	return strings.TrimSpace(p.CustomerPhone) != ""
}
