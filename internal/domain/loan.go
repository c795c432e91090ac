package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/loan-servicing/pkg/errors"
	"github.com/segyhp/loan-servicing/pkg/utils"
)

const (
	LoanStatusActive  = "active"
	LoanStatusClosed  = "closed"
	LoanStatusDefault = "default"
)

// Loan application statuses the approval flow reads and writes.
const (
	ApplicationStatusPending     = "pending"
	ApplicationStatusUnderReview = "under_review"
	ApplicationStatusApproved    = "approved"
	ApplicationStatusRejected    = "rejected"
)

// RepaymentFrequency is the spacing between consecutive installments.
type RepaymentFrequency string

const (
	FrequencyMonthly  RepaymentFrequency = "monthly"
	FrequencyBiWeekly RepaymentFrequency = "bi-weekly"
	FrequencyWeekly   RepaymentFrequency = "weekly"
	FrequencyDaily    RepaymentFrequency = "daily"
)

// ParseFrequency accepts the canonical names plus the spellings found in older
// application records ("biweekly", "bi_weekly").
func ParseFrequency(s string) (RepaymentFrequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly":
		return FrequencyMonthly, nil
	case "bi-weekly", "biweekly", "bi_weekly":
		return FrequencyBiWeekly, nil
	case "weekly":
		return FrequencyWeekly, nil
	case "daily":
		return FrequencyDaily, nil
	}
	return "", fmt.Errorf("unknown repayment frequency %q", s)
}

// Advance moves t forward by n periods of the frequency.
func (f RepaymentFrequency) Advance(t time.Time, n int) time.Time {
	switch f {
	case FrequencyMonthly:
		return utils.AddMonthsClamped(t, n)
	case FrequencyBiWeekly:
		return t.AddDate(0, 0, 14*n)
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7*n)
	case FrequencyDaily:
		return t.AddDate(0, 0, n)
	}
	return t
}

// LoanTerms are the inputs to installment generation. When ClosingFeeDeducted
// is set the fee is withheld from the disbursement instead of being repaid
// through the installments.
type LoanTerms struct {
	Principal          decimal.Decimal    `json:"principal"`
	Interest           decimal.Decimal    `json:"interest"`
	ClosingFee         decimal.Decimal    `json:"closing_fee"`
	ClosingFeeDeducted bool               `json:"closing_fee_deducted"`
	Tenure             int                `json:"tenure"`
	Frequency          RepaymentFrequency `json:"frequency"`
	StartDate          time.Time          `json:"start_date"`
}

// TotalRepayment is what the borrower repays across all installments.
func (t LoanTerms) TotalRepayment() decimal.Decimal {
	total := t.Principal.Add(t.Interest)
	if !t.ClosingFeeDeducted {
		total = total.Add(t.ClosingFee)
	}
	return total
}

// DisbursedAmount is what the borrower receives on the start date.
func (t LoanTerms) DisbursedAmount() decimal.Decimal {
	if t.ClosingFeeDeducted {
		return t.Principal.Sub(t.ClosingFee)
	}
	return t.Principal
}

// Validate fails with an InvalidLoanTermsError describing the first problem found.
func (t LoanTerms) Validate() error {
	switch {
	case !t.Principal.IsPositive():
		return customError.WrapInvalidLoanTerms("principal must be greater than 0")
	case t.Interest.IsNegative():
		return customError.WrapInvalidLoanTerms("interest must not be negative")
	case t.ClosingFee.IsNegative():
		return customError.WrapInvalidLoanTerms("closing fee must not be negative")
	case t.ClosingFeeDeducted && t.ClosingFee.GreaterThanOrEqual(t.Principal):
		return customError.WrapInvalidLoanTerms("deducted closing fee must be less than principal")
	case t.Tenure < 1:
		return customError.WrapInvalidLoanTerms("tenure must be at least 1")
	case t.TotalRepayment().Shift(2).Floor().LessThan(decimal.NewFromInt(int64(t.Tenure))):
		// every installment carries at least one cent
		return customError.WrapInvalidLoanTerms("total repayment must cover at least 0.01 per installment")
	case t.StartDate.IsZero():
		return customError.WrapInvalidLoanTerms("start date is required")
	}
	if _, err := ParseFrequency(string(t.Frequency)); err != nil {
		return customError.WrapInvalidLoanTerms(err.Error())
	}
	return nil
}

// Loan represents a loan entity
type Loan struct {
	ID              uuid.UUID          `json:"id" db:"id"`
	LoanID          string             `json:"loan_id" db:"loan_id"`
	ApplicationID   string             `json:"application_id" db:"application_id"`
	CustomerID      string             `json:"customer_id" db:"customer_id"`
	Principal       decimal.Decimal    `json:"principal" db:"principal"`
	Interest        decimal.Decimal    `json:"interest" db:"interest"`
	ClosingFee      decimal.Decimal    `json:"closing_fee" db:"closing_fee"`
	TotalRepayment  decimal.Decimal    `json:"total_repayment" db:"total_repayment"`
	DisbursedAmount decimal.Decimal    `json:"disbursed_amount" db:"disbursed_amount"`
	Tenure          int                `json:"tenure" db:"tenure"`
	Frequency       RepaymentFrequency `json:"frequency" db:"frequency"`
	StartDate       time.Time          `json:"start_date" db:"start_date"`
	Status          string             `json:"status" db:"status"`
	CreatedAt       time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" db:"updated_at"`
}

// LoanApplication is the narrow view of an application record the approval flow needs.
type LoanApplication struct {
	ID            string    `json:"id" db:"id"`
	CustomerID    string    `json:"customer_id" db:"customer_id"`
	CustomerName  string    `json:"customer_name" db:"customer_name"`
	CustomerEmail string    `json:"customer_email" db:"customer_email"`
	CustomerPhone string    `json:"customer_phone" db:"customer_phone"`
	Status        string    `json:"status" db:"status"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Approvable reports whether the application can still be turned into a loan.
func (a *LoanApplication) Approvable() bool {
	return a.Status == ApplicationStatusPending || a.Status == ApplicationStatusUnderReview
}

// DTOs for requests and responses

// ApproveLoanRequest carries the loan terms staff confirm when approving an
// application. Amounts arrive as decimals, the start date as YYYY-MM-DD.
type ApproveLoanRequest struct {
	ApplicationID      string          `json:"-"`
	LoanID             string          `json:"loan_id" validate:"required,max=64"`
	Principal          decimal.Decimal `json:"principal" validate:"decimal_gt=0"`
	Interest           decimal.Decimal `json:"interest" validate:"decimal_gte=0"`
	ClosingFee         decimal.Decimal `json:"closing_fee" validate:"decimal_gte=0"`
	ClosingFeeDeducted bool            `json:"closing_fee_deducted"`
	Tenure             int             `json:"tenure" validate:"required,gt=0,lte=600"`
	Frequency          string          `json:"frequency" validate:"required"`
	StartDate          string          `json:"start_date" validate:"required"`
}

// Terms narrows the request into LoanTerms, failing fast on malformed fields.
func (r *ApproveLoanRequest) Terms() (LoanTerms, error) {
	freq, err := ParseFrequency(r.Frequency)
	if err != nil {
		return LoanTerms{}, customError.WrapInvalidLoanTerms(err.Error())
	}
	start, err := time.Parse(utils.DateLayout, r.StartDate)
	if err != nil {
		return LoanTerms{}, customError.WrapInvalidLoanTerms(fmt.Sprintf("start date %q is not YYYY-MM-DD", r.StartDate))
	}
	terms := LoanTerms{
		Principal:          r.Principal,
		Interest:           r.Interest,
		ClosingFee:         r.ClosingFee,
		ClosingFeeDeducted: r.ClosingFeeDeducted,
		Tenure:             r.Tenure,
		Frequency:          freq,
		StartDate:          start,
	}
	if err := terms.Validate(); err != nil {
		return LoanTerms{}, err
	}
	return terms, nil
}

type ApproveLoanResponse struct {
	Loan         *Loan          `json:"loan"`
	Installments []*Installment `json:"installments"`
}
