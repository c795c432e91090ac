package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/pkg/utils"
)

// GenerateInstallments computes the repayment schedule of a loan. It has no
// side effects; the caller persists the batch.
//
// Installment k falls k periods after the start date. Every installment is
// floor(total / tenure) to the cent and the last one also carries the
// remainder, so the amounts add up to the total repayment exactly.
func GenerateInstallments(loanID string, terms domain.LoanTerms) ([]*domain.Installment, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	total := terms.TotalRepayment()
	tenure := decimal.NewFromInt(int64(terms.Tenure))
	base := utils.FloorToCents(total.Div(tenure))
	last := total.Sub(base.Mul(decimal.NewFromInt(int64(terms.Tenure - 1))))

	fee := decimal.Zero
	if !terms.ClosingFeeDeducted {
		fee = terms.ClosingFee
	}
	alloc := newAllocator(terms.Principal, terms.Interest, fee, terms.Tenure)

	start := utils.TruncateToDay(terms.StartDate)
	createdAt := time.Now()
	installments := make([]*domain.Installment, 0, terms.Tenure)

	for seq := 1; seq <= terms.Tenure; seq++ {
		amount := base
		if seq == terms.Tenure {
			amount = last
		}
		principal, interest, feePart := alloc.split(seq, amount)

		installments = append(installments, &domain.Installment{
			ID:               uuid.New(),
			LoanID:           loanID,
			Sequence:         seq,
			DueDate:          terms.Frequency.Advance(start, seq),
			AmountDue:        amount,
			PrincipalPortion: principal,
			InterestPortion:  interest,
			FeePortion:       feePart,
			Status:           domain.InstallmentStatusPending,
			AmountPaid:       decimal.Zero,
			PaymentVerified:  false,
			CreatedAt:        createdAt,
		})
	}

	return installments, nil
}

// allocator splits installment amounts into fee, interest and principal.
// The closing fee is collected first, interest follows an even cumulative
// share, principal takes the rest. Whatever principal cannot absorb is
// counted as interest so the three portions always add up to the amount.
type allocator struct {
	tenure        int
	totalInterest decimal.Decimal
	feeLeft       decimal.Decimal
	interestLeft  decimal.Decimal
	principalLeft decimal.Decimal
}

func newAllocator(principal, interest, fee decimal.Decimal, tenure int) *allocator {
	return &allocator{
		tenure:        tenure,
		totalInterest: interest,
		feeLeft:       fee,
		interestLeft:  interest,
		principalLeft: principal,
	}
}

func (a *allocator) split(seq int, amount decimal.Decimal) (principal, interest, fee decimal.Decimal) {
	fee = decimal.Min(a.feeLeft, amount)
	rest := amount.Sub(fee)

	// interest owed by the end of this installment under an even spread
	target := utils.FloorToCents(a.totalInterest.Mul(decimal.NewFromInt(int64(seq))).Div(decimal.NewFromInt(int64(a.tenure))))
	if seq == a.tenure {
		target = a.totalInterest
	}
	owed := target.Sub(a.totalInterest.Sub(a.interestLeft))
	if owed.IsNegative() {
		owed = decimal.Zero
	}
	interest = decimal.Min(a.interestLeft, rest, owed)
	principal = decimal.Min(a.principalLeft, rest.Sub(interest))
	interest = rest.Sub(principal)

	a.feeLeft = a.feeLeft.Sub(fee)
	a.interestLeft = a.interestLeft.Sub(interest)
	a.principalLeft = a.principalLeft.Sub(principal)
	return principal, interest, fee
}
