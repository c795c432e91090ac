package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/internal/service"
	customError "github.com/segyhp/loan-servicing/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestGenerateInstallments(t *testing.T) {
	tests := []struct {
		name           string
		terms          domain.LoanTerms
		expectedError  bool
		validateResult func(*testing.T, []*domain.Installment)
	}{
		{
			name: "Success - Monthly with closing fee repaid",
			terms: domain.LoanTerms{
				Principal:  dec("2500.00"),
				Interest:   dec("500.00"),
				ClosingFee: dec("125.00"),
				Tenure:     3,
				Frequency:  domain.FrequencyMonthly,
				StartDate:  date("2024-01-15"),
			},
			validateResult: func(t *testing.T, items []*domain.Installment) {
				require.Len(t, items, 3)
				assert.Equal(t, "1041.66", items[0].AmountDue.StringFixed(2))
				assert.Equal(t, "1041.66", items[1].AmountDue.StringFixed(2))
				assert.Equal(t, "1041.68", items[2].AmountDue.StringFixed(2))
				assert.Equal(t, date("2024-02-15"), items[0].DueDate)
				assert.Equal(t, date("2024-03-15"), items[1].DueDate)
				assert.Equal(t, date("2024-04-15"), items[2].DueDate)
				assert.True(t, items[0].FeePortion.Equal(dec("125")))
				assert.True(t, items[1].FeePortion.IsZero())
			},
		},
		{
			name: "Success - Closing fee deducted from disbursement",
			terms: domain.LoanTerms{
				Principal:          dec("1000"),
				Interest:           dec("200"),
				ClosingFee:         dec("50"),
				ClosingFeeDeducted: true,
				Tenure:             4,
				Frequency:          domain.FrequencyWeekly,
				StartDate:          date("2024-06-03"),
			},
			validateResult: func(t *testing.T, items []*domain.Installment) {
				require.Len(t, items, 4)
				for _, it := range items {
					assert.True(t, it.AmountDue.Equal(dec("300")))
					assert.True(t, it.FeePortion.IsZero())
				}
				assert.Equal(t, date("2024-06-10"), items[0].DueDate)
				assert.Equal(t, date("2024-07-01"), items[3].DueDate)
			},
		},
		{
			name: "Success - Single installment carries everything",
			terms: domain.LoanTerms{
				Principal: dec("999.99"),
				Interest:  dec("0.01"),
				Tenure:    1,
				Frequency: domain.FrequencyDaily,
				StartDate: date("2024-12-31"),
			},
			validateResult: func(t *testing.T, items []*domain.Installment) {
				require.Len(t, items, 1)
				assert.True(t, items[0].AmountDue.Equal(dec("1000")))
				assert.Equal(t, date("2025-01-01"), items[0].DueDate)
			},
		},
		{
			name: "Success - Month end clamps without drifting",
			terms: domain.LoanTerms{
				Principal: dec("300"),
				Tenure:    3,
				Frequency: domain.FrequencyMonthly,
				StartDate: date("2024-01-31"),
			},
			validateResult: func(t *testing.T, items []*domain.Installment) {
				require.Len(t, items, 3)
				assert.Equal(t, date("2024-02-29"), items[0].DueDate)
				assert.Equal(t, date("2024-03-31"), items[1].DueDate)
				assert.Equal(t, date("2024-04-30"), items[2].DueDate)
			},
		},
		{
			name: "Success - Bi-weekly spacing",
			terms: domain.LoanTerms{
				Principal: dec("100"),
				Tenure:    2,
				Frequency: domain.FrequencyBiWeekly,
				StartDate: date("2024-03-01"),
			},
			validateResult: func(t *testing.T, items []*domain.Installment) {
				assert.Equal(t, date("2024-03-15"), items[0].DueDate)
				assert.Equal(t, date("2024-03-29"), items[1].DueDate)
			},
		},
		{
			name: "Failure - Zero tenure",
			terms: domain.LoanTerms{
				Principal: dec("100"),
				Frequency: domain.FrequencyMonthly,
				StartDate: date("2024-03-01"),
			},
			expectedError: true,
		},
		{
			name: "Failure - Non-positive principal",
			terms: domain.LoanTerms{
				Principal: dec("0"),
				Tenure:    3,
				Frequency: domain.FrequencyMonthly,
				StartDate: date("2024-03-01"),
			},
			expectedError: true,
		},
		{
			name: "Failure - Total below one cent per installment",
			terms: domain.LoanTerms{
				Principal: dec("0.02"),
				Tenure:    7,
				Frequency: domain.FrequencyMonthly,
				StartDate: date("2024-03-01"),
			},
			expectedError: true,
		},
		{
			name: "Success - Exactly one cent per installment",
			terms: domain.LoanTerms{
				Principal: dec("0.07"),
				Tenure:    7,
				Frequency: domain.FrequencyMonthly,
				StartDate: date("2024-03-01"),
			},
			validateResult: func(t *testing.T, items []*domain.Installment) {
				for _, it := range items {
					assert.True(t, it.AmountDue.Equal(dec("0.01")))
				}
			},
		},
		{
			name: "Failure - Unknown frequency",
			terms: domain.LoanTerms{
				Principal: dec("100"),
				Tenure:    3,
				Frequency: "yearly",
				StartDate: date("2024-03-01"),
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := service.GenerateInstallments("LOAN-1", tt.terms)

			if tt.expectedError {
				require.Error(t, err)
				assert.True(t, errors.Is(err, customError.ErrInvalidLoanTerms))
				assert.Equal(t, customError.ErrCodeInvalidLoanTerms, customError.CodeOf(err))
				assert.Nil(t, items)
				return
			}

			require.NoError(t, err)
			assertScheduleInvariants(t, tt.terms, items)
			if tt.validateResult != nil {
				tt.validateResult(t, items)
			}
		})
	}
}

func assertScheduleInvariants(t *testing.T, terms domain.LoanTerms, items []*domain.Installment) {
	t.Helper()
	require.Len(t, items, terms.Tenure)

	sum, principal, interest, fee := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for i, it := range items {
		assert.Equal(t, i+1, it.Sequence)
		assert.Equal(t, "LOAN-1", it.LoanID)
		assert.Equal(t, domain.InstallmentStatusPending, it.Status)
		assert.True(t, it.AmountPaid.IsZero())
		assert.False(t, it.PaymentVerified)
		assert.True(t, it.AmountDue.Equal(it.AmountDue.Round(2)), "amount %s has more than two decimals", it.AmountDue)
		assert.True(t, it.PrincipalPortion.Add(it.InterestPortion).Add(it.FeePortion).Equal(it.AmountDue))
		assert.False(t, it.PrincipalPortion.IsNegative())
		assert.False(t, it.InterestPortion.IsNegative())
		if i > 0 {
			assert.True(t, it.DueDate.After(items[i-1].DueDate))
		}

		sum = sum.Add(it.AmountDue)
		principal = principal.Add(it.PrincipalPortion)
		interest = interest.Add(it.InterestPortion)
		fee = fee.Add(it.FeePortion)
	}

	assert.True(t, sum.Equal(terms.TotalRepayment()), "sum %s != total %s", sum, terms.TotalRepayment())
	assert.True(t, principal.Equal(terms.Principal))
	assert.True(t, interest.Equal(terms.Interest))
	if terms.ClosingFeeDeducted {
		assert.True(t, fee.IsZero())
	} else {
		assert.True(t, fee.Equal(terms.ClosingFee))
	}
}

func TestGenerateInstallments_Invariants(t *testing.T) {
	frequencies := []domain.RepaymentFrequency{
		domain.FrequencyMonthly, domain.FrequencyBiWeekly, domain.FrequencyWeekly, domain.FrequencyDaily,
	}
	principals := []string{"0.01", "1", "100.10", "2500", "12345.67", "5000000"}
	interests := []string{"0", "0.07", "500", "1234.56"}
	tenures := []int{1, 2, 3, 7, 12, 50}

	for _, freq := range frequencies {
		for _, p := range principals {
			for _, i := range interests {
				for _, n := range tenures {
					terms := domain.LoanTerms{
						Principal:  dec(p),
						Interest:   dec(i),
						ClosingFee: dec("12.34"),
						Tenure:     n,
						Frequency:  freq,
						StartDate:  date("2024-01-31"),
					}
					items, err := service.GenerateInstallments("LOAN-1", terms)
					require.NoError(t, err)
					assertScheduleInvariants(t, terms, items)

					// every installment but the last is the same floored amount
					for _, it := range items[:n-1] {
						assert.True(t, it.AmountDue.Equal(items[0].AmountDue))
					}
				}
			}
		}
	}
}

func TestGenerateInstallments_Deterministic(t *testing.T) {
	terms := domain.LoanTerms{
		Principal:  dec("10000"),
		Interest:   dec("1500"),
		ClosingFee: dec("250"),
		Tenure:     12,
		Frequency:  domain.FrequencyMonthly,
		StartDate:  date("2024-01-15"),
	}

	first, err := service.GenerateInstallments("LOAN-1", terms)
	require.NoError(t, err)
	second, err := service.GenerateInstallments("LOAN-1", terms)
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].DueDate, second[i].DueDate)
		assert.True(t, first[i].AmountDue.Equal(second[i].AmountDue))
		assert.True(t, first[i].PrincipalPortion.Equal(second[i].PrincipalPortion))
		assert.True(t, first[i].InterestPortion.Equal(second[i].InterestPortion))
		assert.True(t, first[i].FeePortion.Equal(second[i].FeePortion))
		assert.NotEqual(t, first[i].ID, second[i].ID)
	}
}

func TestGenerateInstallments_MonthlyLoanScenario(t *testing.T) {
	terms := domain.LoanTerms{
		Principal:  dec("2500"),
		Interest:   dec("500"),
		ClosingFee: dec("125"),
		Tenure:     3,
		Frequency:  domain.FrequencyMonthly,
		StartDate:  date("2024-07-01"),
	}

	items, err := service.GenerateInstallments("LOAN-JUL", terms)
	require.NoError(t, err)
	require.Len(t, items, 3)

	dueDates := []string{"2024-08-01", "2024-09-01", "2024-10-01"}
	sum := decimal.Zero
	for i, it := range items {
		assert.Equal(t, i+1, it.Sequence)
		assert.Equal(t, dueDates[i], it.DueDate.Format("2006-01-02"))
		assert.Equal(t, domain.InstallmentStatusPending, it.Status)
		sum = sum.Add(it.AmountDue)
	}
	assert.Equal(t, "3125.00", sum.StringFixed(2))
	assertScheduleInvariants(t, terms, items)
}
