package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used in requests, templates and dedupe keys.
const DateLayout = "2006-01-02"

// TruncateToDay returns midnight of t's calendar date in t's location.
func TruncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of whole calendar days from `from` to `to`.
// Each value is read as the calendar date in its own location, so a due date
// stored as a DATE column compares by the date it names.
// Positive when `to` is after `from`.
func DaysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// AddMonthsClamped advances t by n calendar months, keeping t's day of month
// but clamping it to the last day of the target month (Jan 31 + 1 → Feb 28/29).
func AddMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// IsDateOverdue checks if a date is overdue relative to now
func IsDateOverdue(dueDate, now time.Time) bool {
	return DaysBetween(now, dueDate) < 0
}

// FloorToCents rounds d down to 2 decimal places.
func FloorToCents(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(2)
}

// FormatMoney renders an amount with two decimals for customer-facing messages.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// DecimalFromString converts string to decimal.Decimal
func DecimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
