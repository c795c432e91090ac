package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationResult records one send attempt on one channel. Never mutated after creation.
type NotificationResult struct {
	ID            uuid.UUID `json:"id" db:"id"`
	LoanID        string    `json:"loan_id" db:"loan_id"`
	InstallmentID uuid.UUID `json:"installment_id" db:"installment_id"`
	CustomerID    string    `json:"customer_id" db:"customer_id"`
	RuleID        uuid.UUID `json:"rule_id" db:"rule_id"`
	Channel       Channel   `json:"channel" db:"channel"`
	Recipient     string    `json:"recipient" db:"recipient"`
	Success       bool      `json:"success" db:"success"`
	MessageID     string    `json:"message_id,omitempty" db:"message_id"`
	Error         string    `json:"error,omitempty" db:"error"`
	Timestamp     time.Time `json:"timestamp" db:"created_at"`
}

// NotificationFilter narrows notification log queries. Zero values mean no restriction.
type NotificationFilter struct {
	LoanID  string
	Channel Channel
	Success *bool
	Limit   int
}

// Matches reports whether r passes the filter's field restrictions (Limit is not applied).
func (f NotificationFilter) Matches(r *NotificationResult) bool {
	if f.LoanID != "" && r.LoanID != f.LoanID {
		return false
	}
	if f.Channel != "" && r.Channel != f.Channel {
		return false
	}
	if f.Success != nil && r.Success != *f.Success {
		return false
	}
	return true
}

// SendReceipt is what a channel sender reports for an accepted message.
type SendReceipt struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
}
