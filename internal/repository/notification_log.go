package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/loan-servicing/internal/domain"
)

const defaultNotificationListLimit = 100

type notificationLogRepository struct {
	db *sqlx.DB
}

// NewNotificationLogRepository persists notification results in notification_logs.
func NewNotificationLogRepository(db *sqlx.DB) NotificationLog {
	return &notificationLogRepository{db: db}
}

func (r *notificationLogRepository) Append(ctx context.Context, result *domain.NotificationResult) error {
	query := `
		INSERT INTO notification_logs (id, loan_id, installment_id, customer_id, rule_id, channel, recipient,
			success, message_id, error, created_at)
		VALUES (:id, :loan_id, :installment_id, :customer_id, :rule_id, :channel, :recipient,
			:success, :message_id, :error, :created_at)
	`

	_, err := r.db.NamedExecContext(ctx, query, result)
	return err
}

func (r *notificationLogRepository) List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.NotificationResult, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.LoanID != "" {
		args = append(args, filter.LoanID)
		conds = append(conds, fmt.Sprintf("loan_id = $%d", len(args)))
	}
	if filter.Channel != "" {
		args = append(args, filter.Channel)
		conds = append(conds, fmt.Sprintf("channel = $%d", len(args)))
	}
	if filter.Success != nil {
		args = append(args, *filter.Success)
		conds = append(conds, fmt.Sprintf("success = $%d", len(args)))
	}

	query := `
		SELECT id, loan_id, installment_id, customer_id, rule_id, channel, recipient, success, message_id, error, created_at
		FROM notification_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	var results []*domain.NotificationResult
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, err
	}
	return results, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultNotificationListLimit
	}
	return limit
}

// MemoryNotificationLog keeps results in process memory; lost on restart.
type MemoryNotificationLog struct {
	mu      sync.RWMutex
	results []*domain.NotificationResult
}

func NewMemoryNotificationLog() *MemoryNotificationLog {
	return &MemoryNotificationLog{}
}

func (l *MemoryNotificationLog) Append(_ context.Context, result *domain.NotificationResult) error {
	copied := *result
	l.mu.Lock()
	l.results = append(l.results, &copied)
	l.mu.Unlock()
	return nil
}

// List returns matching results newest first.
func (l *MemoryNotificationLog) List(_ context.Context, filter domain.NotificationFilter) ([]*domain.NotificationResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	limit := listLimit(filter.Limit)
	var out []*domain.NotificationResult
	for i := len(l.results) - 1; i >= 0 && len(out) < limit; i-- {
		if filter.Matches(l.results[i]) {
			copied := *l.results[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

// Len returns the number of stored results.
func (l *MemoryNotificationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.results)
}
