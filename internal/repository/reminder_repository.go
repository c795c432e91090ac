package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/loan-servicing/internal/domain"
)

type reminderRow struct {
	ID              uuid.UUID `db:"id"`
	Name            string    `db:"name"`
	OffsetDays      int       `db:"offset_days"`
	Direction       string    `db:"direction"`
	Enabled         bool      `db:"enabled"`
	ChannelEmail    bool      `db:"channel_email"`
	ChannelWhatsApp bool      `db:"channel_whatsapp"`
	ChannelSMS      bool      `db:"channel_sms"`
	TemplateRef     string    `db:"template_ref"`
	Priority        int       `db:"priority"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (row reminderRow) toDomain() *domain.ReminderSchedule {
	return &domain.ReminderSchedule{
		ID:         row.ID,
		Name:       row.Name,
		OffsetDays: row.OffsetDays,
		Direction:  domain.Direction(row.Direction),
		Enabled:    row.Enabled,
		Channels: domain.ChannelSet{
			Email:    row.ChannelEmail,
			WhatsApp: row.ChannelWhatsApp,
			SMS:      row.ChannelSMS,
		},
		TemplateRef: row.TemplateRef,
		Priority:    row.Priority,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

const reminderColumns = `id, name, offset_days, direction, enabled, channel_email, channel_whatsapp, channel_sms,
	template_ref, priority, created_at, updated_at`

type reminderRuleRepository struct {
	db *sqlx.DB
}

func NewReminderRuleRepository(db *sqlx.DB) ReminderRuleRepository {
	return &reminderRuleRepository{db: db}
}

func (r *reminderRuleRepository) FindEnabled(ctx context.Context) ([]*domain.ReminderSchedule, error) {
	return r.selectRules(ctx, `SELECT `+reminderColumns+` FROM reminder_schedules WHERE enabled ORDER BY priority DESC, name`)
}

func (r *reminderRuleRepository) List(ctx context.Context) ([]*domain.ReminderSchedule, error) {
	return r.selectRules(ctx, `SELECT `+reminderColumns+` FROM reminder_schedules ORDER BY priority DESC, name`)
}

func (r *reminderRuleRepository) selectRules(ctx context.Context, query string) ([]*domain.ReminderSchedule, error) {
	var rows []reminderRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	rules := make([]*domain.ReminderSchedule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.toDomain())
	}
	return rules, nil
}

func (r *reminderRuleRepository) Upsert(ctx context.Context, rule *domain.ReminderSchedule) error {
	query := `
		INSERT INTO reminder_schedules (id, name, offset_days, direction, enabled, channel_email, channel_whatsapp,
			channel_sms, template_ref, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			offset_days = EXCLUDED.offset_days,
			direction = EXCLUDED.direction,
			enabled = EXCLUDED.enabled,
			channel_email = EXCLUDED.channel_email,
			channel_whatsapp = EXCLUDED.channel_whatsapp,
			channel_sms = EXCLUDED.channel_sms,
			template_ref = EXCLUDED.template_ref,
			priority = EXCLUDED.priority,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.OffsetDays,
		rule.Direction,
		rule.Enabled,
		rule.Channels.Email,
		rule.Channels.WhatsApp,
		rule.Channels.SMS,
		rule.TemplateRef,
		rule.Priority,
		now,
	)
	return err
}
