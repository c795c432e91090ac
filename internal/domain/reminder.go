package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction locates a reminder's trigger day relative to the due date.
type Direction string

const (
	DirectionBeforeDue Direction = "before_due"
	DirectionOnDue     Direction = "on_due"
	DirectionAfterDue  Direction = "after_due"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionBeforeDue, DirectionOnDue, DirectionAfterDue:
		return true
	}
	return false
}

// Channel is a notification transport.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
)

// Channels lists every channel in dispatch order.
var Channels = []Channel{ChannelEmail, ChannelWhatsApp, ChannelSMS}

// ChannelSet holds the per-channel flags of a rule.
type ChannelSet struct {
	Email    bool `json:"email" db:"channel_email"`
	WhatsApp bool `json:"whatsapp" db:"channel_whatsapp"`
	SMS      bool `json:"sms" db:"channel_sms"`
}

func (c ChannelSet) Has(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return c.Email
	case ChannelWhatsApp:
		return c.WhatsApp
	case ChannelSMS:
		return c.SMS
	}
	return false
}

// With returns a copy with ch switched on or off.
func (c ChannelSet) With(ch Channel, on bool) ChannelSet {
	switch ch {
	case ChannelEmail:
		c.Email = on
	case ChannelWhatsApp:
		c.WhatsApp = on
	case ChannelSMS:
		c.SMS = on
	}
	return c
}

func (c ChannelSet) Any() bool {
	return c.Email || c.WhatsApp || c.SMS
}

// ReminderSchedule is a configured reminder rule.
type ReminderSchedule struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Name        string     `json:"name" db:"name" validate:"required,max=120"`
	OffsetDays  int        `json:"offset_days" db:"offset_days" validate:"gte=0,lte=365"`
	Direction   Direction  `json:"direction" db:"direction" validate:"required,oneof=before_due on_due after_due"`
	Enabled     bool       `json:"enabled" db:"enabled"`
	Channels    ChannelSet `json:"channels" db:"-"`
	TemplateRef string     `json:"template_ref,omitempty" db:"template_ref"`
	Priority    int        `json:"priority" db:"priority"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

func (r *ReminderSchedule) String() string {
	if r.Direction == DirectionOnDue {
		return fmt.Sprintf("%s (on due date)", r.Name)
	}
	return fmt.Sprintf("%s (%d days %s)", r.Name, r.OffsetDays, r.Direction)
}

// DueReminder is a rule that fires today for a payment, with the signed day
// distance to the due date (positive: days until due, negative: days overdue).
type DueReminder struct {
	Rule         *ReminderSchedule
	DaysUntilDue int
}
