package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	customError "github.com/segyhp/loan-servicing/pkg/errors"
)

// TriggerMode selects how the reminder scheduler wakes up.
type TriggerMode string

const (
	TriggerInterval       TriggerMode = "interval"
	TriggerDailyFixedTime TriggerMode = "daily_fixed_time"
	TriggerCustomDays     TriggerMode = "custom_days"
)

// MinSchedulerInterval is the finest interval the cron engine resolves.
const MinSchedulerInterval = time.Second

// SchedulerConfig is the trigger configuration the scheduler runs with.
type SchedulerConfig struct {
	Mode TriggerMode `json:"mode" validate:"required,oneof=interval daily_fixed_time custom_days"`

	// Interval applies to interval mode.
	Interval time.Duration `json:"interval"`

	// TimeOfDay is HH:MM in the scheduler's time zone, for daily_fixed_time mode.
	TimeOfDay string `json:"time_of_day,omitempty"`

	// CustomDays are signed day offsets from the due date (7 = a week before,
	// 0 = due date, -3 = three days overdue), for custom_days mode.
	CustomDays []int `json:"custom_days,omitempty"`

	// Cadence is how often custom_days mode wakes up; defaults to one hour.
	Cadence time.Duration `json:"cadence,omitempty"`

	// Channels used by the rules synthesised in custom_days mode.
	Channels ChannelSet `json:"channels"`
}

// DefaultCustomDaysCadence is used when a custom_days config leaves Cadence unset.
const DefaultCustomDaysCadence = time.Hour

// Validate checks the fields the selected mode needs.
func (c SchedulerConfig) Validate() error {
	switch c.Mode {
	case TriggerInterval:
		if c.Interval < MinSchedulerInterval {
			return customError.WrapInvalidSchedulerConfig(fmt.Sprintf("interval must be at least %s", MinSchedulerInterval))
		}
	case TriggerDailyFixedTime:
		if _, _, err := ParseTimeOfDay(c.TimeOfDay); err != nil {
			return customError.WrapInvalidSchedulerConfig(err.Error())
		}
	case TriggerCustomDays:
		if len(c.CustomDays) == 0 {
			return customError.WrapInvalidSchedulerConfig("custom_days mode needs at least one day offset")
		}
		if c.Cadence != 0 && c.Cadence < MinSchedulerInterval {
			return customError.WrapInvalidSchedulerConfig(fmt.Sprintf("cadence must be at least %s", MinSchedulerInterval))
		}
		if !c.Channels.Any() {
			return customError.WrapInvalidSchedulerConfig("custom_days mode needs at least one channel")
		}
	default:
		return customError.WrapInvalidSchedulerConfig(fmt.Sprintf("unknown trigger mode %q", c.Mode))
	}
	return nil
}

// EffectiveCadence returns the custom_days wake-up cadence.
func (c SchedulerConfig) EffectiveCadence() time.Duration {
	if c.Cadence <= 0 {
		return DefaultCustomDaysCadence
	}
	return c.Cadence
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time of day %q must be HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time of day %q has an invalid hour", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day %q has an invalid minute", s)
	}
	return hour, minute, nil
}

// CycleSummary describes one scheduler cycle.
type CycleSummary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Scanned    int       `json:"scanned"`
	Skipped    int       `json:"skipped"`
	Matched    int       `json:"matched"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Suppressed int       `json:"suppressed"`
	Error      string    `json:"error,omitempty"`
}

// SchedulerStatus is a side-effect free snapshot of the scheduler.
type SchedulerStatus struct {
	Running   bool             `json:"running"`
	Config    *SchedulerConfig `json:"config,omitempty"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	NextRun   *time.Time       `json:"next_run,omitempty"`
	LastCycle *CycleSummary    `json:"last_cycle,omitempty"`
}
