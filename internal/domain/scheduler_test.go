package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	customError "github.com/segyhp/loan-servicing/pkg/errors"
)

func TestSchedulerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  SchedulerConfig
		wantErr bool
	}{
		{name: "interval", config: SchedulerConfig{Mode: TriggerInterval, Interval: time.Minute}},
		{name: "interval too short", config: SchedulerConfig{Mode: TriggerInterval, Interval: 200 * time.Millisecond}, wantErr: true},
		{name: "daily fixed time", config: SchedulerConfig{Mode: TriggerDailyFixedTime, TimeOfDay: "09:30"}},
		{name: "daily fixed time bad hour", config: SchedulerConfig{Mode: TriggerDailyFixedTime, TimeOfDay: "25:00"}, wantErr: true},
		{name: "daily fixed time missing", config: SchedulerConfig{Mode: TriggerDailyFixedTime}, wantErr: true},
		{
			name:   "custom days",
			config: SchedulerConfig{Mode: TriggerCustomDays, CustomDays: []int{7, 0, -3}, Channels: ChannelSet{Email: true}},
		},
		{name: "custom days empty", config: SchedulerConfig{Mode: TriggerCustomDays, Channels: ChannelSet{Email: true}}, wantErr: true},
		{name: "custom days no channel", config: SchedulerConfig{Mode: TriggerCustomDays, CustomDays: []int{1}}, wantErr: true},
		{name: "unknown mode", config: SchedulerConfig{Mode: "cron"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, customError.ErrInvalidSchedulerConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	h, m, err := ParseTimeOfDay("07:05")
	assert.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 5, m)

	_, _, err = ParseTimeOfDay("7")
	assert.Error(t, err)
	_, _, err = ParseTimeOfDay("07:60")
	assert.Error(t, err)
}

func TestSchedulerConfig_EffectiveCadence(t *testing.T) {
	assert.Equal(t, time.Hour, SchedulerConfig{}.EffectiveCadence())
	assert.Equal(t, 10*time.Minute, SchedulerConfig{Cadence: 10 * time.Minute}.EffectiveCadence())
}

func TestChannelSet(t *testing.T) {
	set := ChannelSet{Email: true}
	assert.True(t, set.Has(ChannelEmail))
	assert.False(t, set.Has(ChannelWhatsApp))

	set = set.With(ChannelWhatsApp, true).With(ChannelEmail, false)
	assert.False(t, set.Has(ChannelEmail))
	assert.True(t, set.Has(ChannelWhatsApp))
	assert.True(t, set.Any())
	assert.False(t, ChannelSet{}.Any())
}
