package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/pkg/utils"
)

// FindDueReminders returns the enabled rules that fire today for an
// installment due on dueDate, in input order. Days are compared as calendar
// dates; the time of day is ignored. The result depends only on its inputs.
func FindDueReminders(dueDate, today time.Time, rules []*domain.ReminderSchedule) []domain.DueReminder {
	daysUntilDue := utils.DaysBetween(today, dueDate)

	var matches []domain.DueReminder
	for _, rule := range rules {
		if rule == nil || !rule.Enabled {
			continue
		}
		if ruleFires(rule, daysUntilDue) {
			matches = append(matches, domain.DueReminder{Rule: rule, DaysUntilDue: daysUntilDue})
		}
	}
	return matches
}

func ruleFires(rule *domain.ReminderSchedule, daysUntilDue int) bool {
	switch rule.Direction {
	case domain.DirectionBeforeDue:
		return daysUntilDue > 0 && daysUntilDue == rule.OffsetDays
	case domain.DirectionOnDue:
		return daysUntilDue == 0
	case domain.DirectionAfterDue:
		return daysUntilDue < 0 && -daysUntilDue == rule.OffsetDays
	}
	return false
}

// SelectByPriority keeps at most one rule per channel: the highest priority
// matching rule owns the channel, ties going to the earlier match. Rules left
// without channels are dropped. Returned rules are copies with their channel
// flags narrowed; the inputs are not modified.
func SelectByPriority(matches []domain.DueReminder) []domain.DueReminder {
	order := make([]int, len(matches))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return matches[order[a]].Rule.Priority > matches[order[b]].Rule.Priority
	})

	owned := make(map[int]domain.ChannelSet, len(matches))
	taken := domain.ChannelSet{}
	for _, idx := range order {
		var set domain.ChannelSet
		for _, ch := range domain.Channels {
			if matches[idx].Rule.Channels.Has(ch) && !taken.Has(ch) {
				set = set.With(ch, true)
				taken = taken.With(ch, true)
			}
		}
		owned[idx] = set
	}

	var out []domain.DueReminder
	for i, m := range matches {
		set := owned[i]
		if !set.Any() {
			continue
		}
		rule := *m.Rule
		rule.Channels = set
		out = append(out, domain.DueReminder{Rule: &rule, DaysUntilDue: m.DaysUntilDue})
	}
	return out
}

// customDaysNamespace scopes the ids of rules synthesised from day offsets so
// they stay stable across cycles and restarts.
var customDaysNamespace = uuid.MustParse("6f1c8a52-8c1e-4d8f-9a57-2f0f3c6b9d11")

// RulesFromOffsets builds enabled rules from signed day offsets: positive
// means days before the due date, zero the due date, negative days overdue.
func RulesFromOffsets(days []int, channels domain.ChannelSet) []*domain.ReminderSchedule {
	rules := make([]*domain.ReminderSchedule, 0, len(days))
	seen := make(map[int]bool, len(days))
	for _, day := range days {
		if seen[day] {
			continue
		}
		seen[day] = true

		rule := &domain.ReminderSchedule{
			Enabled:  true,
			Channels: channels,
		}
		switch {
		case day > 0:
			rule.Direction = domain.DirectionBeforeDue
			rule.OffsetDays = day
			rule.Name = fmt.Sprintf("%d days before due", day)
		case day == 0:
			rule.Direction = domain.DirectionOnDue
			rule.Name = "Due today"
		default:
			rule.Direction = domain.DirectionAfterDue
			rule.OffsetDays = -day
			rule.Name = fmt.Sprintf("%d days overdue", -day)
		}
		rule.ID = uuid.NewSHA1(customDaysNamespace, []byte(fmt.Sprintf("%s:%d", rule.Direction, rule.OffsetDays)))
		rules = append(rules, rule)
	}
	return rules
}
