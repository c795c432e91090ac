package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/internal/metrics"
	"github.com/segyhp/loan-servicing/internal/repository"
	customError "github.com/segyhp/loan-servicing/pkg/errors"
	"github.com/segyhp/loan-servicing/pkg/utils"
)

// ReminderDispatcher sends one matched reminder on all of its channels.
type ReminderDispatcher interface {
	DispatchReminder(ctx context.Context, payment *domain.PendingPayment, due domain.DueReminder) DispatchOutcome
}

// CycleOptions adjusts a single cycle.
type CycleOptions struct {
	// Rules replaces the configured rules when non-nil, e.g. rules built from
	// custom day offsets.
	Rules []*domain.ReminderSchedule
}

// ReminderService runs reminder cycles: fetch pending installments, evaluate
// the rules against today, dispatch what fires.
type ReminderService struct {
	installments  repository.InstallmentRepository
	rules         repository.ReminderRuleRepository
	dispatcher    ReminderDispatcher
	clock         utils.Clock
	dispatchDelay time.Duration
	onePerChannel bool
	metrics       *metrics.Metrics
	logger        logrus.FieldLogger
}

type ReminderServiceConfig struct {
	// DispatchDelay is the minimum spacing between two dispatches of a cycle.
	DispatchDelay time.Duration

	// OnePerChannel keeps only the highest priority rule per channel and payment.
	OnePerChannel bool

	Clock   utils.Clock
	Metrics *metrics.Metrics
}

func NewReminderService(
	installments repository.InstallmentRepository,
	rules repository.ReminderRuleRepository,
	dispatcher ReminderDispatcher,
	cfg ReminderServiceConfig,
	logger logrus.FieldLogger,
) *ReminderService {
	clock := cfg.Clock
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &ReminderService{
		installments:  installments,
		rules:         rules,
		dispatcher:    dispatcher,
		clock:         clock,
		dispatchDelay: cfg.DispatchDelay,
		onePerChannel: cfg.OnePerChannel,
		metrics:       cfg.Metrics,
		logger:        logger,
	}
}

// RunCycle performs one evaluation cycle. The returned error is only set
// when the cycle could not load its inputs or ctx ended mid-cycle;
// per-payment problems are logged and counted in the summary.
func (s *ReminderService) RunCycle(ctx context.Context, opts CycleOptions) (summary *domain.CycleSummary, err error) {
	summary = &domain.CycleSummary{StartedAt: s.clock.Now()}
	defer func() {
		summary.FinishedAt = s.clock.Now()
		if err != nil {
			summary.Error = err.Error()
		}
		s.metrics.ObserveCycle(summary)
		s.logger.WithFields(logrus.Fields{
			"scanned":    summary.Scanned,
			"skipped":    summary.Skipped,
			"matched":    summary.Matched,
			"sent":       summary.Sent,
			"failed":     summary.Failed,
			"suppressed": summary.Suppressed,
			"duration":   summary.FinishedAt.Sub(summary.StartedAt).String(),
		}).Info("Reminder cycle finished")
	}()

	rules := opts.Rules
	if rules == nil {
		rules, err = s.rules.FindEnabled(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Failed to load reminder rules")
			return summary, customError.WrapCycleFetch("reminder rules", err)
		}
	}
	if len(rules) == 0 {
		s.logger.Info("No enabled reminder rules, nothing to do")
		return summary, nil
	}

	today := s.clock.Now()
	payments, err := s.installments.FindPending(ctx, pendingWindow(today, rules))
	if err != nil {
		s.logger.WithError(err).Error("Failed to load pending installments")
		return summary, customError.WrapCycleFetch("pending installments", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if s.dispatchDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.dispatchDelay), 1)
	}

	for _, payment := range payments {
		summary.Scanned++
		if payment == nil {
			summary.Skipped++
			continue
		}
		if verr := payment.Validate(); verr != nil {
			s.logger.WithError(verr).WithField("loan_id", payment.LoanID).Warn("Skipping malformed pending installment")
			summary.Skipped++
			continue
		}

		matches := FindDueReminders(*payment.DueDate, today, rules)
		if s.onePerChannel {
			matches = SelectByPriority(matches)
		}
		if len(matches) == 0 {
			continue
		}
		summary.Matched += len(matches)

		if werr := s.processPayment(ctx, limiter, payment, matches, summary); werr != nil {
			s.logger.WithError(werr).Warn("Reminder cycle interrupted")
			return summary, werr
		}
	}

	return summary, nil
}

// processPayment dispatches every match of one payment. A panic is contained
// to the payment; only a cancelled context is returned.
func (s *ReminderService) processPayment(ctx context.Context, limiter *rate.Limiter, payment *domain.PendingPayment, matches []domain.DueReminder, summary *domain.CycleSummary) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"loan_id":        payment.LoanID,
				"installment_id": payment.InstallmentID,
				"panic":          fmt.Sprint(r),
			}).Error("Recovered from panic while dispatching reminders")
		}
	}()

	for _, due := range matches {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		outcome := s.dispatcher.DispatchReminder(ctx, payment, due)
		summary.Sent += outcome.Sent()
		summary.Failed += outcome.Failed()
		summary.Suppressed += outcome.Suppressed
	}
	return nil
}

// pendingWindow limits the fetch to installments some rule can still fire
// for. It is one day wider on each side so DATE columns compared against a
// zoned instant never fall off the edge; the evaluator does the exact match.
func pendingWindow(today time.Time, rules []*domain.ReminderSchedule) domain.PendingFilter {
	maxBefore, maxAfter := 0, 0
	for _, r := range rules {
		switch r.Direction {
		case domain.DirectionBeforeDue:
			maxBefore = max(maxBefore, r.OffsetDays)
		case domain.DirectionAfterDue:
			maxAfter = max(maxAfter, r.OffsetDays)
		}
	}
	day := utils.TruncateToDay(today)
	after := day.AddDate(0, 0, -maxAfter-1)
	before := day.AddDate(0, 0, maxBefore+1)
	return domain.PendingFilter{DueAfter: &after, DueBefore: &before}
}
