package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/internal/metrics"
	"github.com/segyhp/loan-servicing/internal/service"
	customError "github.com/segyhp/loan-servicing/pkg/errors"
	"github.com/segyhp/loan-servicing/pkg/utils"
)

// CycleRunner runs one reminder cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, opts service.CycleOptions) (*domain.CycleSummary, error)
}

// CycleOutcome is delivered once a CheckNow cycle has finished.
type CycleOutcome struct {
	Summary *domain.CycleSummary
	Err     error
}

// Scheduler owns at most one active cron trigger. Start and Stop serialize on
// a mutex so replacing a trigger never leaves the old one firing.
type Scheduler struct {
	runner   CycleRunner
	location *time.Location
	clock    utils.Clock
	metrics  *metrics.Metrics
	logger   logrus.FieldLogger

	mu        sync.Mutex
	cron      *cron.Cron
	config    *domain.SchedulerConfig
	startedAt time.Time

	stateMu    sync.RWMutex
	lastCycle  *domain.CycleSummary
	lastRunDay string

	inflight sync.WaitGroup
}

type Option func(*Scheduler)

// WithLocation sets the time zone daily triggers and day boundaries use.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithClock(c utils.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New creates a stopped scheduler.
func New(runner CycleRunner, logger logrus.FieldLogger, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		location: time.Local,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = utils.SystemClock{Location: s.location}
	}
	return s
}

// Start activates a trigger for cfg, replacing the running one if any.
func (s *Scheduler) Start(cfg domain.SchedulerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cronLogger := cron.PrintfLogger(s.logger)
	c := cron.New(cron.WithLocation(s.location), cron.WithLogger(cronLogger))
	chain := cron.NewChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))
	opts := cycleOptions(cfg)

	var (
		job       cron.Job
		immediate bool
	)
	switch cfg.Mode {
	case domain.TriggerInterval:
		job = chain.Then(cron.FuncJob(func() { s.runCycle(opts) }))
		c.Schedule(cron.Every(cfg.Interval), job)
		immediate = true
	case domain.TriggerDailyFixedTime:
		hour, minute, _ := domain.ParseTimeOfDay(cfg.TimeOfDay)
		job = chain.Then(cron.FuncJob(func() { s.runCycle(opts) }))
		if _, err := c.AddJob(fmt.Sprintf("%d %d * * *", minute, hour), job); err != nil {
			return customError.WrapInvalidSchedulerConfig(err.Error())
		}
	case domain.TriggerCustomDays:
		job = chain.Then(cron.FuncJob(func() { s.runDailyCycle(opts) }))
		c.Schedule(cron.Every(cfg.EffectiveCadence()), job)
		immediate = true
	}

	if s.cron != nil {
		s.logger.WithField("mode", s.config.Mode).Info("Replacing running reminder trigger")
		s.cron.Stop()
	}

	s.stateMu.Lock()
	s.lastRunDay = ""
	s.stateMu.Unlock()

	c.Start()
	if immediate {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			job.Run()
		}()
	}

	s.cron = c
	s.config = &cfg
	s.startedAt = s.clock.Now()
	s.metrics.SetSchedulerRunning(true)

	s.logger.WithFields(logrus.Fields{
		"mode":     cfg.Mode,
		"interval": cfg.Interval.String(),
		"time":     cfg.TimeOfDay,
		"days":     cfg.CustomDays,
		"location": s.location.String(),
	}).Info("Reminder scheduler started")
	return nil
}

// Stop cancels future firings. A cycle already running finishes on its own.
// Stopping a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.stop()
}

// stop returns a context that is done once the jobs cron had already started
// have returned.
func (s *Scheduler) stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	jobsDone := s.cron.Stop()
	s.cron = nil
	s.config = nil
	s.startedAt = time.Time{}
	s.metrics.SetSchedulerRunning(false)
	s.logger.Info("Reminder scheduler stopped")
	return jobsDone
}

// Shutdown stops the scheduler and waits for running cycles until ctx ends.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	jobsDone := s.stop()

	done := make(chan struct{})
	go func() {
		if jobsDone != nil {
			<-jobsDone.Done()
		}
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the scheduler state without changing it.
func (s *Scheduler) Status() domain.SchedulerStatus {
	s.mu.Lock()
	status := domain.SchedulerStatus{Running: s.cron != nil}
	if s.cron != nil {
		cfg := *s.config
		startedAt := s.startedAt
		status.Config = &cfg
		status.StartedAt = &startedAt
		for _, entry := range s.cron.Entries() {
			if entry.Next.IsZero() {
				continue
			}
			next := entry.Next
			if status.NextRun == nil || next.Before(*status.NextRun) {
				status.NextRun = &next
			}
		}
	}
	s.mu.Unlock()

	s.stateMu.RLock()
	if s.lastCycle != nil {
		last := *s.lastCycle
		status.LastCycle = &last
	}
	s.stateMu.RUnlock()
	return status
}

// CheckNow runs one cycle right away, whether or not the scheduler is
// running. The channel receives the outcome when the cycle is done.
func (s *Scheduler) CheckNow(ctx context.Context) <-chan CycleOutcome {
	s.mu.Lock()
	var opts service.CycleOptions
	if s.config != nil {
		opts = cycleOptions(*s.config)
	}
	s.mu.Unlock()

	out := make(chan CycleOutcome, 1)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithField("panic", fmt.Sprint(r)).Error("Recovered from panic in manual reminder cycle")
				out <- CycleOutcome{Err: fmt.Errorf("reminder cycle panicked: %v", r)}
			}
		}()

		s.logger.Info("Manual reminder check triggered")
		summary, err := s.runner.RunCycle(ctx, opts)
		s.recordCycle(summary)
		out <- CycleOutcome{Summary: summary, Err: err}
	}()
	return out
}

// LastCycle returns the summary of the most recent finished cycle.
func (s *Scheduler) LastCycle() *domain.CycleSummary {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastCycle
}

func (s *Scheduler) runCycle(opts service.CycleOptions) (*domain.CycleSummary, error) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	summary, err := s.runner.RunCycle(context.Background(), opts)
	s.recordCycle(summary)
	if err != nil {
		s.logger.WithError(err).Error("Reminder cycle failed")
	}
	return summary, err
}

// runDailyCycle backs custom_days mode: it wakes on the cadence but runs at
// most one successful cycle per calendar day, so a late start or a failed
// fetch is caught up on the next wake without repeating reminders.
func (s *Scheduler) runDailyCycle(opts service.CycleOptions) {
	day := s.clock.Now().In(s.location).Format(utils.DateLayout)

	s.stateMu.RLock()
	done := s.lastRunDay == day
	s.stateMu.RUnlock()
	if done {
		return
	}

	if _, err := s.runCycle(opts); err != nil {
		return
	}
	s.stateMu.Lock()
	s.lastRunDay = day
	s.stateMu.Unlock()
}

func (s *Scheduler) recordCycle(summary *domain.CycleSummary) {
	if summary == nil {
		return
	}
	s.stateMu.Lock()
	s.lastCycle = summary
	s.stateMu.Unlock()
}

func cycleOptions(cfg domain.SchedulerConfig) service.CycleOptions {
	if cfg.Mode != domain.TriggerCustomDays {
		return service.CycleOptions{}
	}
	return service.CycleOptions{Rules: service.RulesFromOffsets(cfg.CustomDays, cfg.Channels)}
}
