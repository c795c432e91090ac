package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-servicing/internal/config"
	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/internal/metrics"
	"github.com/segyhp/loan-servicing/internal/notifier"
	"github.com/segyhp/loan-servicing/internal/repository"
	"github.com/segyhp/loan-servicing/internal/scheduler"
	"github.com/segyhp/loan-servicing/internal/service"
	"github.com/segyhp/loan-servicing/pkg/utils"
)

// App holds the wired components shared by the API server and the
// standalone scheduler worker.
type App struct {
	Config    *config.Config
	DB        *sqlx.DB
	Redis     *redis.Client
	Metrics   *metrics.Metrics
	Loans     *service.LoanService
	Reminders *service.ReminderService
	Scheduler *scheduler.Scheduler

	// Trigger is the scheduler configuration read from the environment.
	Trigger domain.SchedulerConfig

	logger logrus.FieldLogger
}

// New connects the stores and wires services, dispatcher and scheduler.
// The scheduler is left stopped.
func New(cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}
	trigger, err := cfg.SchedulerTrigger()
	if err != nil {
		return nil, err
	}

	db, err := initDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	redisClient, err := initRedis(cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	a := &App{
		Config:  cfg,
		DB:      db,
		Redis:   redisClient,
		Metrics: metrics.New(),
		Trigger: trigger,
		logger:  logger,
	}
	a.wire(loc)
	return a, nil
}

func (a *App) wire(loc *time.Location) {
	clock := utils.SystemClock{Location: loc}

	// Initialize repositories
	loanRepo := repository.NewLoanRepository(a.DB)
	applicationRepo := repository.NewApplicationRepository(a.DB)
	installmentRepo := repository.NewInstallmentRepository(a.DB)
	ruleRepo := repository.NewReminderRuleRepository(a.DB)
	notificationLog := repository.NewNotificationLogRepository(a.DB)

	// Initialize dispatcher
	dispatcherOpts := []service.DispatcherOption{
		service.WithClock(clock),
		service.WithMetrics(a.Metrics),
	}
	if a.Redis != nil {
		dispatcherOpts = append(dispatcherOpts,
			service.WithDeliveryGuard(repository.NewRedisDeliveryGuard(a.Redis), a.Config.Scheduler.DedupeTTL))
	} else {
		a.logger.Warn("REDIS_HOST not set, reminders are not de-duplicated across restarts")
	}
	dispatcher := service.NewDispatcher(
		notifier.NewSenders(a.Config.Notification, a.logger),
		notificationLog,
		a.logger,
		dispatcherOpts...,
	)

	// Initialize services
	a.Loans = service.NewLoanService(loanRepo, applicationRepo, installmentRepo, ruleRepo, notificationLog, a.logger,
		service.WithApprovalStore(repository.NewApprovalRepository(a.DB)))
	a.Reminders = service.NewReminderService(installmentRepo, ruleRepo, dispatcher, service.ReminderServiceConfig{
		DispatchDelay: a.Config.Scheduler.DispatchDelay,
		OnePerChannel: a.Config.Scheduler.OnePerChannel,
		Clock:         clock,
		Metrics:       a.Metrics,
	}, a.logger)
	a.Scheduler = scheduler.New(a.Reminders, a.logger,
		scheduler.WithLocation(loc),
		scheduler.WithClock(clock),
		scheduler.WithMetrics(a.Metrics),
	)
}

// StartScheduler starts the configured trigger.
func (a *App) StartScheduler() error {
	if err := a.Scheduler.Start(a.Trigger); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	return nil
}

// Shutdown stops the scheduler, waits for a running cycle within ctx and
// closes the stores.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	return errors.Join(errs...)
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

// initRedis returns nil when no Redis server is configured.
func initRedis(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil
	}
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}), nil
}
