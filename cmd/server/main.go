package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/segyhp/loan-servicing/internal/app"
	"github.com/segyhp/loan-servicing/internal/config"
	"github.com/segyhp/loan-servicing/internal/handler"
	"github.com/segyhp/loan-servicing/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	log := logger.New(cfg.Logging)

	application, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}

	if cfg.Scheduler.Autostart {
		if err := application.StartScheduler(); err != nil {
			log.WithError(err).Fatal("Failed to start reminder scheduler")
		}
	}

	// Setup routes
	router := handler.NewRouter(
		handler.NewLoanHandler(application.Loans, log),
		handler.NewSchedulerHandler(application.Scheduler, application.Trigger, cfg.Server.WriteTimeout/2, log),
		handler.NewHealthHandler(application.DB, application.Redis, application.Scheduler, cfg.GetHealthTimeout()),
		application.Metrics.Handler(),
		log,
	)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		serverErr := server.Shutdown(shutdownCtx)
		return errors.Join(serverErr, application.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Server stopped with error")
		os.Exit(1)
	}
	log.Info("Server exited")
}
