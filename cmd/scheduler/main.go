package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-servicing/internal/app"
	"github.com/segyhp/loan-servicing/internal/config"
	"github.com/segyhp/loan-servicing/internal/logger"
)

// Runs the reminder scheduler without the HTTP API, for deployments that
// keep the worker separate from the server (set SCHEDULER_AUTOSTART=false there).
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	log := logger.New(cfg.Logging)
	log.Info("Starting reminder scheduler...")

	application, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}

	if err := application.StartScheduler(); err != nil {
		log.WithError(err).Fatal("Failed to start reminder scheduler")
	}
	log.WithField("mode", application.Trigger.Mode).Info("Scheduler started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down scheduler...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Scheduler did not stop cleanly")
		os.Exit(1)
	}
	log.Info("Scheduler stopped")
}
