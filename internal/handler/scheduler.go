package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/internal/scheduler"
	customError "github.com/segyhp/loan-servicing/pkg/errors"
	"github.com/segyhp/loan-servicing/pkg/response"
)

// ReminderScheduler is the control surface of the reminder scheduler.
type ReminderScheduler interface {
	Start(cfg domain.SchedulerConfig) error
	Stop()
	Status() domain.SchedulerStatus
	CheckNow(ctx context.Context) <-chan scheduler.CycleOutcome
}

// StartSchedulerRequest selects a trigger mode. Durations use Go syntax
// ("30s", "15m"). An empty body starts the configured default.
type StartSchedulerRequest struct {
	Mode       domain.TriggerMode `json:"mode" validate:"required,oneof=interval daily_fixed_time custom_days"`
	Interval   string             `json:"interval,omitempty"`
	TimeOfDay  string             `json:"time_of_day,omitempty"`
	CustomDays []int              `json:"custom_days,omitempty" validate:"omitempty,dive,gte=-365,lte=365"`
	Cadence    string             `json:"cadence,omitempty"`
	Channels   *domain.ChannelSet `json:"channels,omitempty"`
}

func (r *StartSchedulerRequest) toConfig(defaults domain.SchedulerConfig) (domain.SchedulerConfig, error) {
	cfg := domain.SchedulerConfig{
		Mode:       r.Mode,
		TimeOfDay:  r.TimeOfDay,
		CustomDays: r.CustomDays,
		Channels:   defaults.Channels,
	}
	if r.Channels != nil {
		cfg.Channels = *r.Channels
	}
	var err error
	if r.Interval != "" {
		if cfg.Interval, err = time.ParseDuration(r.Interval); err != nil {
			return cfg, customError.WrapInvalidSchedulerConfig("interval: " + err.Error())
		}
	}
	if r.Cadence != "" {
		if cfg.Cadence, err = time.ParseDuration(r.Cadence); err != nil {
			return cfg, customError.WrapInvalidSchedulerConfig("cadence: " + err.Error())
		}
	}
	return cfg, nil
}

const defaultCheckNowWait = 20 * time.Second

type SchedulerHandler struct {
	scheduler    ReminderScheduler
	defaults     domain.SchedulerConfig
	checkNowWait time.Duration
	validator    *validator.Validate
	logger       logrus.FieldLogger
}

// NewSchedulerHandler builds the scheduler endpoints. checkNowWait is how long
// check-now holds the request before answering 202; keep it below the server
// write timeout.
func NewSchedulerHandler(s ReminderScheduler, defaults domain.SchedulerConfig, checkNowWait time.Duration, logger logrus.FieldLogger) *SchedulerHandler {
	if checkNowWait <= 0 {
		checkNowWait = defaultCheckNowWait
	}
	return &SchedulerHandler{
		scheduler:    s,
		defaults:     defaults,
		checkNowWait: checkNowWait,
		validator:    NewValidator(),
		logger:       logger,
	}
}

// Start handles POST /api/v1/scheduler/start
func (h *SchedulerHandler) Start(w http.ResponseWriter, r *http.Request) {
	cfg := h.defaults

	var request StartSchedulerRequest
	err := json.NewDecoder(r.Body).Decode(&request)
	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		response.BadRequest(w, "Invalid request body", err)
		return
	default:
		if err := h.validator.Struct(&request); err != nil {
			response.BadRequest(w, "Validation failed", err)
			return
		}
		if cfg, err = request.toConfig(h.defaults); err != nil {
			writeError(w, err, "")
			return
		}
	}

	if err := h.scheduler.Start(cfg); err != nil {
		writeError(w, err, "")
		return
	}
	response.Success(w, h.scheduler.Status())
}

// Stop handles POST /api/v1/scheduler/stop
func (h *SchedulerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	response.Success(w, h.scheduler.Status())
}

// Status handles GET /api/v1/scheduler/status
func (h *SchedulerHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.scheduler.Status())
}

// CheckNow handles POST /api/v1/scheduler/check-now. It returns the cycle
// summary, or 202 when the cycle outlasts checkNowWait. The cycle keeps
// running either way and its summary shows up in the status endpoint.
func (h *SchedulerHandler) CheckNow(w http.ResponseWriter, r *http.Request) {
	done := h.scheduler.CheckNow(context.WithoutCancel(r.Context()))

	timer := time.NewTimer(h.checkNowWait)
	defer timer.Stop()

	select {
	case outcome, ok := <-done:
		if !ok {
			response.InternalServerError(w, "Reminder check ended without a result", nil)
			return
		}
		if outcome.Err != nil {
			h.logger.WithError(outcome.Err).Warn("Manual reminder check failed")
			if outcome.Summary != nil && customError.CodeOf(outcome.Err) == customError.ErrCodeCycleFetchFailed {
				response.JSON(w, http.StatusServiceUnavailable, outcome.Summary)
				return
			}
			writeError(w, outcome.Err, "")
			return
		}
		response.Success(w, outcome.Summary)
	case <-timer.C:
		h.logger.WithField("wait", h.checkNowWait.String()).Info("Manual reminder check still running, answering 202")
		response.Accepted(w, "Reminder check still running, see /api/v1/scheduler/status")
	case <-r.Context().Done():
		h.logger.Info("Client left before the manual reminder check finished")
	}
}
