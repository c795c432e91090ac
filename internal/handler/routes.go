package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-servicing/pkg/response"
)

// NewRouter wires every endpoint. metrics may be nil.
func NewRouter(loans *LoanHandler, sched *SchedulerHandler, health *HealthHandler, metrics http.Handler, logger logrus.FieldLogger) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(logger), response.CORSMiddleware)

	// Health check
	router.HandleFunc("/health", health.Health).Methods("GET")
	router.HandleFunc("/health/ready", health.Ready).Methods("GET")
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods("GET")
	}

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(response.JSONMiddleware)

	api.HandleFunc("/applications/{applicationId}/approve", loans.ApproveApplication).Methods("POST")
	api.HandleFunc("/loans/{loanId}/installments", loans.GetInstallments).Methods("GET")

	api.HandleFunc("/reminder-rules", loans.ListReminderRules).Methods("GET")
	api.HandleFunc("/reminder-rules", loans.SaveReminderRule).Methods("PUT")
	api.HandleFunc("/reminder-rules/{ruleId}", loans.SaveReminderRule).Methods("PUT")
	api.HandleFunc("/notifications", loans.ListNotifications).Methods("GET")

	api.HandleFunc("/scheduler/start", sched.Start).Methods("POST")
	api.HandleFunc("/scheduler/stop", sched.Stop).Methods("POST")
	api.HandleFunc("/scheduler/status", sched.Status).Methods("GET")
	api.HandleFunc("/scheduler/check-now", sched.CheckNow).Methods("POST")

	return router
}
