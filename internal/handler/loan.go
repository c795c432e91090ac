package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/pkg/response"
)

// LoanService is what the loan and reminder configuration endpoints need.
type LoanService interface {
	ApproveApplication(ctx context.Context, request *domain.ApproveLoanRequest) (*domain.Loan, []*domain.Installment, error)
	GetInstallments(ctx context.Context, loanID string) ([]*domain.Installment, error)
	ListReminderRules(ctx context.Context) ([]*domain.ReminderSchedule, error)
	SaveReminderRule(ctx context.Context, rule *domain.ReminderSchedule) error
	ListNotifications(ctx context.Context, filter domain.NotificationFilter) ([]*domain.NotificationResult, error)
}

type LoanHandler struct {
	service   LoanService
	validator *validator.Validate
	logger    logrus.FieldLogger
}

func NewLoanHandler(service LoanService, logger logrus.FieldLogger) *LoanHandler {
	return &LoanHandler{
		service:   service,
		validator: NewValidator(),
		logger:    logger,
	}
}

// ApproveApplication handles POST /api/v1/applications/{applicationId}/approve
func (h *LoanHandler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	var request domain.ApproveLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}
	request.ApplicationID = mux.Vars(r)["applicationId"]

	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	loan, installments, err := h.service.ApproveApplication(r.Context(), &request)
	if err != nil {
		h.logger.WithError(err).WithField("application_id", request.ApplicationID).Warn("Loan approval failed")
		writeError(w, err, "No loan was created: ")
		return
	}

	response.Created(w, domain.ApproveLoanResponse{Loan: loan, Installments: installments})
}

// GetInstallments handles GET /api/v1/loans/{loanId}/installments
func (h *LoanHandler) GetInstallments(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]

	installments, err := h.service.GetInstallments(r.Context(), loanID)
	if err != nil {
		writeError(w, err, "")
		return
	}

	response.Success(w, domain.InstallmentsResponse{LoanID: loanID, Installments: installments})
}
