package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/pkg/response"
)

// ListReminderRules handles GET /api/v1/reminder-rules
func (h *LoanHandler) ListReminderRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListReminderRules(r.Context())
	if err != nil {
		writeError(w, err, "")
		return
	}
	response.Success(w, rules)
}

// SaveReminderRule handles PUT /api/v1/reminder-rules and PUT /api/v1/reminder-rules/{ruleId}
func (h *LoanHandler) SaveReminderRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.ReminderSchedule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}
	if raw, ok := mux.Vars(r)["ruleId"]; ok {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "Invalid rule id", err)
			return
		}
		rule.ID = id
	}

	if err := h.validator.Struct(&rule); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	if err := h.service.SaveReminderRule(r.Context(), &rule); err != nil {
		writeError(w, err, "")
		return
	}
	response.Success(w, rule)
}

// ListNotifications handles GET /api/v1/notifications?loan_id=&channel=&success=&limit=
func (h *LoanHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.NotificationFilter{
		LoanID:  query.Get("loan_id"),
		Channel: domain.Channel(query.Get("channel")),
	}

	if filter.Channel != "" {
		switch filter.Channel {
		case domain.ChannelEmail, domain.ChannelWhatsApp, domain.ChannelSMS:
		default:
			response.BadRequest(w, "Unknown channel", nil)
			return
		}
	}
	if raw := query.Get("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(w, "Invalid success filter", err)
			return
		}
		filter.Success = &success
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			response.BadRequest(w, "Invalid limit", err)
			return
		}
		filter.Limit = limit
	}

	results, err := h.service.ListNotifications(r.Context(), filter)
	if err != nil {
		writeError(w, err, "")
		return
	}
	response.Success(w, results)
}
