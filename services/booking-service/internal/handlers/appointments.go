package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hourbook/hourbook/services/booking-service/internal/model"
	"github.com/hourbook/hourbook/services/booking-service/internal/scheduling"
)

// identityHeader carries the caller's actor id, set by the upstream gateway
// after authentication (which is not this service's concern).
const identityHeader = "X-User-Id"

type AppointmentHandler struct {
	scheduler *scheduling.Service
	logger    *slog.Logger
}

func NewAppointmentHandler(scheduler *scheduling.Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{scheduler: scheduler, logger: logger}
}

type bookRequest struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	ClientID      string `json:"client_id"`
	ProviderID    string `json:"provider_id"`
	Date          string `json:"date"`
	ScheduledAt   string `json:"scheduled_at"`
	Status        string `json:"status"`
	CanceledAt    string `json:"canceled_at,omitempty"`
}

func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clientID := strings.TrimSpace(r.Header.Get(identityHeader))
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", identityHeader+" required")
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "invalid json body")
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.ProviderID == "" || strings.TrimSpace(req.Date) == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", "provider_id and date required")
		return
	}
	requestedAt, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "date must be RFC3339")
		return
	}

	appt, err := h.scheduler.Book(r.Context(), clientID, req.ProviderID, requestedAt)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItem(appt))
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clientID := strings.TrimSpace(r.Header.Get(identityHeader))
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", identityHeader+" required")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "invalid json body")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", "appointment_id required")
		return
	}

	detail, err := h.scheduler.Cancel(r.Context(), clientID, req.AppointmentID)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(detail.Appointment))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clientID := strings.TrimSpace(r.Header.Get(identityHeader))
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", identityHeader+" required")
		return
	}

	page := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}

	appts, err := h.scheduler.ListActive(r.Context(), clientID, page)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toItem(appt))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AppointmentHandler) Available(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if providerID == "" || dateStr == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", "provider_id and date required")
		return
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "date must be YYYY-MM-DD")
		return
	}

	hours, err := h.scheduler.AvailableHours(r.Context(), providerID, day)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}

	out := make([]string, 0, len(hours))
	for _, hr := range hours {
		out = append(out, hr.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, out)
}

func toItem(appt model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID: appt.ID,
		ClientID:      appt.ClientID,
		ProviderID:    appt.ProviderID,
		Date:          appt.RequestedAt.UTC().Format(time.RFC3339),
		ScheduledAt:   appt.ScheduledAt.UTC().Format(time.RFC3339),
		Status:        string(appt.Status()),
	}
	if appt.CanceledAt != nil {
		item.CanceledAt = appt.CanceledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *AppointmentHandler) writeSchedulingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scheduling.ErrNotAProvider):
		writeError(w, http.StatusUnprocessableEntity, "NotAProvider", err.Error())
	case errors.Is(err, scheduling.ErrPastDate):
		writeError(w, http.StatusUnprocessableEntity, "PastDate", err.Error())
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "SlotUnavailable", err.Error())
	case errors.Is(err, scheduling.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
	case errors.Is(err, scheduling.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, scheduling.ErrTooLateToCancel):
		writeError(w, http.StatusUnprocessableEntity, "TooLateToCancel", err.Error())
	case errors.Is(err, scheduling.ErrAlreadyCanceled):
		writeError(w, http.StatusConflict, "AlreadyCanceled", err.Error())
	default:
		h.logger.Error("scheduling operation failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal", "internal error")
	}
}

type errorBody struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Kind: kind, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
