package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"eventstaff/models"

	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1048576

// Handler HTTP-обработчики поверх сервисов проекта, котировок и подбора
type Handler struct {
	Projects   ProjectService
	Quotations QuotationService
	Matches    MatchService
	Log        logrus.FieldLogger
}

// NewHandler создает новый Handler
func NewHandler(projects ProjectService, quotations QuotationService, matches MatchService, log logrus.FieldLogger) *Handler {
	return &Handler{Projects: projects, Quotations: quotations, Matches: matches, Log: log}
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// decodeJSON читает тело с ограничением размера. При ошибке ответ уже отправлен.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError переводит доменные ошибки в HTTP-статусы
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInvalidLocation),
		errors.Is(err, models.ErrNegativeAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrProjectNotFound),
		errors.Is(err, models.ErrTeamMemberNotFound),
		errors.Is(err, models.ErrEquipmentLineNotFound),
		errors.Is(err, models.ErrQuotationNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidStateTransition),
		errors.Is(err, models.ErrQuotationExpired):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Request timed out", http.StatusGatewayTimeout)
	case errors.Is(err, models.ErrRollupUnavailable):
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Project costs are busy, retry later", http.StatusServiceUnavailable)
	default:
		h.Log.WithError(err).WithField("method", r.Method).Error("request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
