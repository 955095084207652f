package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"fault-dashboard/internal/service"
)

const (
	msgInternalError    = "Internal server error"
	msgFaultNotFound    = "Fault report not found"
	msgFileNotFound     = "File not found"
	msgInvalidFileName  = "Invalid filename"
	msgInvalidJSON      = "Invalid JSON in request body"
	msgBodyTooLarge     = "Request entity too large"
	msgFileValidation   = "File validation failed"
	msgMalformedRequest = "Malformed request body"
)

// envelope - общий формат ответа API.
type envelope struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	Data     any      `json:"data,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	// Error заполняется только в режиме development.
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string, errs []string) {
	writeJSON(w, status, envelope{Success: false, Message: message, Errors: errs})
}

// writeError переводит ошибку сервиса в HTTP-ответ.
// notFound - сообщение для ErrNotFound, зависит от ресурса.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var (
		validationErr *service.ValidationError
		fileErr       *service.FileValidationError
	)
	switch {
	case errors.As(err, &validationErr):
		writeFailure(w, http.StatusBadRequest, validationErr.Message, validationErr.Errors)
	case errors.As(err, &fileErr):
		writeFailure(w, http.StatusBadRequest, msgFileValidation, fileErr.Errors)
	case errors.Is(err, service.ErrInvalidFileName):
		writeFailure(w, http.StatusBadRequest, msgInvalidFileName, nil)
	case errors.Is(err, service.ErrNotFound):
		writeFailure(w, http.StatusNotFound, notFound, nil)
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Bool("store_unavailable", errors.Is(err, service.ErrStoreUnavailable)),
			zap.Error(err))
		body := envelope{Success: false, Message: msgInternalError}
		if h.dev {
			body.Error = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, body)
	}
}

// writeDeleted отвечает на успешное удаление. Частичный сбой очистки
// возвращается как предупреждения при статусе 200.
func (h *handler) writeDeleted(w http.ResponseWriter, r *http.Request, err error, message, notFound string) {
	var cleanupErr *service.CleanupError
	if errors.As(err, &cleanupErr) {
		h.logger.Warn("deleted with leftover files", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Warnings: cleanupErr.Warnings()})
		return
	}
	if err != nil {
		h.writeError(w, r, err, notFound)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message})
}
