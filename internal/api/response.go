package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Fleet/internal/catalog"
	"github.com/shaiso/Fleet/internal/repo"
	"github.com/shaiso/Fleet/internal/state"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// DataResponse — тело успешного ответа.
type DataResponse struct {
	Data  any `json:"data"`
	Total int `json:"total,omitempty"`
}

// errorClass — HTTP статус и код для класса ошибок.
type errorClass struct {
	targets []error
	status  int
	code    ErrorCode
}

// errorClasses — соответствие ошибок хранилищ и каталога ответам API.
// Проверяются по порядку, первое совпадение побеждает.
var errorClasses = []errorClass{
	{
		targets: []error{repo.ErrNotFound, state.ErrNotFound, catalog.ErrWorkflowNotFound},
		status:  http.StatusNotFound,
		code:    ErrCodeNotFound,
	},
	{
		targets: []error{repo.ErrInvalidState},
		status:  http.StatusUnprocessableEntity,
		code:    ErrCodeInvalidState,
	},
}

// classify возвращает статус и код для err. Неизвестные ошибки — 500.
func classify(err error) (int, ErrorCode) {
	for _, class := range errorClasses {
		for _, target := range class.targets {
			if errors.Is(err, target) {
				return class.status, class.code
			}
		}
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}

// writeJSON пишет JSON ответ. Ошибка кодирования только логируется:
// заголовок уже отправлен.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}

// respond отправляет 200 с данными.
func (h *Handler) respond(w http.ResponseWriter, data any) {
	writeJSON(w, h.logger, http.StatusOK, DataResponse{Data: data})
}

// respondList отправляет 200 со списком и его размером.
func (h *Handler) respondList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, h.logger, http.StatusOK, DataResponse{Data: data, Total: total})
}

// fail отправляет ответ с ошибкой.
func (h *Handler) fail(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, h.logger, status, ErrorResponse{Error: message, Code: code})
}

// handleError отправляет ответ для err и возвращает true, если err != nil.
//
// message заменяет текст ошибки в ответе (пусто — err.Error()).
// Текст внутренних ошибок наружу не отдаётся.
func (h *Handler) handleError(w http.ResponseWriter, err error, message string) bool {
	if err == nil {
		return false
	}

	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("internal error", "error", err)
		message = "internal server error"
	} else if message == "" {
		message = err.Error()
	}

	h.fail(w, status, code, message)
	return true
}
