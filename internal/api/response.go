package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Pipewright/internal/catalog"
	"github.com/shaiso/Pipewright/internal/engine"
	"github.com/shaiso/Pipewright/internal/repo"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeInvalidState    ErrorCode = "INVALID_STATE"
	ErrCodeInternalError   ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidPipeline ErrorCode = "INVALID_PIPELINE"
	ErrCodeInvalidTemplate ErrorCode = "INVALID_TEMPLATE"
	ErrCodeUnavailable     ErrorCode = "UNAVAILABLE"
)

// ErrorResponse — тело ответа с ошибкой: {"error": {"code", "message"}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DataResponse — тело успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — тело ответа со списком.
// Limit и Offset заполняются для постраничных листингов.
type ListResponse struct {
	Data   any `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Success отправляет 200 с данными.
func Success(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created отправляет 201 с созданным ресурсом.
func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, DataResponse{Data: data})
}

// NoContent отправляет 204.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// List отправляет полный список.
func List(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Page отправляет одну страницу списка.
func Page(w http.ResponseWriter, data any, total, limit, offset int) {
	writeJSON(w, http.StatusOK, ListResponse{Data: data, Total: total, Limit: limit, Offset: offset})
}

// Script отправляет текст скрипта как файл filename.nf.
func Script(w http.ResponseWriter, filename, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`.nf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// Conflict отправляет ошибку 409.
func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, ErrCodeConflict, message)
}

// InvalidState отправляет ошибку 422.
func InvalidState(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnprocessableEntity, ErrCodeInvalidState, message)
}

// InternalError логирует ошибку и отправляет 500 без подробностей.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// Unavailable отправляет ошибку 503: функция не настроена в этом развёртывании.
func Unavailable(w http.ResponseWriter, message string) {
	Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// errorStatuses — ошибки хранилища и сборки, у которых есть свой HTTP ответ.
// Проверяются по порядку через errors.Is.
var errorStatuses = []struct {
	target error
	status int
	code   ErrorCode
}{
	{repo.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
	{catalog.ErrTemplateNotFound, http.StatusNotFound, ErrCodeNotFound},
	{repo.ErrAlreadyExists, http.StatusConflict, ErrCodeConflict},
	{repo.ErrInvalidState, http.StatusUnprocessableEntity, ErrCodeInvalidState},
	{catalog.ErrMalformedTemplate, http.StatusBadRequest, ErrCodeInvalidTemplate},
	{engine.ErrTopologySyntax, http.StatusBadRequest, ErrCodeInvalidPipeline},
	{engine.ErrEmptyForkSpec, http.StatusBadRequest, ErrCodeInvalidPipeline},
}

// HandleError преобразует ошибку в HTTP ответ. false — ошибки нет.
// notFoundMsg заменяет текст ошибки repo.ErrNotFound, если не пуст.
// Остальные ошибки — 500.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	for _, e := range errorStatuses {
		if !errors.Is(err, e.target) {
			continue
		}
		msg := err.Error()
		if e.target == repo.ErrNotFound && notFoundMsg != "" {
			msg = notFoundMsg
		}
		Error(w, e.status, e.code, msg)
		return true
	}

	InternalError(w, logger, err)
	return true
}
