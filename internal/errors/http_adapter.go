package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTTPErrorAdapter translates MonitorError values into HTTP responses with
// a stable JSON shape: {"error": {"category": ..., "message": ...}}.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates an adapter; a nil logger falls back to slog.Default.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// StatusFor maps an error to an HTTP status code.
func (a *HTTPErrorAdapter) StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	me, ok := err.(*MonitorError)
	if !ok {
		return http.StatusInternalServerError
	}
	switch me.Category {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryConflict:
		return http.StatusConflict
	case CategoryConfig:
		return http.StatusUnprocessableEntity
	case CategoryDaemon:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type httpErrorBody struct {
	Error struct {
		Category string `json:"category"`
		Message  string `json:"message"`
	} `json:"error"`
}

// WriteError writes the error as JSON with the mapped status code.
func (a *HTTPErrorAdapter) WriteError(w http.ResponseWriter, err error) {
	status := a.StatusFor(err)

	var body httpErrorBody
	if me, ok := err.(*MonitorError); ok {
		body.Error.Category = string(me.Category)
		body.Error.Message = me.Message
	} else {
		body.Error.Category = string(CategoryInternal)
		body.Error.Message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err, "status", status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		a.logger.Error("failed to encode error response", "error", encErr)
	}
}
