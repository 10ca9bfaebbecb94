package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cx-tal-miterani/bus-booking-system/internal/apperror"
)

// Response is the envelope of every JSON reply
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Count   *int        `json:"count,omitempty"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Errors renders failures as envelopes. Diagnostic detail is included only
// in development.
type Errors struct {
	Development bool
	Logger      *zap.Logger
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func respondData(w http.ResponseWriter, status int, data interface{}, message string) {
	respondJSON(w, status, Response{Success: true, Data: data, Message: message})
}

func respondList(w http.ResponseWriter, data interface{}, count int) {
	respondJSON(w, http.StatusOK, Response{Success: true, Data: data, Count: &count})
}

func noCache(w http.ResponseWriter) {
	h := w.Header()
	h.Del("ETag")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindInvalidRequest, apperror.KindAlreadyCancelled:
		return http.StatusBadRequest
	case apperror.KindSeatConflict, apperror.KindInsufficientInventory, apperror.KindTransactionConflict:
		return http.StatusConflict
	case apperror.KindForbidden:
		return http.StatusForbidden
	case apperror.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as an error envelope
func (e Errors) Respond(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = apperror.Storage(err)
	}
	status := StatusFor(appErr.Kind)

	body := Response{Success: false, Message: appErr.Message, Code: string(appErr.Kind)}
	if len(appErr.Seats) > 0 {
		body.Data = map[string]interface{}{"seats": appErr.Seats}
	}
	if e.Development && appErr.Err != nil {
		body.Error = appErr.Err.Error()
	}

	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("code", string(appErr.Kind)),
		zap.Error(errors.Unwrap(appErr)),
	}
	if status >= http.StatusInternalServerError {
		logger.Error(appErr.Message, fields...)
	} else {
		logger.Info(appErr.Message, fields...)
	}

	respondJSON(w, status, body)
}
