// Package respond writes JSON responses and maps scheduling errors to HTTP
// status codes.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/booking-engine/internal/scheduling"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// JSON encodes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// BadRequest writes a 400 with a fixed message.
func BadRequest(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusBadRequest, ErrorBody{Error: msg, Code: "invalid_input"})
}

// Classify maps an error onto status, code and retryability.
func Classify(err error) (int, ErrorBody) {
	body := ErrorBody{Error: err.Error(), Retryable: scheduling.IsRetryable(err)}
	switch {
	case scheduling.IsConflict(err):
		body.Code = "slot_taken"
		return http.StatusConflict, body
	case scheduling.IsInvalid(err):
		body.Code = "invalid_input"
		return http.StatusBadRequest, body
	case errors.Is(err, scheduling.ErrNotFound):
		body.Code = "not_found"
		return http.StatusNotFound, body
	case errors.Is(err, scheduling.ErrInvalidState):
		body.Code = "invalid_state"
		return http.StatusConflict, body
	case errors.Is(err, scheduling.ErrStorageTimeout):
		body.Code = "storage_timeout"
		return http.StatusServiceUnavailable, body
	case scheduling.IsStorage(err):
		body.Code = "storage_unavailable"
		body.Error = "storage temporarily unavailable"
		return http.StatusServiceUnavailable, body
	default:
		body.Code = "internal"
		body.Error = "internal server error"
		return http.StatusInternalServerError, body
	}
}

// Error logs server-side failures and writes the mapped response.
func Error(w http.ResponseWriter, logger *logging.Logger, msg string, err error) {
	status, body := Classify(err)
	if status >= http.StatusInternalServerError {
		if logger == nil {
			logger = logging.Default()
		}
		logger.Error(msg, "error", err, "status", status)
	}
	JSON(w, status, body)
}
