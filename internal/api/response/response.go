// Package response writes the JSON envelopes of the REST API.
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/tradebot/internal/core"
)

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

var now = func() time.Time { return time.Now().UTC() }

func write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, SuccessResponse{Success: true, Data: data, Timestamp: now()})
}

// Message writes a success response with data and a human readable message.
func Message(w http.ResponseWriter, status int, data any, msg string) {
	write(w, status, SuccessResponse{Success: true, Data: data, Message: msg, Timestamp: now()})
}

// Detail describes err for a client. Errors that are not *core.Error are
// reported as INTERNAL_ERROR without their text.
func Detail(err error) ErrorDetail {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}
	return detail
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, err error) {
	write(w, status, ErrorResponse{Error: Detail(err), Timestamp: now()})
}

// Fail writes err with the status its code maps to.
func Fail(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err)
}

var statusByCode = map[string]int{
	core.ErrSymbolNotFound.Code:    http.StatusNotFound,
	core.ErrTradeNotFound.Code:     http.StatusNotFound,
	core.ErrNoData.Code:            http.StatusNotFound,
	core.ErrInvalidRequest.Code:    http.StatusBadRequest,
	core.ErrConfigInvalid.Code:     http.StatusBadRequest,
	core.ErrUnknownEvent.Code:      http.StatusBadRequest,
	core.ErrInsufficientData.Code:  http.StatusUnprocessableEntity,
	core.ErrTradeClosed.Code:       http.StatusConflict,
	core.ErrBotAlreadyRunning.Code: http.StatusConflict,
	core.ErrBotNotRunning.Code:     http.StatusConflict,
	core.ErrRiskRejected.Code:      http.StatusUnprocessableEntity,
	core.ErrInsufficientFunds.Code: http.StatusUnprocessableEntity,
	core.ErrUnauthorized.Code:      http.StatusUnauthorized,
	core.ErrExchangeFailed.Code:    http.StatusBadGateway,
	core.ErrOrderFailed.Code:       http.StatusBadGateway,
	core.ErrExchangeTimeout.Code:   http.StatusGatewayTimeout,
	core.ErrConfigMissing.Code:     http.StatusServiceUnavailable,
}

// StatusFor maps an error to its HTTP status, 500 when unknown.
func StatusFor(err error) int {
	if status, ok := statusByCode[core.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Decode reads a JSON request body into dest, wrapping failures as INVALID_REQUEST.
func Decode(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return core.WrapError(core.ErrInvalidRequest, errors.New("request body is required"))
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return core.WrapError(core.ErrInvalidRequest, err)
	}
	return nil
}
