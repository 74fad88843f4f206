// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps a formatted cause under base's code.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there
// is none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Predefined errors
var (
	// Data errors
	ErrSymbolNotFound = &Error{Code: "SYMBOL_NOT_FOUND", Message: "symbol not found"}
	ErrNoData         = &Error{Code: "NO_DATA", Message: "no data available"}

	// Exchange errors
	ErrExchangeFailed  = &Error{Code: "EXCHANGE_FAILED", Message: "exchange request failed"}
	ErrExchangeTimeout = &Error{Code: "EXCHANGE_TIMEOUT", Message: "exchange request timeout"}

	// Strategy errors
	ErrStrategyFailed   = &Error{Code: "STRATEGY_FAILED", Message: "strategy analysis failed"}
	ErrInsufficientData = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for analysis"}

	// Notifier errors
	ErrNotifierFailed = &Error{Code: "NOTIFIER_FAILED", Message: "notifier failed"}

	// Trading errors
	ErrOrderFailed       = &Error{Code: "ORDER_FAILED", Message: "order failed"}
	ErrTradeNotFound     = &Error{Code: "TRADE_NOT_FOUND", Message: "trade not found"}
	ErrTradeClosed       = &Error{Code: "TRADE_CLOSED", Message: "trade already closed"}
	ErrRiskRejected      = &Error{Code: "RISK_REJECTED", Message: "rejected by risk limits"}
	ErrInsufficientFunds = &Error{Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds"}

	// Bot lifecycle errors
	ErrBotAlreadyRunning = &Error{Code: "BOT_ALREADY_RUNNING", Message: "bot already running"}
	ErrBotNotRunning     = &Error{Code: "BOT_NOT_RUNNING", Message: "bot not running"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// Request errors
	ErrInvalidRequest = &Error{Code: "INVALID_REQUEST", Message: "invalid request"}
	ErrUnknownEvent   = &Error{Code: "UNKNOWN_EVENT", Message: "unknown event type"}
	ErrUnauthorized   = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid api key"}
)
