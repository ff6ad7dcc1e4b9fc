package game

import "fmt"

// Code classifies an Error per the taxonomy in spec.md §7.
type Code string

const (
	CodeInvalidAmount       Code = "INVALID_AMOUNT"
	CodeUnsupportedCurrency Code = "UNSUPPORTED_CURRENCY"
	CodeInvalidAutoCashout  Code = "INVALID_AUTO_CASHOUT"
	CodeBadRequest          Code = "BAD_REQUEST"
	CodeRoundNotOpen        Code = "ROUND_NOT_OPEN"
	CodeRoundNotRunning     Code = "ROUND_NOT_RUNNING"
	CodeNoActiveBet         Code = "NO_ACTIVE_BET"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeQuoteUnavailable    Code = "QUOTE_UNAVAILABLE"
	CodeStoreTimeout        Code = "STORE_TIMEOUT"
	CodeStoreError          Code = "STORE_ERROR"
	CodeUnauthenticated     Code = "UNAUTHENTICATED"
	CodeRateLimited         Code = "RATE_LIMITED"
)

// Error is the typed error every engine entry point returns instead of
// a success payload (spec.md §7 "every engine entry point returns a
// typed error or a success payload").
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether code belongs to the infrastructure class
// (STORE_TIMEOUT, STORE_ERROR). The engine does not consult it: a failed
// debit or history read is returned to the caller without a retry.
func (c Code) IsRetryable() bool {
	return c == CodeStoreTimeout || c == CodeStoreError
}
