package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes operation failures reported to callers.
type ErrorCode string

const (
	// CodeInvalidInput indicates a non-positive amount or unsupported currency.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodePhaseMismatch indicates a wager/cashout attempted outside its legal phase.
	CodePhaseMismatch ErrorCode = "PHASE_MISMATCH"

	// CodeDuplicateAction indicates a second wager or cashout in the same round.
	CodeDuplicateAction ErrorCode = "DUPLICATE_ACTION"

	// CodeInsufficientFunds indicates the wallet rejected the debit.
	CodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"

	// CodeNoActiveRound indicates a cashout with no round running.
	CodeNoActiveRound ErrorCode = "NO_ACTIVE_ROUND"

	// CodeNoActiveWager indicates a cashout with nothing wagered this round.
	CodeNoActiveWager ErrorCode = "NO_ACTIVE_WAGER"

	// CodeUpstreamUnavailable indicates a price oracle or wallet backend failure.
	CodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
)

// Error is an operation error with a stable code for transport mapping.
type Error struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the error code from a (possibly wrapped) engine error.
// Returns empty string for non-engine errors.
func CodeOf(err error) ErrorCode {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

func newError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
