package negotiation

import (
	"errors"
	"net/http"
)

// ErrorCode is the typed error enum crossing the HTTP boundary. The
// message next to it is for humans; clients branch on the code.
type ErrorCode string

const (
	CodeInvalidPrice     ErrorCode = "invalid_price"
	CodeNoActiveIntent   ErrorCode = "no_active_intent"
	CodeNotLatestOffer   ErrorCode = "not_latest_offer"
	CodeSelfResponse     ErrorCode = "self_response_forbidden"
	CodeSelfPurchase     ErrorCode = "self_purchase_forbidden"
	CodePriceMismatch    ErrorCode = "price_mismatch"
	CodeNotAgreed        ErrorCode = "not_agreed"
	CodeInvalidCode      ErrorCode = "invalid_code"
	CodeNotParticipant   ErrorCode = "not_participant"
	CodeIntentClosed     ErrorCode = "intent_closed"
	CodeOrderState       ErrorCode = "order_state"
	CodeThreadLocked     ErrorCode = "thread_locked"
	CodeNotFound         ErrorCode = "not_found"
	CodeInternal         ErrorCode = "internal"
)

// Error is a protocol failure with a stable code.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

// E builds a protocol error.
func E(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// CodeOf extracts the protocol code from err, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternal
}

// MessageOf returns the human message for a protocol error, or a
// generic retry hint for anything else so internals never leak.
func MessageOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "something went wrong, please try again"
}

// HTTPStatus maps a protocol code to the status the handlers return.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case CodeInvalidPrice, CodeInvalidCode, CodePriceMismatch, CodeNotAgreed,
		CodeIntentClosed, CodeOrderState, CodeThreadLocked, CodeSelfPurchase:
		return http.StatusBadRequest
	case CodeNotLatestOffer:
		return http.StatusConflict
	case CodeSelfResponse, CodeNotParticipant:
		return http.StatusForbidden
	case CodeNoActiveIntent, CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
