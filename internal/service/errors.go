package service

import (
	"errors"
	"net/http"

	"redux-portal/internal/domain"
)

// Error is a guest-visible failure: an HTTP status class plus the
// reason code that also lands on the audit trail. Internal faults are
// plain errors; handlers render those as opaque 500s.
type Error struct {
	Status  int
	Code    domain.Reason
	Message string
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

// AsError unwraps a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func errNotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: domain.ReasonNotFound, Message: message}
}

func errRateLimited() *Error {
	return &Error{Status: http.StatusTooManyRequests, Code: domain.ReasonRateLimited, Message: "too many requests, slow down"}
}

func errBadRequest(code domain.Reason, message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code, Message: message}
}

// reasonStatus maps a denial reason to its HTTP status class.
func reasonStatus(reason domain.Reason) int {
	switch reason {
	case domain.ReasonInvalidMAC, domain.ReasonInvalidEmail, domain.ReasonInvalidSession,
		domain.ReasonOtpInvalid, domain.ReasonOtpExpired, domain.ReasonOtpLocked:
		return http.StatusBadRequest
	case domain.ReasonNotFound, domain.ReasonVoucherNotFound:
		return http.StatusNotFound
	case domain.ReasonTosOnlyDisabled:
		return http.StatusForbidden
	case domain.ReasonRateLimited:
		return http.StatusTooManyRequests
	case domain.ReasonVoucherDisabled, domain.ReasonVoucherExpired, domain.ReasonVoucherExhausted,
		domain.ReasonClientNotFound, domain.ReasonClientIDMissing:
		return http.StatusConflict
	case domain.ReasonUnifiError, domain.ReasonOidcDiscoveryFailed, domain.ReasonOidcTokenFailed:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func errFromReason(reason domain.Reason, message string) *Error {
	return &Error{Status: reasonStatus(reason), Code: reason, Message: message}
}

// reasonMessage is the guest-facing text per denial code. Upstream
// detail never leaks here.
func reasonMessage(reason domain.Reason) string {
	switch reason {
	case domain.ReasonVoucherNotFound:
		return "voucher code not recognized"
	case domain.ReasonVoucherDisabled:
		return "voucher code is disabled"
	case domain.ReasonVoucherExpired:
		return "voucher code has expired"
	case domain.ReasonVoucherExhausted:
		return "voucher code has no uses left"
	case domain.ReasonOtpExpired:
		return "verification code expired, request a new one"
	case domain.ReasonOtpInvalid:
		return "verification code is incorrect"
	case domain.ReasonOtpLocked:
		return "too many wrong attempts, request a new code"
	case domain.ReasonTosOnlyDisabled:
		return "terms-only access is not enabled for this network"
	case domain.ReasonClientNotFound:
		return "device not visible to the network yet, try again"
	case domain.ReasonClientIDMissing:
		return "device record is incomplete, try again"
	case domain.ReasonUnifiError:
		return "network controller unavailable, try again"
	default:
		return "authorization failed"
	}
}
