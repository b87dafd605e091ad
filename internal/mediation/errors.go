package mediation

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an adapter failure in the mediation layer's taxonomy
type ErrorCode string

const (
	ErrorCodeInitFailure       ErrorCode = "INIT_FAILURE"
	ErrorCodeNoFill            ErrorCode = "NO_FILL"
	ErrorCodeNetwork           ErrorCode = "NETWORK_ERROR"
	ErrorCodeServer            ErrorCode = "SERVER_ERROR"
	ErrorCodeTimeout           ErrorCode = "TIMEOUT"
	ErrorCodeRateLimited       ErrorCode = "RATE_LIMITED"
	ErrorCodeShowInProgress    ErrorCode = "SHOW_IN_PROGRESS"
	ErrorCodeAdNotReady        ErrorCode = "AD_NOT_READY"
	ErrorCodeAdNotFound        ErrorCode = "AD_NOT_FOUND"
	ErrorCodeWrongResource     ErrorCode = "WRONG_RESOURCE_TYPE"
	ErrorCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_AD_FORMAT"
	// ErrorCodePartner is the catch-all classification for partner
	// failures with no more specific mapping
	ErrorCodePartner ErrorCode = "PARTNER_ERROR"
)

// AdError is a classified adapter error. PartnerCode carries the raw
// partner error code when the failure originated at the partner boundary,
// zero otherwise.
type AdError struct {
	Code        ErrorCode
	Message     string
	PartnerCode int
	Cause       error
}

func (e *AdError) Error() string {
	if e.PartnerCode != 0 {
		return fmt.Sprintf("[%s] %s (partner code %d)", e.Code, e.Message, e.PartnerCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AdError) Unwrap() error {
	return e.Cause
}

// NewAdError creates a classified error with no partner origin
func NewAdError(code ErrorCode, message string) *AdError {
	return &AdError{Code: code, Message: message}
}

// WrapAdError creates a classified error wrapping an underlying cause
func WrapAdError(code ErrorCode, message string, cause error) *AdError {
	return &AdError{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the mediation error code from err. Non-AdError values
// classify as the catch-all partner error.
func CodeOf(err error) ErrorCode {
	var ae *AdError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrorCodePartner
}

// IsCode reports whether err carries the given mediation error code
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
