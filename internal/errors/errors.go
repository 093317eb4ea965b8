// Package errors defines stable error codes for the Ragex AI gateway.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all gateway failure modes
type ErrorCode string

const (
	// ProviderError indicates the AI provider returned a transport or HTTP error
	ProviderError ErrorCode = "PROVIDER_ERROR"
	// ProviderTimeout indicates the AI provider call exceeded its deadline
	ProviderTimeout ErrorCode = "PROVIDER_TIMEOUT"
	// RateLimitMinute indicates the per-minute request quota is exhausted
	RateLimitMinute ErrorCode = "RATE_LIMIT_MINUTE"
	// RateLimitHour indicates the per-hour request quota is exhausted
	RateLimitHour ErrorCode = "RATE_LIMIT_HOUR"
	// RateLimitDayTokens indicates the per-day token quota is exhausted
	RateLimitDayTokens ErrorCode = "RATE_LIMIT_DAY_TOKENS"
	// NoRetrievalResults indicates the retrieval engine found no matches.
	// Distinct from ProviderError so callers can fall back to an
	// un-grounded direct provider call.
	NoRetrievalResults ErrorCode = "NO_RETRIEVAL_RESULTS"
	// FeatureDisabled indicates the AI feature is switched off by configuration
	FeatureDisabled ErrorCode = "FEATURE_DISABLED"
	// MissingCredential indicates a provider has no usable credential
	MissingCredential ErrorCode = "MISSING_CREDENTIAL"
	// UnknownProvider indicates no provider is registered under the requested name
	UnknownProvider ErrorCode = "UNKNOWN_PROVIDER"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// GatewayError represents a gateway error with code, message, and optional details
type GatewayError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new GatewayError
func New(code ErrorCode, message string, cause error) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new GatewayError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *GatewayError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *GatewayError) WithDetails(details interface{}) *GatewayError {
	e.Details = details
	return e
}

// CodeOf returns the gateway error code carried by err, or InternalError
// when err is not a GatewayError.
func CodeOf(err error) ErrorCode {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return InternalError
}

// IsCode reports whether err carries the given gateway error code.
func IsCode(err error, code ErrorCode) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Code == code
}

// IsRateLimit reports whether err is any of the rate-limit tiers.
func IsRateLimit(err error) bool {
	switch CodeOf(err) {
	case RateLimitMinute, RateLimitHour, RateLimitDayTokens:
		return true
	}
	return false
}
