package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"

	// Signature errors (SIGNATURE_*)
	ErrorCodeSignatureMissing   ErrorCode = "SIGNATURE_MISSING"
	ErrorCodeSignatureInvalid   ErrorCode = "SIGNATURE_INVALID"
	ErrorCodeSignatureMalformed ErrorCode = "SIGNATURE_MALFORMED"

	// State query errors (STATE_*)
	ErrorCodeStateNotFound ErrorCode = "STATE_NOT_FOUND"

	// Transport errors (TRANSPORT_*)
	ErrorCodeTransportError ErrorCode = "TRANSPORT_ERROR"

	// Storage errors (STORE_*)
	ErrorCodeStoreError       ErrorCode = "STORE_ERROR"
	ErrorCodeStoreReserveLost ErrorCode = "STORE_RESERVE_LOST"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	return GetErrorCode(err) == ErrorCodeStateNotFound
}

// IsSignatureError checks if an error is a signature verification error
func IsSignatureError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeSignatureMissing ||
		code == ErrorCodeSignatureInvalid ||
		code == ErrorCodeSignatureMalformed
}

// IsTransportError checks if an error means the downstream service was unreachable
func IsTransportError(err error) bool {
	return GetErrorCode(err) == ErrorCodeTransportError
}

// Structured error instances
var (
	ErrStateNotFound = NewDomainError(ErrorCodeStateNotFound, "no payment state for reference")

	ErrSignatureMissing   = NewDomainError(ErrorCodeSignatureMissing, "missing X-Signature header")
	ErrSignatureInvalid   = NewDomainError(ErrorCodeSignatureInvalid, "invalid signature")
	ErrSignatureMalformed = NewDomainError(ErrorCodeSignatureMalformed, "malformed signature encoding")

	ErrReserveLost = NewDomainError(ErrorCodeStoreReserveLost, "idempotency reservation abandoned by winner")
)
