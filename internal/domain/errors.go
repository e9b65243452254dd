package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationFeeInvalid   ErrorCode = "VALIDATION_FEE_INVALID"
	ErrorCodeValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrorCodePayloadMalformed       ErrorCode = "VALIDATION_PAYLOAD_MALFORMED"

	// Split Errors (SPLIT_*)
	ErrorCodeSplitConfigInvalid      ErrorCode = "SPLIT_CONFIG_INVALID"
	ErrorCodeMissingRecipientAccount ErrorCode = "SPLIT_MISSING_RECIPIENT_ACCOUNT"

	// Not Found Errors (*_NOT_FOUND)
	ErrorCodeDeliveryNotFound ErrorCode = "DELIVERY_NOT_FOUND"
	ErrorCodePayerNotFound    ErrorCode = "PAYER_NOT_FOUND"
	ErrorCodePaymentNotFound  ErrorCode = "PAYMENT_NOT_FOUND"
	ErrorCodeTaskNotFound     ErrorCode = "TASK_NOT_FOUND"
	ErrorCodeAccountNotFound  ErrorCode = "ACCOUNT_NOT_FOUND"

	// Conflict Errors (CONFLICT_*)
	ErrorCodeActivePaymentConflict ErrorCode = "CONFLICT_ACTIVE_PAYMENT"
	ErrorCodeTaskTerminal          ErrorCode = "CONFLICT_TASK_TERMINAL"
	ErrorCodeInvalidTransition     ErrorCode = "CONFLICT_INVALID_TRANSITION"
	ErrorCodeBatchInFlight         ErrorCode = "CONFLICT_BATCH_IN_FLIGHT"

	// Payment Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayError   ErrorCode = "GATEWAY_ERROR"
	ErrorCodeGatewayTimeout ErrorCode = "GATEWAY_TIMEOUT"

	// Security Errors (SECURITY_*)
	ErrorCodeInvalidSignature ErrorCode = "SECURITY_INVALID_SIGNATURE"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
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

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
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
	code := GetErrorCode(err)
	return code == ErrorCodeDeliveryNotFound ||
		code == ErrorCodePayerNotFound ||
		code == ErrorCodePaymentNotFound ||
		code == ErrorCodeTaskNotFound ||
		code == ErrorCodeAccountNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationFeeInvalid ||
		code == ErrorCodeValidationMissingField ||
		code == ErrorCodePayloadMalformed ||
		code == ErrorCodeSplitConfigInvalid ||
		code == ErrorCodeMissingRecipientAccount
}

// IsConflictError checks if an error is a conflict rejection
func IsConflictError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeActivePaymentConflict ||
		code == ErrorCodeTaskTerminal ||
		code == ErrorCodeInvalidTransition ||
		code == ErrorCodeBatchInFlight
}

// IsGatewayError checks if an error is a payment gateway error
func IsGatewayError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayError || code == ErrorCodeGatewayTimeout
}

// IsSecurityError checks if an error is a webhook security rejection
func IsSecurityError(err error) bool {
	return GetErrorCode(err) == ErrorCodeInvalidSignature
}

// Structured error instances
var (
	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrShippingFeeInvalid      = NewDomainError(ErrorCodeValidationFeeInvalid, "delivery shipping fee must be positive")
	ErrPayloadMalformed        = NewDomainError(ErrorCodePayloadMalformed, "webhook payload is structurally invalid")
	ErrSplitConfigInvalid      = NewDomainError(ErrorCodeSplitConfigInvalid, "configured split percentages exceed 100%")
	ErrMissingRecipientAccount = NewDomainError(ErrorCodeMissingRecipientAccount, "recipient has no payable gateway account")

	ErrDeliveryNotFound = NewDomainError(ErrorCodeDeliveryNotFound, "delivery not found")
	ErrPayerNotFound    = NewDomainError(ErrorCodePayerNotFound, "payer not found")
	ErrPaymentNotFound  = NewDomainError(ErrorCodePaymentNotFound, "payment not found")
	ErrTaskNotFound     = NewDomainError(ErrorCodeTaskNotFound, "task not found")

	ErrActivePaymentConflict = NewDomainError(ErrorCodeActivePaymentConflict, "delivery already has an active payment")
	ErrTaskTerminal          = NewDomainError(ErrorCodeTaskTerminal, "task already reached a terminal state")
	ErrInvalidTransition     = NewDomainError(ErrorCodeInvalidTransition, "payment status transition not allowed")

	ErrGatewayError    = NewDomainError(ErrorCodeGatewayError, "payment gateway error")
	ErrGatewayTimedOut = NewDomainError(ErrorCodeGatewayTimeout, "payment gateway timeout")

	ErrInvalidSignature = NewDomainError(ErrorCodeInvalidSignature, "invalid webhook signature")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
