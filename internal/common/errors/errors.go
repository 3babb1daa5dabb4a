// Package errors provides standardized error handling for work item processing.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeCitizenNotFound      ErrorCode = "CITIZEN_NOT_FOUND"
	ErrCodeResourceNotFound     ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeBusinessRule         ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeWorkItem             ErrorCode = "WORK_ITEM_ERROR"
	ErrCodeDuplicateWorkItem    ErrorCode = "DUPLICATE_WORK_ITEM"
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeExternalService      ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout              ErrorCode = "TIMEOUT_ERROR"
	ErrCodeAuthentication       ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeCredentialNotFound   ErrorCode = "CREDENTIAL_NOT_FOUND"
	ErrCodeTrackingFailed       ErrorCode = "TRACKING_FAILED"
	ErrCodeQueueConnection      ErrorCode = "QUEUE_CONNECTION_FAILED"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotificationFailed   ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeConfigurationInvalid ErrorCode = "CONFIGURATION_INVALID"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewCitizenNotFoundError creates a non-retryable lookup error naming the identifier.
func NewCitizenNotFoundError(cpr string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCitizenNotFound,
		Message:   fmt.Sprintf("citizen %s not found", cpr),
		Retryable: false,
		Metadata:  map[string]interface{}{"cpr": cpr},
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkItemError creates a non-retryable error about the work item itself.
func NewWorkItemError(message, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkItem,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateWorkItemError is returned by queue backends when the reference is taken.
func NewDuplicateWorkItemError(reference string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateWorkItem,
		Message:   "Work item already exists",
		Details:   fmt.Sprintf("reference: %s", reference),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationFailedError creates a non-retryable payload validation error.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Work item validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewCredentialNotFoundError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCredentialNotFound,
		Message:   "Credential not found",
		Details:   fmt.Sprintf("name: %s", name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewTrackingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTrackingFailed,
		Message:   "Failed to record tracking event",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewQueueConnectionError(backend string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueueConnection,
		Message:   fmt.Sprintf("Work queue backend '%s' unavailable", backend),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBusinessRule,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalService,
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResourceNotFound,
		Message:   fmt.Sprintf("Resource not found in %s", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAuthenticationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthentication,
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConfigurationError reports missing or inconsistent settings.
func NewConfigurationError(message, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigurationInvalid,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification
// ==========================

// AsStandardError unwraps err to a *StandardError if one is in the chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the error code of err, or ErrCodeInternal for unclassified errors.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// IsSoft reports whether err is meant for manual review rather than
// terminating the run: the item is failed with the message and the
// queue keeps draining.
func IsSoft(err error) bool {
	switch CodeOf(err) {
	case ErrCodeCitizenNotFound,
		ErrCodeResourceNotFound,
		ErrCodeBusinessRule,
		ErrCodeWorkItem,
		ErrCodeValidationFailed:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether the failure is transient.
func IsRetryable(err error) bool {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Retryable
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "LOOKUP"
	case strings.Contains(codeStr, "WORK_ITEM") || strings.Contains(codeStr, "QUEUE"):
		return "QUEUE"
	case strings.Contains(codeStr, "BUSINESS_RULE") || strings.Contains(codeStr, "VALIDATION"):
		return "BUSINESS"
	case strings.Contains(codeStr, "AUTHENTICATION"):
		return "AUTH"
	case strings.Contains(codeStr, "TRACKING") || strings.Contains(codeStr, "NOTIFICATION"):
		return "AUDIT"
	case strings.Contains(codeStr, "EXTERNAL") || strings.Contains(codeStr, "TIMEOUT"):
		return "EXTERNAL"
	default:
		return "OTHER"
	}
}

// Message returns the text recorded on a failed work item.
func Message(err error) string {
	stdErr, ok := AsStandardError(err)
	if !ok {
		return err.Error()
	}
	if stdErr.Details != "" {
		return stdErr.Message + ": " + stdErr.Details
	}
	return stdErr.Message
}
