// internal/common/errors/handler.go
package errors

import (
	"context"
)

// ErrorHandler classifies work item errors with standardized handling
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// FailableItem is the part of a work item the handler needs.
type FailableItem interface {
	GetReference() string
	Fail(ctx context.Context, message string) error
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleItemError fails the item and returns nil for soft errors. Any other
// error is logged and returned unchanged so the caller can abort the run.
func (h *ErrorHandler) HandleItemError(ctx context.Context, item FailableItem, data interface{}, err error) error {
	if err == nil {
		return nil
	}

	stdErr := h.normalizeError(err)
	h.logError(item, data, stdErr)

	if !IsSoft(err) {
		return err
	}

	if failErr := item.Fail(ctx, Message(err)); failErr != nil {
		return failErr
	}
	return nil
}

// normalizeError ensures we always have a StandardError
func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
	}
}

func (h *ErrorHandler) logError(item FailableItem, data interface{}, stdErr *StandardError) {
	h.logger.Error("Error processing item", map[string]interface{}{
		"reference":     item.GetReference(),
		"data":          data,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"soft":          IsSoft(stdErr),
		"errorCategory": GetErrorCategory(stdErr.Code),
	})
}
