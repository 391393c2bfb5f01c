package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest        = "BAD_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrNotFound          = "NOT_FOUND"
	ErrConflict          = "CONFLICT"
	ErrValidationError   = "VALIDATION_ERROR"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrInternalError     = "INTERNAL_ERROR"
)

// Workflow and escalation error codes.
const (
	ErrWorkflowTerminal = "WORKFLOW_TERMINAL"
	ErrAlreadyResolved  = "ALREADY_RESOLVED"
	ErrMaxLevelReached  = "MAX_LEVEL_REACHED"
	ErrInvalidState     = "INVALID_STATE"
)

// ErrorEnvelope is the standard error response envelope returned by the API.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeOf returns the envelope code of err, or ErrInternalError when err is
// not an *ErrorEnvelope.
func CodeOf(err error) string {
	if ee, ok := err.(*ErrorEnvelope); ok {
		return ee.Code
	}
	return ErrInternalError
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error. Version conflicts from the
// store surface through this code; it is the only error callers are
// expected to retry after re-reading current state.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInvalidTransitionError returns an INVALID_TRANSITION error for a stage
// or state precondition violation.
func NewInvalidTransitionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidTransition, Message: msg}
}

// NewWorkflowTerminalError returns a WORKFLOW_TERMINAL error for operations
// on an approved, rejected, or cancelled workflow.
func NewWorkflowTerminalError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrWorkflowTerminal, Message: msg}
}

// NewAlreadyResolvedError returns an ALREADY_RESOLVED error for a second
// resolve on the same escalation.
func NewAlreadyResolvedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrAlreadyResolved, Message: msg}
}

// NewMaxLevelReachedError returns a MAX_LEVEL_REACHED error.
func NewMaxLevelReachedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrMaxLevelReached, Message: msg}
}

// NewInvalidStateError returns an INVALID_STATE error for mutations on a
// resolved escalation.
func NewInvalidStateError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidState, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}
