package domain

import "errors"

// Common domain errors
var (
	ErrUnrecognisedSource = errors.New("unrecognised source")
	ErrStepFailed         = errors.New("step execution failed")
	ErrDeliveryFailed     = errors.New("event delivery failed")
	ErrInvalidEvent       = errors.New("invalid event")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrJobModeFlag        = errors.New("invalid job mode flag")
)

// Error codes returned in ErrorResponse bodies.
const (
	CodeRoutingError = "ROUTING_ERROR"
	CodeInvalidEvent = "INVALID_EVENT"
	CodeStepFailed   = "STEP_FAILED"
	CodeInternal     = "INTERNAL_ERROR"
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// ErrorResponse defines the JSON error model returned by the service entry point.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}
