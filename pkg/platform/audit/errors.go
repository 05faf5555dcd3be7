package audit

import (
	"errors"
	"fmt"

	"auditd/pkg/platform/sentinel"
)

var (
	// ErrInvalidState is returned when a builder is used after Build.
	ErrInvalidState = fmt.Errorf("audit builder already built: %w", sentinel.ErrInvalidState)

	// ErrFilterUnavailable is returned when no filter configuration has been loaded yet.
	// Callers treat it as "not auditing".
	ErrFilterUnavailable = fmt.Errorf("audit filter configuration not loaded: %w", sentinel.ErrUnavailable)

	// ErrHandlerTimeout is reported when a handler exceeds its delivery timeout.
	ErrHandlerTimeout = errors.New("audit handler timed out")

	// ErrQueueFull is reported when a handler's bounded queue stays full past the enqueue timeout.
	ErrQueueFull = errors.New("audit handler queue full")

	// ErrPublisherClosed is reported for records published after Close.
	ErrPublisherClosed = errors.New("audit publisher closed")

	// ErrDuplicateHandler is returned when a handler name is registered twice for a topic.
	ErrDuplicateHandler = fmt.Errorf("audit handler already registered: %w", sentinel.ErrConflict)

	// ErrUnknownHandler is returned when deregistering a handler that is not registered.
	ErrUnknownHandler = fmt.Errorf("audit handler not registered: %w", sentinel.ErrNotFound)
)

// ValidationError reports a missing or invalid record field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("audit field %q %s", e.Field, e.Reason)
}

func missing(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// HandlerDeliveryError records one handler failing to accept one record.
// It is reported on the publisher's error channel and never returned to the publishing caller.
type HandlerDeliveryError struct {
	Handler  string
	Topic    Topic
	RecordID string
	Err      error
}

func (e *HandlerDeliveryError) Error() string {
	return fmt.Sprintf("audit handler %q failed for record %s on topic %s: %v", e.Handler, e.RecordID, e.Topic, e.Err)
}

func (e *HandlerDeliveryError) Unwrap() error { return e.Err }
