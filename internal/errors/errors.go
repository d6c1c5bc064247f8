// Package errors provides a lightweight structured error type (MonitorError)
// for category-based classification and retry semantics in the supervisor,
// storage layers, HTTP adapters and CLI.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a buildmon error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Session lifecycle errors
	CategorySpawn       ErrorCategory = "spawn"
	CategoryConflict    ErrorCategory = "conflict"
	CategoryNotFound    ErrorCategory = "not_found"
	CategoryTermination ErrorCategory = "termination"

	// Pipeline and storage errors
	CategoryClassify ErrorCategory = "classify"
	CategoryStorage  ErrorCategory = "storage"
	CategoryProcess  ErrorCategory = "process"

	// Runtime and infrastructure errors
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops the session
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// MonitorError is a structured error with category, retryability, and context
type MonitorError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for MonitorError
type ContextFields map[string]any

// Error implements the error interface
func (e *MonitorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *MonitorError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *MonitorError) WithContext(key string, value any) *MonitorError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new MonitorError
func New(category ErrorCategory, severity ErrorSeverity, message string) *MonitorError {
	return &MonitorError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new MonitorError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *MonitorError {
	return &MonitorError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// Retryable creates a new retryable MonitorError
func Retryable(category ErrorCategory, severity ErrorSeverity, message string) *MonitorError {
	return &MonitorError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: true,
	}
}

// WrapRetryable creates a new retryable MonitorError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *MonitorError {
	return &MonitorError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if me, ok := err.(*MonitorError); ok {
		return me.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if me, ok := err.(*MonitorError); ok {
		return me.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a MonitorError
func GetCategory(err error) ErrorCategory {
	if me, ok := err.(*MonitorError); ok {
		return me.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error (400 Bad Request)
func ValidationError(message string) *MonitorError {
	return &MonitorError{
		Category:  CategoryValidation,
		Severity:  SeverityWarning,
		Message:   message,
		Retryable: false,
	}
}

// DaemonError creates a new daemon error (service unavailable)
func DaemonError(message string) *MonitorError {
	return &MonitorError{
		Category:  CategoryDaemon,
		Severity:  SeverityError,
		Message:   message,
		Retryable: false,
	}
}

// WrapError wraps an existing error with a new MonitorError
func WrapError(err error, category ErrorCategory, message string) *MonitorError {
	return &MonitorError{
		Category:  category,
		Severity:  SeverityError,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}
