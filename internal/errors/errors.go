// Package errors defines the structured error taxonomy for the analysis
// pipeline. Every failure in the core is recoverable: parse problems degrade
// a source, oracle problems trigger the local fallback verdict, and tool
// server problems leave a remediation suggested but not dispatched.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCategory classifies the type of error
type ErrorCategory string

const (
	// DataError indicates malformed or unusable input data (per-record or per-source)
	DataError ErrorCategory = "DATA_ERROR"
	// ClientError indicates the error was caused by the caller
	ClientError ErrorCategory = "CLIENT_ERROR"
	// ServerError indicates an internal failure
	ServerError ErrorCategory = "SERVER_ERROR"
	// ExternalError indicates the error was caused by an external collaborator
	// (the AI oracle or the remediation tool server)
	ExternalError ErrorCategory = "EXTERNAL_ERROR"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Data errors
	CodeMalformedRecord  ErrorCode = "MALFORMED_RECORD"
	CodeUnparsableSource ErrorCode = "UNPARSABLE_SOURCE"

	// Client errors
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeRateLimited      ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Server errors
	CodeInternalError ErrorCode = "INTERNAL_ERROR"
	CodeTimeout       ErrorCode = "TIMEOUT"

	// External collaborator errors
	CodeOracleUnavailable     ErrorCode = "ORACLE_UNAVAILABLE"
	CodeToolServerUnavailable ErrorCode = "TOOL_SERVER_UNAVAILABLE"
	CodeNetworkError          ErrorCode = "NETWORK_ERROR"
)

// StructuredError represents a detailed error with category, code, and recovery suggestion
type StructuredError struct {
	Code       ErrorCode     `json:"code"`
	Category   ErrorCategory `json:"category"`
	Message    string        `json:"message"`
	Details    interface{}   `json:"details,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	wrapped    error
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Category, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/As chains.
func (e *StructuredError) Unwrap() error {
	return e.wrapped
}

// ToJSON converts the error to JSON string
func (e *StructuredError) ToJSON() string {
	bytes, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":"%s","category":"%s","message":"%s"}`, e.Code, e.Category, e.Message)
	}
	return string(bytes)
}

// New creates a new structured error
func New(code ErrorCode, category ErrorCategory, message string) *StructuredError {
	return &StructuredError{
		Code:     code,
		Category: category,
		Message:  message,
	}
}

// WithDetails adds details to the error
func (e *StructuredError) WithDetails(details interface{}) *StructuredError {
	e.Details = details
	return e
}

// WithSuggestion adds a recovery suggestion to the error
func (e *StructuredError) WithSuggestion(suggestion string) *StructuredError {
	e.Suggestion = suggestion
	return e
}

// WithCause records the underlying error for Unwrap chains.
func (e *StructuredError) WithCause(err error) *StructuredError {
	e.wrapped = err
	return e
}

// HasCode reports whether err is (or wraps) a StructuredError with the code.
func HasCode(err error, code ErrorCode) bool {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// Common error constructors

// NewMalformedRecord marks one record within a source as unusable. The record
// is dropped and counted; the source keeps parsing.
func NewMalformedRecord(source string, index int, reason string) *StructuredError {
	return New(CodeMalformedRecord, DataError, fmt.Sprintf("record %d in %s: %s", index, source, reason)).
		WithDetails(map[string]interface{}{
			"source": source,
			"index":  index,
		})
}

// NewUnparsableSource marks an entire source as having produced no usable
// events. Other sources still contribute to the timeline.
func NewUnparsableSource(source, reason string) *StructuredError {
	return New(CodeUnparsableSource, DataError, fmt.Sprintf("source %s produced no valid events: %s", source, reason)).
		WithDetails(map[string]interface{}{"source": source}).
		WithSuggestion("Check the file's format declaration or its content encoding")
}

// NewOracleUnavailable marks an oracle call failure. The orchestrator falls
// back to a locally computed verdict.
func NewOracleUnavailable(reason string) *StructuredError {
	return New(CodeOracleUnavailable, ExternalError, fmt.Sprintf("AI oracle unavailable: %s", reason)).
		WithSuggestion("The analysis continues with a locally computed summary")
}

// NewToolServerUnavailable marks a tool server call failure. The chosen
// remediation is still reported, flagged as suggested only.
func NewToolServerUnavailable(reason string) *StructuredError {
	return New(CodeToolServerUnavailable, ExternalError, fmt.Sprintf("tool server unavailable: %s", reason)).
		WithSuggestion("The remediation is suggested only, not dispatched")
}

// NewInvalidInput creates an invalid input error
func NewInvalidInput(message string) *StructuredError {
	return New(CodeInvalidInput, ClientError, message).
		WithSuggestion("Check the input parameters and try again")
}

// NewMissingParameter creates a missing parameter error
func NewMissingParameter(param string) *StructuredError {
	return New(CodeMissingParameter, ClientError, fmt.Sprintf("Required parameter '%s' is missing", param)).
		WithSuggestion(fmt.Sprintf("Provide the '%s' parameter", param))
}

// NewToolNotFound creates an unknown-tool error
func NewToolNotFound(name string) *StructuredError {
	return New(CodeToolNotFound, ClientError, fmt.Sprintf("remediation tool '%s' is not in the catalog", name)).
		WithSuggestion("List the catalog to see available tools")
}

// NewRateLimited creates a rate limit exceeded error
func NewRateLimited() *StructuredError {
	return New(CodeRateLimited, ClientError, "Rate limit exceeded").
		WithSuggestion("Wait a moment and try again")
}

// NewInternalError creates an internal error
func NewInternalError(message string) *StructuredError {
	return New(CodeInternalError, ServerError, message)
}

// NewTimeout creates a timeout error
func NewTimeout(operation string) *StructuredError {
	return New(CodeTimeout, ServerError, fmt.Sprintf("Operation '%s' timed out", operation)).
		WithSuggestion("Try again or adjust timeout settings")
}

// NewNetworkError creates a network error
func NewNetworkError(message string) *StructuredError {
	return New(CodeNetworkError, ExternalError, message).
		WithSuggestion("Check your network connection and try again")
}

// FromHTTPStatus creates an appropriate error from an HTTP status code
// returned by an external collaborator.
func FromHTTPStatus(service string, statusCode int, responseBody string) *StructuredError {
	switch {
	case statusCode == 400:
		return NewInvalidInput(responseBody)
	case statusCode == 401 || statusCode == 403:
		return New(CodeInvalidInput, ClientError, fmt.Sprintf("%s rejected credentials (HTTP %d)", service, statusCode)).
			WithSuggestion("Check the configured API key")
	case statusCode == 404:
		return New(CodeToolNotFound, ClientError, fmt.Sprintf("%s: not found", service))
	case statusCode == 429:
		return NewRateLimited()
	case statusCode >= 500 && statusCode < 600:
		return New(CodeNetworkError, ExternalError, fmt.Sprintf("%s error (HTTP %d): %s", service, statusCode, responseBody)).
			WithDetails(map[string]interface{}{
				"service":     service,
				"status_code": statusCode,
			})
	default:
		return New(CodeInternalError, ServerError, fmt.Sprintf("Unexpected HTTP status %d from %s: %s", statusCode, service, responseBody))
	}
}
