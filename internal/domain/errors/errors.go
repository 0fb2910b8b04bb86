package errors

import (
	"errors"
	"fmt"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeSchema       ErrorType = "schema"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		Retryable:  false,
		StatusCode: 401,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "EXTERNAL_SERVICE_ERROR",
		Message:    fmt.Sprintf("%s service error: %s", service, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"service": service},
	}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    message,
		Retryable:  true,
		StatusCode: 429,
	}
}

// SchemaError is fatal: the raw row shape is missing mandatory columns, so
// the run aborts before any computation. Distinct from per-row value
// problems, which only skip the offending row.
type SchemaError struct {
	Missing []string
}

func NewSchemaError(missing ...string) *SchemaError {
	return &SchemaError{Missing: missing}
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("input rows missing required columns: %v", e.Missing)
}

// ValidationError is a recoverable per-row defect: the row is skipped and
// counted, never aborting the batch. It names the offending row and field
// so the source data can be fixed without re-running blind.
type ValidationError struct {
	RowIndex int
	Field    string
	Reason   string
}

func NewRowValidationError(rowIndex int, field, reason string) *ValidationError {
	return &ValidationError{RowIndex: rowIndex, Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: field %q: %s", e.RowIndex, e.Field, e.Reason)
}

// EmptyRangeError marks a run whose window matched zero canonical tickets.
// It is not a failure: callers receive a fully structured all-zero report
// alongside it and treat the marker as informational.
type EmptyRangeError struct {
	Start string
	End   string
}

func NewEmptyRangeError(start, end string) *EmptyRangeError {
	return &EmptyRangeError{Start: start, End: end}
}

func (e *EmptyRangeError) Error() string {
	return fmt.Sprintf("no tickets in range %s to %s", e.Start, e.End)
}

// IsEmptyRange reports whether err carries the empty-range marker
func IsEmptyRange(err error) bool {
	var e *EmptyRangeError
	return errors.As(err, &e)
}

// ToAppError maps engine sentinels and arbitrary errors onto the REST
// error shape in one place
func ToAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return &AppError{
			Type:       ErrorTypeSchema,
			Code:       "SCHEMA_MISMATCH",
			Message:    schemaErr.Error(),
			Retryable:  false,
			StatusCode: 422,
			Details:    map[string]interface{}{"missing_columns": schemaErr.Missing},
		}
	}
	var rowErr *ValidationError
	if errors.As(err, &rowErr) {
		return NewValidationError("ROW_INVALID", rowErr.Error()).
			WithDetails(map[string]interface{}{"row_index": rowErr.RowIndex, "field": rowErr.Field})
	}
	return NewInternalError("unexpected error").WithCause(err)
}

// ErrReportNotFound is the cache/store miss sentinel for report lookups
var ErrReportNotFound = NewNotFoundError("report")

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}
