package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a standardized error code
type ErrorCode string

// Standard error codes organized by category
const (
	// Storage errors
	ErrCodeStorageNotFound       ErrorCode = "STORAGE_NOT_FOUND"
	ErrCodeStorageConflict       ErrorCode = "STORAGE_CONFLICT"
	ErrCodeStorageConnection     ErrorCode = "STORAGE_CONNECTION"
	ErrCodeStorageTransaction    ErrorCode = "STORAGE_TRANSACTION"
	ErrCodeStorageInitialization ErrorCode = "STORAGE_INITIALIZATION"

	// Validation errors (InvalidInput)
	ErrCodeValidationRequired  ErrorCode = "VALIDATION_REQUIRED"
	ErrCodeValidationInvalid   ErrorCode = "VALIDATION_INVALID"
	ErrCodeValidationRange     ErrorCode = "VALIDATION_RANGE"
	ErrCodeValidationDuplicate ErrorCode = "VALIDATION_DUPLICATE"
	ErrCodeValidationType      ErrorCode = "VALIDATION_TYPE"

	// Lookup errors (NotFound)
	ErrCodeEntityNotFound     ErrorCode = "ENTITY_NOT_FOUND"
	ErrCodeManuscriptNotFound ErrorCode = "MANUSCRIPT_NOT_FOUND"
	ErrCodeEventNotFound      ErrorCode = "EVENT_NOT_FOUND"
	ErrCodeTaskNotFound       ErrorCode = "TASK_NOT_FOUND"

	// Transport errors
	ErrCodeTransportInvalidJSON    ErrorCode = "TRANSPORT_INVALID_JSON"
	ErrCodeTransportInvalidRequest ErrorCode = "TRANSPORT_INVALID_REQUEST"
	ErrCodeTransportMethodNotFound ErrorCode = "TRANSPORT_METHOD_NOT_FOUND"
	ErrCodeTransportInvalidParams  ErrorCode = "TRANSPORT_INVALID_PARAMS"
	ErrCodeTransportMarshal        ErrorCode = "TRANSPORT_MARSHAL"

	// Business logic errors
	ErrCodeEntityAlreadyExists ErrorCode = "ENTITY_ALREADY_EXISTS"
	ErrCodeInvalidOperation    ErrorCode = "INVALID_OPERATION"
	ErrCodePartialScanFailure  ErrorCode = "PARTIAL_SCAN_FAILURE"

	// System errors
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotImplemented  ErrorCode = "NOT_IMPLEMENTED"
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	ErrCodeConfiguration   ErrorCode = "CONFIGURATION_ERROR"
)

var notFoundCodes = []ErrorCode{
	ErrCodeStorageNotFound,
	ErrCodeEntityNotFound,
	ErrCodeManuscriptNotFound,
	ErrCodeEventNotFound,
	ErrCodeTaskNotFound,
}

var invalidInputCodes = []ErrorCode{
	ErrCodeValidationRequired,
	ErrCodeValidationInvalid,
	ErrCodeValidationRange,
	ErrCodeValidationDuplicate,
	ErrCodeValidationType,
}

// AppError represents a standardized application error
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Details  interface{} `json:"details,omitempty"`
	Internal error       `json:"-"` // Internal error not exposed to clients
}

// Error implements the error interface
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// ToJSON returns a JSON representation safe for clients
func (e *AppError) ToJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:     code,
		Message:  message,
		Internal: err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// as finds the outermost AppError in the chain
func as(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is checks if an error has a specific error code.
// The outermost AppError in a wrapped chain decides.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	appErr, ok := as(err)
	if !ok {
		return false
	}
	return appErr.Code == code
}

// IsAny checks if an error matches any of the provided codes
func IsAny(err error, codes ...ErrorCode) bool {
	for _, code := range codes {
		if Is(err, code) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err belongs to the NotFound class
func IsNotFound(err error) bool {
	return IsAny(err, notFoundCodes...)
}

// IsInvalidInput reports whether err belongs to the InvalidInput class
func IsInvalidInput(err error) bool {
	return IsAny(err, invalidInputCodes...)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	appErr, ok := as(err)
	if !ok {
		return ErrCodeInternal
	}
	return appErr.Code
}

// GetMessage returns a safe message for the client
func GetMessage(err error) string {
	if err == nil {
		return ""
	}
	appErr, ok := as(err)
	if !ok {
		return "An internal error occurred"
	}
	return appErr.Message
}

// GetInternal returns the internal error for logging
func GetInternal(err error) error {
	if err == nil {
		return nil
	}
	appErr, ok := as(err)
	if !ok {
		return err
	}
	if appErr.Internal != nil {
		return appErr.Internal
	}
	return appErr
}

// NotFound creates a not found error
func NotFound(code ErrorCode, resource, id string) *AppError {
	return Newf(code, "%s '%s' not found", resource, id)
}

// AlreadyExists creates an already exists error
func AlreadyExists(resource string) *AppError {
	return Newf(ErrCodeEntityAlreadyExists, "%s already exists", resource)
}

// ValidationRequired creates a validation required error
func ValidationRequired(field string) *AppError {
	return Newf(ErrCodeValidationRequired, "%s is required", field)
}

// ValidationInvalid creates a validation invalid error
func ValidationInvalid(field, reason string) *AppError {
	return Newf(ErrCodeValidationInvalid, "%s is invalid: %s", field, reason)
}

// Internal creates an internal error with a safe message
func Internal(internalErr error) *AppError {
	return Wrap(internalErr, ErrCodeInternal, "An internal error occurred")
}

// Internalf creates an internal error with formatted safe message
func Internalf(internalErr error, format string, args ...interface{}) *AppError {
	return Wrap(internalErr, ErrCodeInternal, fmt.Sprintf(format, args...))
}

// Classify keeps an existing AppError as is and wraps anything else with code.
// Context cancellation is always reported as ErrCodeContextCanceled.
func Classify(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := as(err); ok {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrCodeContextCanceled, "operation canceled")
	}
	return Wrap(err, code, message)
}
