package transport

import (
	"fmt"

	"github.com/JamesPrial/timeline-core/pkg/errors"
)

// ToJSONRPCError maps internal AppError codes to JSON-RPC errors. The message is
// the client-safe AppError message; internal causes never leave the process.
func ToJSONRPCError(err error) *JSONRPCError {
	if err == nil {
		return nil
	}

	code := errors.GetCode(err)

	var jsonRPCCode int
	switch {
	case code == errors.ErrCodeTransportInvalidJSON || code == errors.ErrCodeTransportMarshal:
		jsonRPCCode = ParseError
	case code == errors.ErrCodeTransportInvalidRequest:
		jsonRPCCode = InvalidRequest
	case code == errors.ErrCodeTransportMethodNotFound || code == errors.ErrCodeNotImplemented:
		jsonRPCCode = MethodNotFound
	case code == errors.ErrCodeTransportInvalidParams || errors.IsInvalidInput(err):
		jsonRPCCode = InvalidParams
	case errors.IsNotFound(err):
		jsonRPCCode = NotFoundError
	case code == errors.ErrCodeInvalidOperation || code == errors.ErrCodeEntityAlreadyExists ||
		code == errors.ErrCodeStorageConflict:
		jsonRPCCode = ConflictError
	default:
		jsonRPCCode = InternalError
	}

	return &JSONRPCError{
		Code:    jsonRPCCode,
		Message: SafeErrorMessage(err),
		Data:    map[string]interface{}{"error_code": string(code)},
	}
}

// ToJSONRPCResponse creates a complete JSONRPCResponse with error
func ToJSONRPCResponse(id interface{}, err error) *JSONRPCResponse {
	if err == nil {
		return NewResult(id, map[string]interface{}{"success": true})
	}
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   ToJSONRPCError(err),
	}
}

// CreateFallbackErrorResponse creates a safe fallback error response for critical failures
func CreateFallbackErrorResponse(id interface{}, message string) *JSONRPCResponse {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    InternalError,
			Message: message,
			Data:    map[string]interface{}{"error_code": "FALLBACK_ERROR"},
		},
	}
}

// SafeErrorMessage returns a client-safe error message
func SafeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	message := errors.GetMessage(err)
	if message == "" {
		return "An internal error occurred"
	}
	return message
}

// LoggableError returns the full error details for logging (including internal error)
func LoggableError(err error) error {
	if err == nil {
		return nil
	}
	if internal := errors.GetInternal(err); internal != nil {
		return fmt.Errorf("error_code=%s message=%s internal=%v",
			errors.GetCode(err), errors.GetMessage(err), internal)
	}
	return fmt.Errorf("error_code=%s message=%s", errors.GetCode(err), errors.GetMessage(err))
}
