package transport

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesPrial/timeline-core/pkg/errors"
)

func TestToJSONRPCError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedData string
	}{
		{"invalid json", errors.New(errors.ErrCodeTransportInvalidJSON, "Invalid JSON format"), ParseError, "TRANSPORT_INVALID_JSON"},
		{"method not found", errors.New(errors.ErrCodeTransportMethodNotFound, "Method not found"), MethodNotFound, "TRANSPORT_METHOD_NOT_FOUND"},
		{"validation required", errors.ValidationRequired("manuscriptId"), InvalidParams, "VALIDATION_REQUIRED"},
		{"duplicate", errors.New(errors.ErrCodeValidationDuplicate, "duplicate order index"), InvalidParams, "VALIDATION_DUPLICATE"},
		{"manuscript not found", errors.NotFound(errors.ErrCodeManuscriptNotFound, "manuscript", "ms-1"), NotFoundError, "MANUSCRIPT_NOT_FOUND"},
		{"task not found", errors.NotFound(errors.ErrCodeTaskNotFound, "scan task", "t-1"), NotFoundError, "TASK_NOT_FOUND"},
		{"invalid operation", errors.New(errors.ErrCodeInvalidOperation, "scans are disabled"), ConflictError, "INVALID_OPERATION"},
		{"storage failure", errors.New(errors.ErrCodeStorageTransaction, "Failed to list events"), InternalError, "STORAGE_TRANSACTION"},
		{"plain error", stderrors.New("boom"), InternalError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToJSONRPCError(tt.err)
			require.NotNil(t, result)
			assert.Equal(t, tt.expectedCode, result.Code)

			data, ok := result.Data.(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, tt.expectedData, data["error_code"])
		})
	}
}

func TestToJSONRPCError_Nil(t *testing.T) {
	assert.Nil(t, ToJSONRPCError(nil))
}

func TestToJSONRPCError_HidesInternalCause(t *testing.T) {
	err := errors.Wrap(stderrors.New("database is locked"), errors.ErrCodeStorageTransaction, "Failed to save events")

	result := ToJSONRPCError(err)
	assert.Equal(t, "Failed to save events", result.Message)
	assert.NotContains(t, result.Message, "locked")

	assert.Equal(t, "An internal error occurred", ToJSONRPCError(stderrors.New("secret path /var/db")).Message)
}

func TestToJSONRPCError_ContextCanceled(t *testing.T) {
	err := errors.Classify(context.Canceled, errors.ErrCodeStorageTransaction, "Failed to list events")
	result := ToJSONRPCError(err)
	assert.Equal(t, InternalError, result.Code)
	assert.Equal(t, "CONTEXT_CANCELED", result.Data.(map[string]interface{})["error_code"])
}

func TestToJSONRPCResponse(t *testing.T) {
	resp := ToJSONRPCResponse(7, nil)
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, 7, resp.ID)
	assert.Nil(t, resp.Error)

	resp = ToJSONRPCResponse("abc", errors.ValidationRequired("worldId"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "abc", resp.ID)
	assert.Nil(t, resp.Result)
}

func TestCreateFallbackErrorResponse(t *testing.T) {
	resp := CreateFallbackErrorResponse(1, "")
	require.NotNil(t, resp.Error)
	assert.Equal(t, InternalError, resp.Error.Code)
	assert.Equal(t, "An unexpected error occurred", resp.Error.Message)
}

func TestLoggableError(t *testing.T) {
	assert.Nil(t, LoggableError(nil))

	err := errors.Wrap(stderrors.New("disk full"), errors.ErrCodeStorageTransaction, "Failed to save")
	logged := LoggableError(err)
	assert.Contains(t, logged.Error(), "STORAGE_TRANSACTION")
	assert.Contains(t, logged.Error(), "disk full")
}
