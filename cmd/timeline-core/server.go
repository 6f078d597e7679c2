package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JamesPrial/timeline-core/internal/consistency"
	"github.com/JamesPrial/timeline-core/internal/transport"
	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/logging"
)

const toolPrefix = "timeline__"

// Server answers tools/list and tools/call requests
type Server struct {
	tools  *consistency.Tools
	logger *slog.Logger
	errLog *errors.Logger
}

// NewServer creates a new tool server
func NewServer(tools *consistency.Tools) *Server {
	return &Server{
		tools:  tools,
		logger: logging.GetGlobalLogger("server"),
		errLog: errors.NewLogger("server"),
	}
}

// validateRequest validates a JSON-RPC request and returns an error response if invalid
func (s *Server) validateRequest(req *transport.JSONRPCRequest) *transport.JSONRPCResponse {
	if req == nil {
		return transport.NewInvalidRequestError(nil, "Request cannot be null")
	}
	if req.JSONRPC != "2.0" {
		return transport.NewInvalidRequestError(req.ID, "Invalid or missing 'jsonrpc' field, must be '2.0'")
	}
	if req.Method == "" {
		return transport.NewInvalidRequestError(req.ID, "Missing or empty 'method' field")
	}
	if req.ID == nil {
		return transport.NewInvalidRequestError(nil, "Missing 'id' field - notifications are not supported")
	}
	return nil
}

// isValidToolName validates that a tool name is properly formatted
func isValidToolName(name string) bool {
	if name == "" || len(name) > 100 {
		return false
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

// isMalformedMethod reports method names that are not worth routing at all
func isMalformedMethod(method string) bool {
	if len(method) > 100 || strings.Contains(method, "..") || strings.Contains(method, "//") {
		return true
	}
	for _, r := range method {
		if !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '/' || r == '_' || r == '-' || r == '.') {
			return true
		}
	}
	return false
}

// HandleRequest processes a JSON-RPC request and returns a response. Notifications
// get a nil response.
func (s *Server) HandleRequest(ctx context.Context, req *transport.JSONRPCRequest) *transport.JSONRPCResponse {
	if req != nil && req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}
	if resp := s.validateRequest(req); resp != nil {
		return resp
	}
	if isMalformedMethod(req.Method) {
		return transport.NewInvalidRequestError(req.ID, fmt.Sprintf("Invalid method format: '%s'", req.Method))
	}

	switch req.Method {
	case "tools/list":
		return transport.NewResult(req.ID, map[string]interface{}{"tools": s.tools.HandleListTools()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return transport.NewMethodNotFoundError(req.ID, req.Method)
	}
}

// handleToolsCall handles the tools/call method
func (s *Server) handleToolsCall(ctx context.Context, req *transport.JSONRPCRequest) (resp *transport.JSONRPCResponse) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "Panic in tools/call", slog.Any("panic", r))
			resp = transport.CreateFallbackErrorResponse(req.ID, "Internal server error")
		}
	}()

	if req.Params == nil {
		return transport.NewInvalidParamsError(req.ID, "Missing 'params' field for tools/call method")
	}

	name, ok := req.Params["name"]
	if !ok {
		return transport.NewInvalidParamsError(req.ID, "Missing 'name' field in params")
	}
	toolName, ok := name.(string)
	if !ok {
		return transport.NewInvalidParamsError(req.ID, "Field 'name' must be a string")
	}
	if toolName == "" {
		return transport.NewInvalidParamsError(req.ID, "Field 'name' cannot be empty")
	}

	// nil arguments are treated as an empty object
	arguments := make(map[string]interface{})
	if args, exists := req.Params["arguments"]; exists && args != nil {
		argsMap, ok := args.(map[string]interface{})
		if !ok {
			return transport.NewInvalidParamsError(req.ID, "Field 'arguments' must be an object")
		}
		arguments = argsMap
	}

	if !isValidToolName(toolName) {
		return transport.NewInvalidParamsError(req.ID, "Field 'name' contains invalid characters or unknown tool")
	}
	if !strings.HasPrefix(toolName, toolPrefix) {
		return transport.NewInvalidParamsError(req.ID, "Unknown tool name")
	}

	result, err := s.tools.HandleCallTool(ctx, toolName, arguments)
	if err != nil {
		_ = s.errLog.LogError(ctx, err, toolName)
		return transport.ToJSONRPCResponse(req.ID, err)
	}
	return transport.NewResult(req.ID, result)
}
