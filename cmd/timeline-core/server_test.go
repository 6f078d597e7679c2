package main

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesPrial/timeline-core/internal/consistency"
	"github.com/JamesPrial/timeline-core/internal/storage"
	"github.com/JamesPrial/timeline-core/internal/transport"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	service := consistency.NewService(storage.NewMemoryBackend(), nil)
	return NewServer(consistency.NewTools(service, nil))
}

func request(method string, params map[string]interface{}) *transport.JSONRPCRequest {
	return &transport.JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
}

func TestServer_HandleRequest_InvalidMethods(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	invalidRequestMethods := []string{
		"\x00tools/list",
		"tools/list\n",
		"../tools/list",
		"tools//list",
		strings.Repeat("a", 101),
		"<script>alert('xss')</script>",
	}
	methodNotFoundMethods := []string{
		"invalid_method",
		"tools/invalid",
		"TOOLS/LIST",
		"tools/list/extra",
		"tools.list",
	}

	for _, method := range invalidRequestMethods {
		t.Run(fmt.Sprintf("InvalidRequest_%d_chars", len(method)), func(t *testing.T) {
			resp := server.HandleRequest(ctx, request(method, nil))
			require.NotNil(t, resp.Error)
			assert.Equal(t, transport.InvalidRequest, resp.Error.Code)
			assert.Equal(t, 1, resp.ID)
		})
	}
	for _, method := range methodNotFoundMethods {
		t.Run("MethodNotFound_"+method, func(t *testing.T) {
			resp := server.HandleRequest(ctx, request(method, nil))
			require.NotNil(t, resp.Error)
			assert.Equal(t, transport.MethodNotFound, resp.Error.Code)
		})
	}
}

func TestServer_HandleRequest_Envelope(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	resp := server.HandleRequest(ctx, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, transport.InvalidRequest, resp.Error.Code)

	resp = server.HandleRequest(ctx, &transport.JSONRPCRequest{JSONRPC: "1.0", ID: 1, Method: "tools/list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, transport.InvalidRequest, resp.Error.Code)

	resp = server.HandleRequest(ctx, &transport.JSONRPCRequest{JSONRPC: "2.0", Method: "tools/list"})
	require.NotNil(t, resp.Error)
	assert.Nil(t, resp.ID)

	assert.Nil(t, server.HandleRequest(ctx, &transport.JSONRPCRequest{JSONRPC: "2.0", Method: "notifications/initialized"}))
}

func TestServer_HandleRequest_ToolsList(t *testing.T) {
	server := newTestServer(t)

	resp := server.HandleRequest(context.Background(), request("tools/list", nil))
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	tools, ok := result["tools"].([]consistency.Tool)
	require.True(t, ok)
	for _, tool := range tools {
		assert.True(t, strings.HasPrefix(tool.Name, toolPrefix), tool.Name)
	}
}

func TestServer_HandleRequest_ToolsCallParams(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params map[string]interface{}
		code   int
	}{
		{"missing params", nil, transport.InvalidParams},
		{"missing name", map[string]interface{}{"arguments": map[string]interface{}{}}, transport.InvalidParams},
		{"name not string", map[string]interface{}{"name": 42}, transport.InvalidParams},
		{"empty name", map[string]interface{}{"name": ""}, transport.InvalidParams},
		{"arguments not object", map[string]interface{}{"name": "timeline__validate_timeline", "arguments": "ms-1"}, transport.InvalidParams},
		{"invalid characters", map[string]interface{}{"name": "timeline__validate timeline"}, transport.InvalidParams},
		{"foreign prefix", map[string]interface{}{"name": "memory__create_entities"}, transport.InvalidParams},
		{"unknown timeline tool", map[string]interface{}{"name": "timeline__nope"}, transport.ConflictError},
		{"missing manuscript", map[string]interface{}{"name": "timeline__validate_timeline", "arguments": map[string]interface{}{}}, transport.InvalidParams},
		{"unknown manuscript", map[string]interface{}{"name": "timeline__validate_timeline", "arguments": map[string]interface{}{"manuscriptId": "ghost"}}, transport.NotFoundError},
		{"scans disabled", map[string]interface{}{"name": "timeline__poll_scan", "arguments": map[string]interface{}{"taskId": "t"}}, transport.ConflictError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := server.HandleRequest(ctx, request("tools/call", tt.params))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Nil(t, resp.Result)
		})
	}
}

func TestServer_HandleRequest_ToolsCall(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	callTool := func(name string, args map[string]interface{}) *transport.JSONRPCResponse {
		return server.HandleRequest(ctx, request("tools/call", map[string]interface{}{"name": name, "arguments": args}))
	}

	resp := callTool("timeline__upsert_manuscript", map[string]interface{}{"id": "ms-1", "worldId": "w1", "title": "The Road"})
	require.Nil(t, resp.Error)

	resp = callTool("timeline__validate_timeline", map[string]interface{}{"manuscriptId": "ms-1"})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(*consistency.ValidationResult)
	require.True(t, ok)
	assert.Empty(t, result.Inconsistencies)

	// nil arguments decode as an empty object
	resp = server.HandleRequest(ctx, request("tools/call", map[string]interface{}{"name": "timeline__list_inconsistencies", "arguments": nil}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, transport.InvalidParams, resp.Error.Code)
}
