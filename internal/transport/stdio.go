package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/JamesPrial/timeline-core/pkg/errors"
	"github.com/JamesPrial/timeline-core/pkg/logging"
)

// RequestHandler processes a single JSON-RPC request
type RequestHandler func(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse

const maxLineSize = 4 * 1024 * 1024

// StdioTransport serves newline-delimited JSON-RPC over a reader/writer pair
type StdioTransport struct {
	scanner *bufio.Scanner
	out     io.Writer
	writeMu sync.Mutex
	logger  *slog.Logger
}

// NewStdioTransport creates a transport bound to the process stdin and stdout
func NewStdioTransport() *StdioTransport {
	return NewStreamTransport(os.Stdin, os.Stdout)
}

// NewStreamTransport creates a transport over arbitrary streams
func NewStreamTransport(in io.Reader, out io.Writer) *StdioTransport {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &StdioTransport{
		scanner: scanner,
		out:     out,
		logger:  logging.GetGlobalLogger("transport.stdio"),
	}
}

// Start reads requests until the input is exhausted or ctx is canceled
func (t *StdioTransport) Start(ctx context.Context, handler RequestHandler) error {
	t.logger.InfoContext(ctx, "StdIO transport starting", slog.String("transport", "stdio"))

	for t.scanner.Scan() {
		select {
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "StdIO transport context cancelled")
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(t.scanner.Text())
		if line == "" {
			continue
		}

		requestCtx := logging.NewRequestContext(ctx, "HandleStdIORequest")

		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			t.logger.ErrorContext(requestCtx, "Failed to parse JSON-RPC request",
				slog.String("error", err.Error()),
			)
			parseErr := errors.Wrap(err, errors.ErrCodeTransportInvalidJSON, "Invalid JSON format")
			t.sendResponse(requestCtx, ToJSONRPCResponse(nil, parseErr))
			continue
		}

		t.logger.InfoContext(requestCtx, "Processing JSON-RPC request",
			slog.String("method", req.Method),
			slog.Any("id", req.ID),
		)

		startTime := time.Now()
		resp := handler(requestCtx, &req)
		duration := time.Since(startTime)

		if resp == nil {
			// notifications get no reply
			continue
		}
		if resp.Error != nil {
			t.logger.WarnContext(requestCtx, "Request completed with error",
				slog.String("method", req.Method),
				slog.Duration("duration", duration),
				slog.String("error", resp.Error.Message),
			)
		} else {
			t.logger.InfoContext(requestCtx, "Request completed successfully",
				slog.String("method", req.Method),
				slog.Duration("duration", duration),
			)
		}

		t.sendResponse(requestCtx, resp)
	}

	if err := t.scanner.Err(); err != nil {
		t.logger.ErrorContext(ctx, "Error reading input", slog.String("error", err.Error()))
		return fmt.Errorf("error reading input: %w", err)
	}

	t.logger.InfoContext(ctx, "StdIO transport stopped")
	return nil
}

// Name returns the name of the transport
func (t *StdioTransport) Name() string {
	return "stdio"
}

func (t *StdioTransport) sendResponse(ctx context.Context, resp *JSONRPCResponse) {
	respBytes, err := json.Marshal(resp)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to marshal response",
			slog.Any("response_id", resp.ID),
			slog.String("error", err.Error()),
		)
		marshalErr := errors.Wrap(err, errors.ErrCodeTransportMarshal, "Failed to serialize response")
		respBytes, err = json.Marshal(ToJSONRPCResponse(resp.ID, marshalErr))
		if err != nil {
			respBytes, _ = json.Marshal(CreateFallbackErrorResponse(nil, "Critical serialization error"))
		}
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := fmt.Fprintln(t.out, string(respBytes)); err != nil {
		t.logger.ErrorContext(ctx, "Failed to write response", slog.String("error", err.Error()))
		return
	}
	t.logger.DebugContext(ctx, "Response sent", slog.Int("response_size", len(respBytes)))
}
