package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/logging"
)

// ErrorResponse represents a structured error in tool results.
// Errors are returned as tool results with IsError set so the client sees
// the details instead of a protocol failure.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
//
// Example:
//
//	if _, ok := deps.Sources.Source(name); !ok {
//	    return NewErrorResult("source_not_found", "no source named 'warehouse' is configured"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// ErrorResultFor maps a pipeline error onto a structured tool error. The
// message is sanitized so connection strings never reach the client.
func ErrorResultFor(err error) *mcp.CallToolResult {
	msg := logging.SanitizeError(err)

	var unsupported *apperrors.UnsupportedSourceKind
	if errors.As(err, &unsupported) {
		return NewErrorResultWithDetails("unsupported_source_kind", msg, map[string]any{"kind": unsupported.Kind})
	}

	var connErr *apperrors.ConnectionError
	if errors.As(err, &connErr) {
		return NewErrorResultWithDetails("connection_failed", msg, map[string]any{
			"kind":      connErr.Kind,
			"reason":    connErr.Reason,
			"retryable": connErr.IsRetryable(),
		})
	}

	switch {
	case errors.Is(err, apperrors.ErrUnsafeQuery):
		return NewErrorResult("unsafe_identifier", msg)
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", msg)
	}
	return NewErrorResult("extraction_failed", msg)
}
