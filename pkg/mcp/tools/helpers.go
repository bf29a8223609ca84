// Package tools provides the MCP tools exposed by sourcesense.
package tools

import (
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return trimString(val)
}

// getOptionalInt extracts an optional integral argument. JSON numbers arrive
// as float64; fractional values are rejected.
func getOptionalInt(req mcp.CallToolRequest, key string) (int64, bool, error) {
	raw, exists := arguments(req)[key]
	if !exists || raw == nil {
		return 0, false, nil
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, false, fmt.Errorf("parameter '%s' must be a number", key)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("parameter '%s' must be an integer", key)
	}
	return int64(f), true, nil
}
