package tools

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/config"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	"github.com/ekaya-inc/sourcesense/pkg/services"
)

// ============================================================================
// Mock Implementations
// ============================================================================

type mockExtractionService struct {
	result  *models.ExtractionResult
	err     error
	testErr error

	mu        sync.Mutex
	gotDesc   models.ConnectionDescriptor
	gotConfig models.ProfilingConfig
	runs      int
	tests     int
}

func (m *mockExtractionService) RunExtraction(ctx context.Context, desc models.ConnectionDescriptor, cfg models.ProfilingConfig) (*models.ExtractionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	m.gotDesc = desc
	m.gotConfig = cfg
	return m.result, m.err
}

func (m *mockExtractionService) TestConnection(ctx context.Context, desc models.ConnectionDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests++
	m.gotDesc = desc
	return m.testErr
}

func (m *mockExtractionService) ListKinds() []datasource.AdapterInfo {
	return []datasource.AdapterInfo{
		{Kind: models.SourceKindPostgres, DisplayName: "PostgreSQL", Status: datasource.StatusAvailable, DefaultPort: 5432},
		{Kind: models.SourceKindMongo, DisplayName: "MongoDB", Status: datasource.StatusComingSoon},
	}
}

var _ services.ExtractionService = (*mockExtractionService)(nil)

type mockCatalog struct {
	sources []config.SourceConfig
}

func (m *mockCatalog) Source(name string) (config.SourceConfig, bool) {
	for _, s := range m.sources {
		if s.Name == name {
			return s, true
		}
	}
	return config.SourceConfig{}, false
}

func (m *mockCatalog) SourceNames() []string {
	names := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		names = append(names, s.Name)
	}
	return names
}

var _ SourceCatalog = (*mockCatalog)(nil)

func shopCatalog() *mockCatalog {
	return &mockCatalog{sources: []config.SourceConfig{
		{Name: "shop", Kind: "postgresql", Host: "db.internal", Port: 5432, Database: "shop", User: "reader", Password: "s3cret"},
		{Name: "legacy", Kind: "mongodb", Host: "mongo.internal", Database: "catalog"},
	}}
}

// ============================================================================
// Helpers
// ============================================================================

// callTool executes an MCP tool via the server's HandleMessage method and
// returns the decoded tool result.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	reqBytes, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	resp := s.HandleMessage(context.Background(), reqBytes)
	respBytes, err := json.Marshal(resp)
	require.NoError(t, err)

	var envelope struct {
		Result *struct {
			Content []mcp.TextContent `json:"content"`
			IsError bool              `json:"isError"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &envelope))
	require.Nil(t, envelope.Error, "tool call returned a protocol error")
	require.NotNil(t, envelope.Result)

	result := &mcp.CallToolResult{IsError: envelope.Result.IsError}
	for _, c := range envelope.Result.Content {
		result.Content = append(result.Content, c)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

// listTools returns the registered tool names.
func listTools(t *testing.T, s *server.MCPServer) []string {
	t.Helper()
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	respBytes, err := json.Marshal(resp)
	require.NoError(t, err)

	var envelope struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &envelope))
	names := make([]string, 0, len(envelope.Result.Tools))
	for _, tool := range envelope.Result.Tools {
		names = append(names, tool.Name)
	}
	return names
}
