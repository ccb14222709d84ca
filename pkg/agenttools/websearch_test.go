package agenttools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/quiver/pkg/backend"
	"github.com/harun/quiver/pkg/toolmanager"
)

func newBackendClient(t *testing.T, handler http.HandlerFunc) (*backend.Client, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	client, err := backend.NewClient(backend.Config{BaseURL: server.URL}, zerolog.Nop())
	require.NoError(t, err)
	return client, server.Close
}

func TestNewWebSearch(t *testing.T) {
	t.Run("should require a backend client", func(t *testing.T) {
		_, err := NewWebSearch(nil, toolmanager.ToolBuildConfig{Name: "websearch"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend client")
	})

	t.Run("should read max_results from configuration", func(t *testing.T) {
		client, done := newBackendClient(t, func(w http.ResponseWriter, r *http.Request) {})
		defer done()

		tool, err := NewWebSearch(client, toolmanager.ToolBuildConfig{
			Name:          "websearch",
			Configuration: map[string]interface{}{"max_results": float64(2)},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, tool.(*WebSearch).maxResults)
	})
}

func TestWebSearchDescription(t *testing.T) {
	client, done := newBackendClient(t, func(w http.ResponseWriter, r *http.Request) {})
	defer done()

	tool, err := NewWebSearch(client, toolmanager.ToolBuildConfig{Name: "websearch"})
	require.NoError(t, err)

	desc := tool.Description()
	assert.Equal(t, "websearch", desc.Name)
	assert.Equal(t, "object", desc.Parameters["type"])
	assert.Equal(t, []string{"query"}, desc.Parameters["required"])
	assert.NotEmpty(t, tool.Prompt())
	assert.NotEmpty(t, tool.EvaluationCheckList())
}

func TestWebSearchRun(t *testing.T) {
	t.Run("should format results", func(t *testing.T) {
		var captured backend.SearchRequest
		client, done := newBackendClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			_ = json.NewEncoder(w).Encode(backend.SearchResponse{
				Results: []backend.SearchResult{
					{Title: "Go blog", URL: "https://go.dev/blog", Snippet: "release notes"},
					{Title: "Go docs", URL: "https://go.dev/doc", Snippet: "documentation"},
				},
			})
		})
		defer done()

		tool, err := NewWebSearch(client, toolmanager.ToolBuildConfig{Name: "websearch"})
		require.NoError(t, err)

		resp, err := tool.Run(context.Background(), toolmanager.ToolCall{
			ID:        "call-1",
			Name:      "websearch",
			Arguments: map[string]interface{}{"query": "golang release", "max_results": float64(2)},
		})
		require.NoError(t, err)

		assert.Equal(t, "golang release", captured.Query)
		assert.Equal(t, 2, captured.MaxResults)
		assert.Equal(t, "call-1", resp.ID)
		assert.Contains(t, resp.Content, "1. Go blog")
		assert.Contains(t, resp.Content, "https://go.dev/doc")
		assert.True(t, resp.Successful())
	})

	t.Run("should reject a missing query", func(t *testing.T) {
		client, done := newBackendClient(t, func(w http.ResponseWriter, r *http.Request) {})
		defer done()

		tool, err := NewWebSearch(client, toolmanager.ToolBuildConfig{Name: "websearch"})
		require.NoError(t, err)

		_, err = tool.Run(context.Background(), toolmanager.ToolCall{
			ID:        "call-2",
			Name:      "websearch",
			Arguments: map[string]interface{}{},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query is required")
	})

	t.Run("should surface backend failures", func(t *testing.T) {
		client, done := newBackendClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		})
		defer done()

		tool, err := NewWebSearch(client, toolmanager.ToolBuildConfig{Name: "websearch"})
		require.NoError(t, err)

		_, err = tool.Run(context.Background(), toolmanager.ToolCall{
			ID:        "call-3",
			Name:      "websearch",
			Arguments: map[string]interface{}{"query": "anything"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "web search failed")
	})

	t.Run("should report empty results", func(t *testing.T) {
		client, done := newBackendClient(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(backend.SearchResponse{})
		})
		defer done()

		tool, err := NewWebSearch(client, toolmanager.ToolBuildConfig{Name: "websearch"})
		require.NoError(t, err)

		resp, err := tool.Run(context.Background(), toolmanager.ToolCall{
			ID:        "call-4",
			Name:      "websearch",
			Arguments: map[string]interface{}{"query": "obscure"},
		})
		require.NoError(t, err)
		assert.Equal(t, "No results found.", resp.Content)
	})
}
