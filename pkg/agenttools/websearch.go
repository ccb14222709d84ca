package agenttools

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/quiver/pkg/backend"
	"github.com/harun/quiver/pkg/toolmanager"
)

const defaultSearchResults = 5

// WebSearch searches the public web through the backend API.
type WebSearch struct {
	toolmanager.BaseTool
	client     *backend.Client
	maxResults int
}

// NewWebSearch builds the websearch tool. Configuration may carry
// max_results to cap result counts per call.
func NewWebSearch(client *backend.Client, cfg toolmanager.ToolBuildConfig) (toolmanager.Tool, error) {
	if client == nil {
		return nil, fmt.Errorf("websearch requires a backend client")
	}
	return &WebSearch{
		client:     client,
		maxResults: intConfig(cfg.Configuration, "max_results", defaultSearchResults),
	}, nil
}

func (t *WebSearch) Name() string { return "websearch" }

func (t *WebSearch) Description() toolmanager.ToolDescription {
	return toolmanager.ToolDescription{
		Name:        "websearch",
		Description: "Search the web for current information. Returns titles, URLs, and snippets.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results",
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
	}
}

func (t *WebSearch) Prompt() string {
	return "Use websearch when the answer depends on current events or facts that may have changed recently. Cite the returned URLs."
}

func (t *WebSearch) EvaluationCheckList() []string {
	return []string{"web claims are backed by a cited search result"}
}

func (t *WebSearch) Run(ctx context.Context, call toolmanager.ToolCall) (toolmanager.ToolCallResponse, error) {
	query, _ := call.Arguments["query"].(string)
	if strings.TrimSpace(query) == "" {
		return toolmanager.ToolCallResponse{}, fmt.Errorf("query is required")
	}

	maxResults := intArg(call.Arguments, "max_results", t.maxResults)

	result, err := t.client.Search(ctx, backend.SearchRequest{
		Query:      query,
		MaxResults: maxResults,
	})
	if err != nil {
		return toolmanager.ToolCallResponse{}, fmt.Errorf("web search failed: %w", err)
	}

	if len(result.Results) == 0 {
		return toolmanager.ToolCallResponse{
			ID:      call.ID,
			Name:    call.Name,
			Content: "No results found.",
		}, nil
	}

	var sb strings.Builder
	for i, r := range result.Results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}

	return toolmanager.ToolCallResponse{
		ID:      call.ID,
		Name:    call.Name,
		Content: sb.String(),
	}, nil
}

// intArg reads an integer argument, tolerating the float64 JSON numbers
// decode to.
func intArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

// intConfig reads an integer from a build configuration map.
func intConfig(cfg map[string]interface{}, key string, fallback int) int {
	if cfg == nil {
		return fallback
	}
	return intArg(cfg, key, fallback)
}
