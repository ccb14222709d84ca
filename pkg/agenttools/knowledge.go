package agenttools

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/quiver/pkg/backend"
	"github.com/harun/quiver/pkg/toolmanager"
)

const defaultKnowledgeTopK = 3

// Knowledge queries the internal knowledge base through the backend API.
type Knowledge struct {
	toolmanager.BaseTool
	client     *backend.Client
	collection string
	topK       int
}

// NewKnowledge builds the knowledge tool. Configuration may pin a collection
// and override top_k.
func NewKnowledge(client *backend.Client, cfg toolmanager.ToolBuildConfig) (toolmanager.Tool, error) {
	if client == nil {
		return nil, fmt.Errorf("knowledge requires a backend client")
	}
	collection, _ := cfg.Configuration["collection"].(string)
	return &Knowledge{
		client:     client,
		collection: collection,
		topK:       intConfig(cfg.Configuration, "top_k", defaultKnowledgeTopK),
	}, nil
}

func (t *Knowledge) Name() string { return "knowledge" }

func (t *Knowledge) Description() toolmanager.ToolDescription {
	return toolmanager.ToolDescription{
		Name:        "knowledge",
		Description: "Query the internal knowledge base for company documents and runbooks.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What to look up",
				},
				"collection": map[string]interface{}{
					"type":        "string",
					"description": "Restrict the lookup to one collection",
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
	}
}

func (t *Knowledge) Prompt() string {
	return "Prefer knowledge over websearch for anything about internal systems, policies, or runbooks."
}

func (t *Knowledge) Run(ctx context.Context, call toolmanager.ToolCall) (toolmanager.ToolCallResponse, error) {
	query, _ := call.Arguments["query"].(string)
	if strings.TrimSpace(query) == "" {
		return toolmanager.ToolCallResponse{}, fmt.Errorf("query is required")
	}

	collection := t.collection
	if v, ok := call.Arguments["collection"].(string); ok && v != "" {
		collection = v
	}

	result, err := t.client.Knowledge(ctx, backend.KnowledgeRequest{
		Query:      query,
		Collection: collection,
		TopK:       t.topK,
	})
	if err != nil {
		return toolmanager.ToolCallResponse{}, fmt.Errorf("knowledge query failed: %w", err)
	}

	if len(result.Documents) == 0 {
		return toolmanager.ToolCallResponse{
			ID:      call.ID,
			Name:    call.Name,
			Content: "No matching documents.",
		}, nil
	}

	var sb strings.Builder
	for _, doc := range result.Documents {
		fmt.Fprintf(&sb, "## %s (score %.2f)\n%s\n\n", doc.Title, doc.Score, doc.Content)
	}

	return toolmanager.ToolCallResponse{
		ID:      call.ID,
		Name:    call.Name,
		Content: strings.TrimSpace(sb.String()),
	}, nil
}
