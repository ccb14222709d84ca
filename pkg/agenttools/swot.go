package agenttools

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/quiver/pkg/agent"
	"github.com/harun/quiver/pkg/toolmanager"
)

const swotSystemPrompt = "You are a strategy analyst. Produce a concise SWOT analysis with exactly four sections titled Strengths, Weaknesses, Opportunities, and Threats, each a short bullet list."

// SWOT generates a SWOT analysis for a subject with one LLM call.
type SWOT struct {
	toolmanager.BaseTool
	provider agent.Provider
	model    string
}

// NewSWOT builds the swot tool. Configuration may override the model.
func NewSWOT(provider agent.Provider, model string, cfg toolmanager.ToolBuildConfig) (toolmanager.Tool, error) {
	if provider == nil {
		return nil, fmt.Errorf("swot requires an LLM provider")
	}
	if m, ok := cfg.Configuration["model"].(string); ok && m != "" {
		model = m
	}
	if model == "" {
		return nil, fmt.Errorf("swot requires a model")
	}
	return &SWOT{provider: provider, model: model}, nil
}

func (t *SWOT) Name() string { return "swot" }

func (t *SWOT) Description() toolmanager.ToolDescription {
	return toolmanager.ToolDescription{
		Name:        "swot",
		Description: "Generate a SWOT analysis (strengths, weaknesses, opportunities, threats) for a subject.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"subject": map[string]interface{}{
					"type":        "string",
					"description": "What to analyze",
				},
				"context": map[string]interface{}{
					"type":        "string",
					"description": "Extra background to ground the analysis in",
				},
			},
			"required":             []string{"subject"},
			"additionalProperties": false,
		},
	}
}

func (t *SWOT) EvaluationChecksForResponse(resp toolmanager.ToolCallResponse) []string {
	if !resp.Successful() {
		return nil
	}
	return []string{"swot output covers all four quadrants"}
}

func (t *SWOT) Run(ctx context.Context, call toolmanager.ToolCall) (toolmanager.ToolCallResponse, error) {
	subject, _ := call.Arguments["subject"].(string)
	if strings.TrimSpace(subject) == "" {
		return toolmanager.ToolCallResponse{}, fmt.Errorf("subject is required")
	}

	prompt := fmt.Sprintf("Produce a SWOT analysis for: %s", subject)
	if background, ok := call.Arguments["context"].(string); ok && background != "" {
		prompt += "\n\nBackground:\n" + background
	}

	completion, err := t.provider.Complete(ctx, agent.Request{
		Model:        t.model,
		SystemPrompt: swotSystemPrompt,
		Messages: []agent.Message{
			{Role: "user", Content: prompt},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return toolmanager.ToolCallResponse{}, fmt.Errorf("swot generation failed: %w", err)
	}

	return toolmanager.ToolCallResponse{
		ID:      call.ID,
		Name:    call.Name,
		Content: completion.Content,
	}, nil
}
