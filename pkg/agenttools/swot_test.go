package agenttools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/quiver/pkg/agent"
	"github.com/harun/quiver/pkg/toolmanager"
)

// cannedProvider returns a fixed completion and records the last request.
type cannedProvider struct {
	content string
	err     error
	last    agent.Request
}

func (p *cannedProvider) Name() string { return "canned" }

func (p *cannedProvider) Complete(ctx context.Context, req agent.Request) (*agent.Completion, error) {
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	return &agent.Completion{Content: p.content}, nil
}

func TestNewSWOT(t *testing.T) {
	t.Run("should require a provider", func(t *testing.T) {
		_, err := NewSWOT(nil, "gpt-4o", toolmanager.ToolBuildConfig{Name: "swot"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "provider")
	})

	t.Run("should require a model", func(t *testing.T) {
		_, err := NewSWOT(&cannedProvider{}, "", toolmanager.ToolBuildConfig{Name: "swot"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model")
	})

	t.Run("should let configuration override the model", func(t *testing.T) {
		tool, err := NewSWOT(&cannedProvider{}, "gpt-4o", toolmanager.ToolBuildConfig{
			Name:          "swot",
			Configuration: map[string]interface{}{"model": "gpt-4o-mini"},
		})
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", tool.(*SWOT).model)
	})
}

func TestSWOTRun(t *testing.T) {
	t.Run("should generate an analysis", func(t *testing.T) {
		provider := &cannedProvider{content: "Strengths: ...\nWeaknesses: ..."}
		tool, err := NewSWOT(provider, "gpt-4o", toolmanager.ToolBuildConfig{Name: "swot"})
		require.NoError(t, err)

		resp, err := tool.Run(context.Background(), toolmanager.ToolCall{
			ID:   "call-1",
			Name: "swot",
			Arguments: map[string]interface{}{
				"subject": "our CLI product",
				"context": "shrinking install base",
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "gpt-4o", provider.last.Model)
		assert.Contains(t, provider.last.Messages[0].Content, "our CLI product")
		assert.Contains(t, provider.last.Messages[0].Content, "shrinking install base")
		assert.NotEmpty(t, provider.last.SystemPrompt)
		assert.Contains(t, resp.Content, "Strengths")
	})

	t.Run("should reject a missing subject", func(t *testing.T) {
		tool, err := NewSWOT(&cannedProvider{}, "gpt-4o", toolmanager.ToolBuildConfig{Name: "swot"})
		require.NoError(t, err)

		_, err = tool.Run(context.Background(), toolmanager.ToolCall{
			ID:        "call-2",
			Name:      "swot",
			Arguments: map[string]interface{}{},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "subject is required")
	})

	t.Run("should surface provider failures", func(t *testing.T) {
		provider := &cannedProvider{err: fmt.Errorf("503 overloaded")}
		tool, err := NewSWOT(provider, "gpt-4o", toolmanager.ToolBuildConfig{Name: "swot"})
		require.NoError(t, err)

		_, err = tool.Run(context.Background(), toolmanager.ToolCall{
			ID:        "call-3",
			Name:      "swot",
			Arguments: map[string]interface{}{"subject": "anything"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "swot generation failed")
	})

	t.Run("should derive a check from success only", func(t *testing.T) {
		tool, err := NewSWOT(&cannedProvider{}, "gpt-4o", toolmanager.ToolBuildConfig{Name: "swot"})
		require.NoError(t, err)

		swot := tool.(*SWOT)
		assert.NotEmpty(t, swot.EvaluationChecksForResponse(toolmanager.ToolCallResponse{ID: "x"}))
		assert.Empty(t, swot.EvaluationChecksForResponse(toolmanager.ToolCallResponse{ID: "x", ErrorMessage: "boom"}))
	})
}
