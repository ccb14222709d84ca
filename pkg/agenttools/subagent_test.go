package agenttools

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/quiver/pkg/agent"
	"github.com/harun/quiver/pkg/toolmanager"
)

// recordingRunner captures the params of the nested run it serves.
type recordingRunner struct {
	params agent.RunParams
	result agent.RunResult
	err    error
}

func (r *recordingRunner) RunWithContext(ctx context.Context, params agent.RunParams) (agent.RunResult, error) {
	r.params = params
	return r.result, r.err
}

func newSubagentTool(t *testing.T, ref *RunnerRef, cfg map[string]interface{}) toolmanager.Tool {
	t.Helper()
	tool, err := NewSubagent(ref, toolmanager.ToolBuildConfig{
		Name:          "subagent",
		Configuration: cfg,
	}, zerolog.Nop())
	require.NoError(t, err)
	return tool
}

func TestNewSubagent(t *testing.T) {
	t.Run("should require a runner reference", func(t *testing.T) {
		_, err := NewSubagent(nil, toolmanager.ToolBuildConfig{Name: "subagent"}, zerolog.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "runner reference")
	})

	t.Run("should apply configuration overrides", func(t *testing.T) {
		tool := newSubagentTool(t, &RunnerRef{}, map[string]interface{}{
			"model":     "gpt-4o-mini",
			"max_turns": float64(4),
		})

		sub := tool.(*Subagent)
		assert.Equal(t, "gpt-4o-mini", sub.config.Model)
		assert.Equal(t, 4, sub.config.MaxTurns)
	})
}

func TestSubagentTakesControl(t *testing.T) {
	tool := newSubagentTool(t, &RunnerRef{}, nil)
	assert.True(t, tool.TakesControl())
}

func TestSubagentRun(t *testing.T) {
	t.Run("should delegate and return the nested answer", func(t *testing.T) {
		runner := &recordingRunner{result: agent.RunResult{Response: "delegated answer"}}
		ref := &RunnerRef{}
		ref.Set(runner)

		tool := newSubagentTool(t, ref, nil)
		resp, err := tool.Run(context.Background(), toolmanager.ToolCall{
			ID:   "call-1",
			Name: "subagent",
			Arguments: map[string]interface{}{
				"task":     "summarize the retro notes",
				"agent_id": "retro-summarizer",
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "delegated answer", resp.Content)
		assert.Equal(t, "summarize the retro notes", runner.params.Prompt)
		assert.Equal(t, "retro-summarizer", runner.params.AgentID)
	})

	t.Run("should fail before the runner is bound", func(t *testing.T) {
		tool := newSubagentTool(t, &RunnerRef{}, nil)

		_, err := tool.Run(context.Background(), toolmanager.ToolCall{
			ID:        "call-2",
			Name:      "subagent",
			Arguments: map[string]interface{}{"task": "anything"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not configured")
	})

	t.Run("should reject a missing task", func(t *testing.T) {
		ref := &RunnerRef{}
		ref.Set(&recordingRunner{})

		tool := newSubagentTool(t, ref, nil)
		_, err := tool.Run(context.Background(), toolmanager.ToolCall{
			ID:        "call-3",
			Name:      "subagent",
			Arguments: map[string]interface{}{},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task is required")
	})

	t.Run("should surface nested run failures", func(t *testing.T) {
		ref := &RunnerRef{}
		ref.Set(&recordingRunner{err: fmt.Errorf("all auth profiles failed")})

		tool := newSubagentTool(t, ref, nil)
		_, err := tool.Run(context.Background(), toolmanager.ToolCall{
			ID:        "call-4",
			Name:      "subagent",
			Arguments: map[string]interface{}{"task": "anything"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "subagent run failed")
	})

	t.Run("should treat an aborted nested run as an error", func(t *testing.T) {
		ref := &RunnerRef{}
		ref.Set(&recordingRunner{result: agent.RunResult{Aborted: true}})

		tool := newSubagentTool(t, ref, nil)
		_, err := tool.Run(context.Background(), toolmanager.ToolCall{
			ID:        "call-5",
			Name:      "subagent",
			Arguments: map[string]interface{}{"task": "anything"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "aborted")
	})
}
