package agenttools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/quiver/internal/tracing"
	"github.com/harun/quiver/pkg/agent"
	"github.com/harun/quiver/pkg/toolmanager"
)

// Subagent delegates a task to a nested agent run and hands the turn over
// to it. The referenced runner must own its own tool manager; a manager is
// single-request state and cannot serve two runs at once.
type Subagent struct {
	toolmanager.BaseTool
	runner *RunnerRef
	config agent.RunConfig
	logger zerolog.Logger
}

// NewSubagent builds the subagent tool. Configuration may carry model,
// system_prompt, and max_turns for the nested run.
func NewSubagent(runner *RunnerRef, cfg toolmanager.ToolBuildConfig, logger zerolog.Logger) (toolmanager.Tool, error) {
	if runner == nil {
		return nil, fmt.Errorf("subagent requires a runner reference")
	}

	runConfig := agent.DefaultRunConfig()
	if m, ok := cfg.Configuration["model"].(string); ok && m != "" {
		runConfig.Model = m
	}
	if sp, ok := cfg.Configuration["system_prompt"].(string); ok && sp != "" {
		runConfig.SystemPrompt = sp
	}
	if turns := intConfig(cfg.Configuration, "max_turns", 0); turns > 0 {
		runConfig.MaxTurns = turns
	}

	return &Subagent{
		runner: runner,
		config: runConfig,
		logger: logger.With().Str("component", "subagent").Logger(),
	}, nil
}

func (t *Subagent) Name() string { return "subagent" }

func (t *Subagent) TakesControl() bool { return true }

func (t *Subagent) Description() toolmanager.ToolDescription {
	return toolmanager.ToolDescription{
		Name:        "subagent",
		Description: "Delegate a self-contained task to a nested agent. The nested agent's answer becomes the final response.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"task": map[string]interface{}{
					"type":        "string",
					"description": "Full task description for the nested agent",
				},
				"agent_id": map[string]interface{}{
					"type":        "string",
					"description": "Identifier for the nested agent, used in traces",
				},
			},
			"required":             []string{"task"},
			"additionalProperties": false,
		},
	}
}

func (t *Subagent) Prompt() string {
	return "Delegate to subagent only when a task is self-contained and benefits from a fresh context. State the task completely; the subagent cannot ask follow-ups."
}

func (t *Subagent) Run(ctx context.Context, call toolmanager.ToolCall) (toolmanager.ToolCallResponse, error) {
	task, _ := call.Arguments["task"].(string)
	if strings.TrimSpace(task) == "" {
		return toolmanager.ToolCallResponse{}, fmt.Errorf("task is required")
	}

	runner := t.runner.Get()
	if runner == nil {
		return toolmanager.ToolCallResponse{}, fmt.Errorf("subagent runner not configured")
	}

	agentID, _ := call.Arguments["agent_id"].(string)
	if agentID == "" {
		agentID = "subagent"
	}
	ctx = tracing.PropagateToSubAgent(ctx, agentID)

	t.logger.Info().Str("agent_id", agentID).Msg("Delegating to subagent")

	result, err := runner.RunWithContext(ctx, agent.RunParams{
		Prompt:  task,
		AgentID: agentID,
		Config:  t.config,
	})
	if err != nil {
		return toolmanager.ToolCallResponse{}, fmt.Errorf("subagent run failed: %w", err)
	}
	if result.Aborted {
		return toolmanager.ToolCallResponse{}, fmt.Errorf("subagent run aborted")
	}

	return toolmanager.ToolCallResponse{
		ID:      call.ID,
		Name:    call.Name,
		Content: result.Response,
	}, nil
}
