package agent

import (
	"strings"

	"github.com/harun/quiver/pkg/toolmanager"
)

// RunParams contains input parameters for one agent run.
type RunParams struct {
	Prompt  string    `json:"prompt"`
	RunID   string    `json:"run_id,omitempty"`
	AgentID string    `json:"agent_id,omitempty"`
	Config  RunConfig `json:"config"`
}

// RunConfig configures model behavior for a run.
type RunConfig struct {
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	MaxTurns     int     `json:"max_turns,omitempty"`
	MaxRetries   int     `json:"max_retries,omitempty"`
}

// RunResult is the outcome of one agent run.
type RunResult struct {
	RunID            string                 `json:"run_id"`
	Response         string                 `json:"response"`
	ToolCalls        []toolmanager.ToolCall `json:"tool_calls,omitempty"`
	Usage            *TokenUsage            `json:"usage,omitempty"`
	Turns            int                    `json:"turns"`
	TookControl      bool                   `json:"took_control,omitempty"`
	ControlTool      string                 `json:"control_tool,omitempty"`
	EvaluationChecks []string               `json:"evaluation_checks,omitempty"`
	Aborted          bool                   `json:"aborted,omitempty"`
}

// TokenUsage tracks token consumption across the run.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// add accumulates another turn's usage.
func (u *TokenUsage) add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Message is one conversation entry exchanged with a provider. Tool result
// messages carry the originating call ID in ToolCallID.
type Message struct {
	Role       string                 `json:"role"`
	Content    string                 `json:"content"`
	ToolCalls  []toolmanager.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
}

// AuthProfile holds credentials for one LLM provider account. Lower priority
// wins; failures push the profile into a growing cooldown.
type AuthProfile struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"`
	APIKey        string `json:"api_key"`
	BaseURL       string `json:"base_url,omitempty"`
	CooldownUntil *int64 `json:"cooldown_until,omitempty"`
	FailureCount  int    `json:"failure_count"`
	Priority      int    `json:"priority"`
}

// DefaultRunConfig returns a run configuration with sane defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Model:       "gpt-4o",
		Temperature: 0.7,
		MaxTokens:   4096,
		MaxTurns:    10,
		MaxRetries:  3,
	}
}

// IsRetryableError checks if an error is transient enough to retry.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// Network errors
	if strings.Contains(msg, "ECONNRESET") || strings.Contains(msg, "ETIMEDOUT") ||
		strings.Contains(msg, "connection refused") {
		return true
	}

	// Rate limits
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return true
	}

	// Server errors
	if strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504") {
		return true
	}

	return false
}
