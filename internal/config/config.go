package config

import (
	"encoding/json"

	"github.com/harun/quiver/pkg/mcp"
	"github.com/harun/quiver/pkg/toolmanager"
)

// Config is the main Quiver configuration.
type Config struct {
	// Data directory, defaults to ~/.quiver
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// AI provider profiles
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Agent run defaults
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Tool declarations and dispatch limits
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Remote tool backend (web search, knowledge base)
	Backend BackendConfig `json:"backend" mapstructure:"backend"`

	// MCP servers to bridge
	MCP MCPConfig `json:"mcp" mapstructure:"mcp"`

	// Progress gateway
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Call history store
	History HistoryConfig `json:"history" mapstructure:"history"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Audit trail
	Audit AuditConfig `json:"audit" mapstructure:"audit"`
}

// AIConfig holds AI provider configuration.
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile is one LLM provider account. Lower priority is tried first.
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // openai, openai_responses, anthropic
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// AgentConfig holds default run parameters for the agent loop.
type AgentConfig struct {
	Model        string  `json:"model" mapstructure:"model"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
	SystemPrompt string  `json:"system_prompt" mapstructure:"system_prompt"`
	MaxTurns     int     `json:"max_turns" mapstructure:"max_turns"`
	MaxRetries   int     `json:"max_retries" mapstructure:"max_retries"`
}

// ToolsConfig declares the deployment's tools and dispatch limits.
type ToolsConfig struct {
	Definitions  []toolmanager.ToolBuildConfig `json:"definitions" mapstructure:"definitions"`
	MaxToolCalls int                           `json:"max_tool_calls" mapstructure:"max_tool_calls"`
	APIMode      string                        `json:"api_mode" mapstructure:"api_mode"` // completions, responses
}

// BackendConfig points at the remote tool backend.
type BackendConfig struct {
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// MCPConfig declares the MCP servers whose tools are bridged in.
type MCPConfig struct {
	Servers []mcp.ServerConfig `json:"servers" mapstructure:"servers"`
	// RefreshSchedule is a five-field cron expression; empty disables
	// scheduled tool rediscovery.
	RefreshSchedule string `json:"refresh_schedule" mapstructure:"refresh_schedule"`
}

// GatewayConfig holds progress gateway configuration.
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// HistoryConfig holds call-history store configuration.
type HistoryConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	DebugExport bool `json:"debug_export" mapstructure:"debug_export"`
}

// AuditConfig holds the JSONL audit trail configuration.
type AuditConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:       "gpt-4o",
			Temperature: 0.7,
			MaxTokens:   4096,
			MaxTurns:    10,
			MaxRetries:  3,
		},
		Tools: ToolsConfig{
			MaxToolCalls: 10,
			APIMode:      "completions",
			Definitions: []toolmanager.ToolBuildConfig{
				{Name: "websearch", DisplayName: "Web Search", IsEnabled: true},
				{Name: "knowledge", DisplayName: "Knowledge Base", IsEnabled: true},
				{Name: "swot", DisplayName: "SWOT Analysis", IsEnabled: true},
				{Name: "subagent", DisplayName: "Sub-Agent", IsEnabled: true, IsExclusive: true},
			},
		},
		Backend: BackendConfig{
			TimeoutSeconds: 30,
		},
		MCP: MCPConfig{
			RefreshSchedule: "*/30 * * * *",
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config with secrets redacted.
func (c *Config) String() string {
	clone := *c
	clone.AI.Profiles = make([]AIProfile, len(c.AI.Profiles))
	for i, profile := range c.AI.Profiles {
		profile.APIKey = "[REDACTED]"
		clone.AI.Profiles[i] = profile
	}
	if clone.Backend.APIKey != "" {
		clone.Backend.APIKey = "[REDACTED]"
	}
	if clone.Gateway.SharedSecret != "" {
		clone.Gateway.SharedSecret = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(&clone, "", "  ")
	return string(data)
}
