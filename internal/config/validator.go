package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

var validProviders = map[string]bool{
	"openai":           true,
	"openai_responses": true,
	"anthropic":        true,
}

// backendTools names the built-in tools that call out to the remote tool
// backend and therefore need backend.base_url configured.
var backendTools = map[string]bool{
	"websearch": true,
	"knowledge": true,
}

// Validate checks whether the configuration can produce a working service.
// Called before serve and run; read-only commands skip it.
func (c *Config) Validate() error {
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}
	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if !validProviders[profile.Provider] {
			return fmt.Errorf("AI profile %s: invalid provider %q (must be: openai, openai_responses, anthropic)", profile.ID, profile.Provider)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
	}

	if c.Agent.Model == "" {
		return fmt.Errorf("agent model is required")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return fmt.Errorf("agent temperature must be between 0 and 2")
	}

	if err := c.validateTools(); err != nil {
		return err
	}

	if c.Gateway.Enabled {
		if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
			return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
		}
		if c.Gateway.SharedSecret == "" {
			return fmt.Errorf("gateway shared secret is required when the gateway is enabled")
		}
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
	}

	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.MaxToolCalls < 0 {
		return fmt.Errorf("max_tool_calls must be >= 0, got %d", c.Tools.MaxToolCalls)
	}
	switch c.Tools.APIMode {
	case "", "completions", "responses":
	default:
		return fmt.Errorf("invalid api_mode %q (must be: completions, responses)", c.Tools.APIMode)
	}

	seen := make(map[string]bool, len(c.Tools.Definitions))
	for i, def := range c.Tools.Definitions {
		if def.Name == "" {
			return fmt.Errorf("tool definition %d: name is required", i)
		}
		if seen[def.Name] {
			return fmt.Errorf("duplicate tool definition: %s", def.Name)
		}
		seen[def.Name] = true

		// Backend-served tools cannot be built without a backend endpoint.
		if def.IsEnabled && backendTools[def.Name] && c.Backend.BaseURL == "" {
			return fmt.Errorf("tool %s is enabled but backend.base_url is not set", def.Name)
		}
	}

	for _, server := range c.MCP.Servers {
		if server.Name == "" {
			return fmt.Errorf("mcp server name is required")
		}
		if server.Command == "" {
			return fmt.Errorf("mcp server %s: command is required", server.Name)
		}
	}

	return nil
}
