package toolmanager

import "fmt"

// ToolBuildConfig declares one tool for a deployment. Declared once and
// immutable for a request's lifetime.
type ToolBuildConfig struct {
	Name            string                 `json:"name" mapstructure:"name"`
	Configuration   map[string]interface{} `json:"configuration,omitempty" mapstructure:"configuration"`
	DisplayName     string                 `json:"display_name,omitempty" mapstructure:"display_name"`
	Icon            string                 `json:"icon,omitempty" mapstructure:"icon"`
	SelectionPolicy string                 `json:"selection_policy,omitempty" mapstructure:"selection_policy"`
	IsExclusive     bool                   `json:"is_exclusive,omitempty" mapstructure:"is_exclusive"`
	IsEnabled       bool                   `json:"is_enabled" mapstructure:"is_enabled"`
}

// ManagerConfig configures one Manager instance.
type ManagerConfig struct {
	Tools        []ToolBuildConfig `json:"tools" mapstructure:"tools"`
	MaxToolCalls int               `json:"max_tool_calls" mapstructure:"max_tool_calls"`
	APIMode      APIMode           `json:"api_mode,omitempty" mapstructure:"api_mode"`
}

// Validate checks the config for values that cannot produce a working manager.
func (c ManagerConfig) Validate() error {
	if c.MaxToolCalls < 0 {
		return fmt.Errorf("max_tool_calls must be >= 0, got %d", c.MaxToolCalls)
	}
	switch c.APIMode {
	case "", APIModeCompletions, APIModeResponses:
	default:
		return fmt.Errorf("unknown api_mode: %s", c.APIMode)
	}
	seen := make(map[string]bool, len(c.Tools))
	for _, tc := range c.Tools {
		if tc.Name == "" {
			return fmt.Errorf("tool config name cannot be empty")
		}
		if seen[tc.Name] {
			return fmt.Errorf("duplicate tool config: %s", tc.Name)
		}
		seen[tc.Name] = true
	}
	return nil
}

// Overrides carries the request-scoped adjustments to the declared tool set.
// Both lists are optional and default empty.
type Overrides struct {
	DisabledTools []string `json:"disabled_tools,omitempty" mapstructure:"disabled_tools"`
	ToolChoices   []string `json:"tool_choices,omitempty" mapstructure:"tool_choices"`
}

// Builder constructs a tool instance from its build config. Hosts close over
// whatever collaborators the tool needs when assembling the Builders map.
type Builder func(cfg ToolBuildConfig) (Tool, error)

// Builders maps a config name to the constructor for that tool type. The
// host application assembles it explicitly and passes it to NewManager.
type Builders map[string]Builder
