package toolmanager

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// BuildActiveTools resolves declared tool configs into the concrete tool set
// for one request.
//
// A config is instantiated when it is enabled and not named in disabledTools.
// When toolChoices is non-empty the set is narrowed to the named tools; this
// is the only way an exclusive tool opts in. When toolChoices is empty every
// exclusive tool is dropped. A choice matching no config is ignored.
//
// The result preserves declaration order and has unique names.
func BuildActiveTools(configs []ToolBuildConfig, builders Builders, disabledTools, toolChoices []string) ([]Tool, error) {
	disabled := toSet(disabledTools)
	chosen := toSet(toolChoices)

	tools := make([]Tool, 0, len(configs))
	built := make(map[string]bool, len(configs))

	for _, cfg := range configs {
		if !cfg.IsEnabled {
			continue
		}
		if disabled[cfg.Name] {
			log.Debug().Str("tool", cfg.Name).Msg("Tool disabled for this request")
			continue
		}
		if len(chosen) > 0 && !chosen[cfg.Name] {
			continue
		}
		if len(chosen) == 0 && cfg.IsExclusive {
			log.Debug().Str("tool", cfg.Name).Msg("Exclusive tool skipped without explicit selection")
			continue
		}

		build, ok := builders[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("no builder for tool config: %s", cfg.Name)
		}
		tool, err := build(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build tool %s: %w", cfg.Name, err)
		}
		if built[tool.Name()] {
			return nil, fmt.Errorf("duplicate tool name: %s", tool.Name())
		}
		built[tool.Name()] = true
		tools = append(tools, tool)
	}

	for _, choice := range toolChoices {
		if !built[choice] {
			log.Debug().Str("tool", choice).Msg("Tool choice matches no built tool")
		}
	}

	return tools, nil
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
