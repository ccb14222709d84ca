package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/harun/quiver/internal/config"
	"github.com/harun/quiver/internal/logger"
	"github.com/harun/quiver/pkg/agent"
	"github.com/harun/quiver/pkg/agenttools"
	"github.com/harun/quiver/pkg/backend"
	"github.com/harun/quiver/pkg/history"
	"github.com/harun/quiver/pkg/mcp"
	"github.com/harun/quiver/pkg/toolmanager"
)

// runtime bundles the wired service graph one command invocation works
// against: backend client, MCP registry, tool manager, history store, and
// agent runner.
type runtime struct {
	cfg     *config.Config
	backend *backend.Client
	mcps    *mcp.Registry
	manager *toolmanager.Manager
	store   *history.Store
	runner  *agent.Runner

	// Nested dispatches from the subagent tool run here, never on manager:
	// a manager is not safe for concurrent use, and an outer fan-out is
	// still in flight while the subagent executes.
	subManager *toolmanager.Manager
	subRunner  *agent.Runner
}

// buildRuntime assembles the service graph from config. Construction order
// matters: the tool builders close over a runner reference before any
// runner exists, and the reference is bound last, to the dedicated
// subagent runner rather than the outer one.
func buildRuntime(ctx context.Context, cfg *config.Config, log *logger.Logger, ov toolmanager.Overrides) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	if cfg.Backend.BaseURL != "" {
		client, err := backend.NewClient(backend.Config{
			BaseURL: cfg.Backend.BaseURL,
			APIKey:  cfg.Backend.APIKey,
			Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		}, log.Zerolog())
		if err != nil {
			return nil, fmt.Errorf("failed to create backend client: %w", err)
		}
		rt.backend = client
	}

	profiles := authProfiles(cfg)
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no AI profiles configured")
	}
	factory := &agent.ProviderFactory{}
	provider, err := factory.NewProvider(profiles[0])
	if err != nil {
		return nil, err
	}

	runnerRef := &agenttools.RunnerRef{}
	deps := agenttools.Deps{
		Backend:  rt.backend,
		Provider: provider,
		Model:    cfg.Agent.Model,
		Runner:   runnerRef,
		Logger:   log.Component("tools"),
	}

	toolConfigs := cfg.Tools.Definitions
	if len(cfg.MCP.Servers) > 0 {
		registry, err := mcp.NewRegistry(cfg.MCP.Servers, cfg.MCP.RefreshSchedule, log.Component("mcp"))
		if err != nil {
			return nil, err
		}
		if err := registry.Start(ctx); err != nil {
			registry.Stop()
			return nil, fmt.Errorf("failed to start MCP registry: %w", err)
		}
		rt.mcps = registry
		deps.MCP = registry
	}

	builders := agenttools.Builders(deps)
	if rt.mcps != nil {
		mcpConfigs := rt.mcps.BuildConfigs()
		agenttools.AddMCPBuilders(builders, rt.mcps, mcpConfigs)
		merged := make([]toolmanager.ToolBuildConfig, 0, len(toolConfigs)+len(mcpConfigs))
		merged = append(merged, toolConfigs...)
		merged = append(merged, mcpConfigs...)
		toolConfigs = merged
	}

	manager, err := toolmanager.NewManager(toolmanager.ManagerConfig{
		Tools:        toolConfigs,
		MaxToolCalls: cfg.Tools.MaxToolCalls,
		APIMode:      toolmanager.APIMode(cfg.Tools.APIMode),
	}, builders, ov)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build tool manager: %w", err)
	}
	rt.manager = manager

	if cfg.History.Enabled {
		store, err := history.NewStore(history.Config{Path: cfg.History.Path}, log.Component("history"))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		rt.store = store
	}

	runner, err := agent.NewRunner(agent.Config{
		Manager:      manager,
		History:      rt.store,
		Logger:       log.Zerolog(),
		AuthProfiles: profiles,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.runner = runner

	// The subagent gets its own manager and runner: it must never re-enter
	// the outer manager mid-dispatch, and its active set must not offer the
	// subagent itself or nesting would recurse without bound.
	subOv := toolmanager.Overrides{
		DisabledTools: append(append([]string{}, ov.DisabledTools...), "subagent"),
	}
	subManager, err := toolmanager.NewManager(toolmanager.ManagerConfig{
		Tools:        toolConfigs,
		MaxToolCalls: cfg.Tools.MaxToolCalls,
		APIMode:      toolmanager.APIMode(cfg.Tools.APIMode),
	}, builders, subOv)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build subagent tool manager: %w", err)
	}
	rt.subManager = subManager

	subRunner, err := agent.NewRunner(agent.Config{
		Manager:      subManager,
		History:      rt.store,
		Logger:       log.Zerolog(),
		AuthProfiles: profiles,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.subRunner = subRunner
	runnerRef.Set(subRunner)

	return rt, nil
}

// Close releases the runtime's resources. In-flight dispatches on the old
// manager finish on their own; only external handles need tearing down.
func (rt *runtime) Close() {
	if rt.mcps != nil {
		rt.mcps.Stop()
	}
	if rt.store != nil {
		rt.store.Close()
	}
}

// authProfiles converts configured profiles, lowest priority number first.
// The first entry doubles as the provider for model-backed tools.
func authProfiles(cfg *config.Config) []agent.AuthProfile {
	profiles := make([]agent.AuthProfile, 0, len(cfg.AI.Profiles))
	for _, p := range cfg.AI.Profiles {
		profiles = append(profiles, agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Priority: p.Priority,
		})
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})
	return profiles
}

// runConfigFrom maps the agent section of the config onto run parameters.
func runConfigFrom(cfg *config.Config) agent.RunConfig {
	return agent.RunConfig{
		Model:        cfg.Agent.Model,
		Temperature:  cfg.Agent.Temperature,
		MaxTokens:    cfg.Agent.MaxTokens,
		SystemPrompt: cfg.Agent.SystemPrompt,
		MaxTurns:     cfg.Agent.MaxTurns,
		MaxRetries:   cfg.Agent.MaxRetries,
	}
}
