package agenttools

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/quiver/pkg/agent"
	"github.com/harun/quiver/pkg/backend"
	"github.com/harun/quiver/pkg/toolmanager"
)

// MCPCaller invokes tools on MCP servers by server name. *mcp.Registry
// satisfies it.
type MCPCaller interface {
	CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (string, error)
}

// RunnerHandle is the slice of the agent runner the subagent tool uses.
type RunnerHandle interface {
	RunWithContext(ctx context.Context, params agent.RunParams) (agent.RunResult, error)
}

// RunnerRef late-binds a runner. The subagent tool is built before the
// runner that serves it exists (the runner needs the tool manager, the
// manager needs the builders), so the host sets the reference afterwards
// and the tool resolves it per call.
type RunnerRef struct {
	mu     sync.RWMutex
	runner RunnerHandle
}

// Set installs the runner the reference resolves to.
func (r *RunnerRef) Set(runner RunnerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runner = runner
}

// Get returns the installed runner, or nil before Set.
func (r *RunnerRef) Get() RunnerHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runner
}

// Deps carries the collaborators the tool constructors close over.
type Deps struct {
	Backend  *backend.Client
	MCP      MCPCaller
	Provider agent.Provider
	Model    string
	Runner   *RunnerRef
	Logger   zerolog.Logger
}

// Builders assembles the constructor map for the tools this package
// provides. MCP-bridged tools are added separately with AddMCPBuilders once
// discovery has run.
func Builders(deps Deps) toolmanager.Builders {
	return toolmanager.Builders{
		"websearch": func(cfg toolmanager.ToolBuildConfig) (toolmanager.Tool, error) {
			return NewWebSearch(deps.Backend, cfg)
		},
		"knowledge": func(cfg toolmanager.ToolBuildConfig) (toolmanager.Tool, error) {
			return NewKnowledge(deps.Backend, cfg)
		},
		"swot": func(cfg toolmanager.ToolBuildConfig) (toolmanager.Tool, error) {
			return NewSWOT(deps.Provider, deps.Model, cfg)
		},
		"subagent": func(cfg toolmanager.ToolBuildConfig) (toolmanager.Tool, error) {
			return NewSubagent(deps.Runner, cfg, deps.Logger)
		},
	}
}

// MCPBuilder returns a constructor for one MCP-bridged tool config.
func MCPBuilder(caller MCPCaller) toolmanager.Builder {
	return func(cfg toolmanager.ToolBuildConfig) (toolmanager.Tool, error) {
		return NewMCPTool(caller, cfg)
	}
}

// AddMCPBuilders registers a builder for every discovered MCP tool config.
func AddMCPBuilders(builders toolmanager.Builders, caller MCPCaller, configs []toolmanager.ToolBuildConfig) {
	for _, cfg := range configs {
		builders[cfg.Name] = MCPBuilder(caller)
	}
}
