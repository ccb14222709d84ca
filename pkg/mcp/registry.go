package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/quiver/internal/observability"
	"github.com/harun/quiver/pkg/toolmanager"
)

// ServerConfig declares one MCP server to bridge.
type ServerConfig struct {
	Name    string   `json:"name" mapstructure:"name"`
	Command string   `json:"command" mapstructure:"command"`
	Args    []string `json:"args,omitempty" mapstructure:"args"`
}

// DiscoveredTool pairs a tool descriptor with the server that advertised it.
// ConfigName is the collision-free name the tool is registered under.
type DiscoveredTool struct {
	Server     string
	ConfigName string
	Descriptor ToolDescriptor
}

// Registry owns the MCP server clients and a cache of their advertised
// tools. Refresh repopulates the cache; a cron schedule can keep it fresh
// while the process runs.
type Registry struct {
	clients map[string]*Client
	order   []string
	logger  zerolog.Logger

	mu         sync.RWMutex
	discovered []DiscoveredTool

	refreshSpec string
	scheduler   *cron.Cron
}

// NewRegistry creates a registry for the given servers. refreshSpec is a
// standard five-field cron expression; empty disables scheduled refresh.
func NewRegistry(configs []ServerConfig, refreshSpec string, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		clients:     make(map[string]*Client, len(configs)),
		logger:      logger.With().Str("component", "mcp").Logger(),
		refreshSpec: refreshSpec,
	}

	for _, cfg := range configs {
		if strings.TrimSpace(cfg.Name) == "" {
			return nil, fmt.Errorf("mcp server name is required")
		}
		if strings.TrimSpace(cfg.Command) == "" {
			return nil, fmt.Errorf("mcp server %s: command is required", cfg.Name)
		}
		if _, exists := r.clients[cfg.Name]; exists {
			return nil, fmt.Errorf("duplicate mcp server: %s", cfg.Name)
		}
		r.clients[cfg.Name] = NewClient(cfg.Name, cfg.Command, cfg.Args)
		r.order = append(r.order, cfg.Name)
	}

	return r, nil
}

// Start performs the initial discovery and, when a refresh schedule is
// configured, starts the cron scheduler that repeats it.
func (r *Registry) Start(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		return err
	}

	if r.refreshSpec == "" {
		return nil
	}

	r.scheduler = cron.New()
	_, err := r.scheduler.AddFunc(r.refreshSpec, func() {
		if err := r.Refresh(context.Background()); err != nil {
			r.logger.Warn().Err(err).Msg("Scheduled MCP tool refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid mcp refresh schedule %q: %w", r.refreshSpec, err)
	}
	r.scheduler.Start()

	r.logger.Info().Str("schedule", r.refreshSpec).Msg("MCP tool refresh scheduled")
	return nil
}

// Refresh re-fetches tool descriptors from every server. A server that fails
// keeps its previous descriptors; other servers still refresh.
func (r *Registry) Refresh(ctx context.Context) error {
	fresh := make(map[string][]ToolDescriptor, len(r.order))
	var failed []string

	for _, name := range r.order {
		client := r.clients[name]
		tools, err := client.ListTools(ctx)
		if err != nil {
			r.logger.Warn().
				Str("server", name).
				Err(err).
				Msg("MCP tool discovery failed; keeping cached descriptors")
			failed = append(failed, name)
			continue
		}
		fresh[name] = tools
		observability.SetMCPToolsDiscovered(name, len(tools))
		r.logger.Info().
			Str("server", name).
			Int("tools", len(tools)).
			Msg("MCP tools discovered")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make(map[string][]ToolDescriptor, len(r.order))
	for _, dt := range r.discovered {
		kept[dt.Server] = append(kept[dt.Server], dt.Descriptor)
	}

	r.discovered = r.discovered[:0]
	seen := make(map[string]bool)
	for _, name := range r.order {
		descriptors, ok := fresh[name]
		if !ok {
			descriptors = kept[name]
		}
		for _, desc := range descriptors {
			if desc.Name == "" {
				continue
			}
			configName := desc.Name
			if seen[configName] {
				configName = fmt.Sprintf("%s_%s", name, desc.Name)
			}
			seen[configName] = true
			r.discovered = append(r.discovered, DiscoveredTool{
				Server:     name,
				ConfigName: configName,
				Descriptor: desc,
			})
		}
	}

	if len(failed) == len(r.order) && len(r.order) > 0 {
		return fmt.Errorf("mcp discovery failed for all servers: %s", strings.Join(failed, ", "))
	}
	return nil
}

// Tools returns a snapshot of the discovered tools.
func (r *Registry) Tools() []DiscoveredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]DiscoveredTool, len(r.discovered))
	copy(tools, r.discovered)
	return tools
}

// BuildConfigs projects every discovered tool into a tool build config whose
// Configuration carries the server and original tool name for the bridge.
func (r *Registry) BuildConfigs() []toolmanager.ToolBuildConfig {
	tools := r.Tools()

	configs := make([]toolmanager.ToolBuildConfig, 0, len(tools))
	for _, dt := range tools {
		configs = append(configs, toolmanager.ToolBuildConfig{
			Name:      dt.ConfigName,
			IsEnabled: true,
			Configuration: map[string]interface{}{
				"server":      dt.Server,
				"tool":        dt.Descriptor.Name,
				"description": dt.Descriptor.Description,
				"inputSchema": dt.Descriptor.InputSchema,
			},
		})
	}
	return configs
}

// Client returns the client for a server name.
func (r *Registry) Client(server string) (*Client, error) {
	client, ok := r.clients[server]
	if !ok {
		return nil, fmt.Errorf("mcp server not found: %s", server)
	}
	return client, nil
}

// CallTool invokes a tool on the named server.
func (r *Registry) CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (string, error) {
	client, err := r.Client(server)
	if err != nil {
		return "", err
	}
	return client.CallTool(ctx, tool, args)
}

// Stop halts the refresh scheduler and every server process.
func (r *Registry) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
	for _, name := range r.order {
		if err := r.clients[name].Stop(); err != nil {
			r.logger.Warn().Str("server", name).Err(err).Msg("Failed to stop MCP server")
		}
	}
}
