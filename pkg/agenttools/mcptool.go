package agenttools

import (
	"context"
	"fmt"

	"github.com/harun/quiver/pkg/toolmanager"
)

// MCPTool bridges one tool discovered on an MCP server into the manager's
// tool set. The config name may differ from the remote tool name when the
// registry prefixed it to resolve a collision.
type MCPTool struct {
	toolmanager.BaseTool
	caller      MCPCaller
	name        string
	server      string
	remote      string
	description string
	schema      map[string]interface{}
}

// NewMCPTool builds a bridge from a registry-produced build config.
func NewMCPTool(caller MCPCaller, cfg toolmanager.ToolBuildConfig) (toolmanager.Tool, error) {
	if caller == nil {
		return nil, fmt.Errorf("mcp tool requires an MCP caller")
	}

	server, _ := cfg.Configuration["server"].(string)
	remote, _ := cfg.Configuration["tool"].(string)
	if server == "" || remote == "" {
		return nil, fmt.Errorf("mcp tool %s needs server and tool in configuration", cfg.Name)
	}

	description, _ := cfg.Configuration["description"].(string)
	if description == "" {
		description = fmt.Sprintf("Tool %s provided by MCP server %s.", remote, server)
	}
	schema, _ := cfg.Configuration["inputSchema"].(map[string]interface{})

	return &MCPTool{
		caller:      caller,
		name:        cfg.Name,
		server:      server,
		remote:      remote,
		description: description,
		schema:      schema,
	}, nil
}

func (t *MCPTool) Name() string { return t.name }

func (t *MCPTool) Kind() toolmanager.ToolKind { return toolmanager.KindMCP }

func (t *MCPTool) Description() toolmanager.ToolDescription {
	return toolmanager.ToolDescription{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.schema,
	}
}

func (t *MCPTool) Run(ctx context.Context, call toolmanager.ToolCall) (toolmanager.ToolCallResponse, error) {
	content, err := t.caller.CallTool(ctx, t.server, t.remote, call.Arguments)
	if err != nil {
		return toolmanager.ToolCallResponse{}, err
	}

	return toolmanager.ToolCallResponse{
		ID:      call.ID,
		Name:    call.Name,
		Content: content,
	}, nil
}
