package toolmanager

// ToolKind categorizes where a tool's implementation lives.
type ToolKind string

const (
	// KindInternal marks tools implemented inside this process.
	KindInternal ToolKind = "internal"
	// KindMCP marks tools bridged from an MCP server.
	KindMCP ToolKind = "mcp"
	// KindOpenAIBuiltin marks tools hosted natively by the provider.
	KindOpenAIBuiltin ToolKind = "openai_builtin"
)

// FilterToolCalls keeps only the calls whose target tool belongs to one of
// the requested kinds. In responses mode a call naming a native builtin is
// recognized as KindOpenAIBuiltin even when no local tool backs it.
func (m *Manager) FilterToolCalls(calls []ToolCall, kinds ...ToolKind) []ToolCall {
	if len(kinds) == 0 {
		return nil
	}
	wanted := make(map[ToolKind]bool, len(kinds))
	for _, kind := range kinds {
		wanted[kind] = true
	}

	filtered := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		if tool, ok := m.byName[call.Name]; ok {
			if wanted[tool.Kind()] {
				filtered = append(filtered, call)
			}
			continue
		}
		if m.mode == APIModeResponses && wanted[KindOpenAIBuiltin] && IsResponsesBuiltin(call.Name) {
			filtered = append(filtered, call)
		}
	}
	return filtered
}
