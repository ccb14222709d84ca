// Package agenttools provides the concrete tools shipped with the agent:
// web search and knowledge lookup through the backend API, SWOT generation,
// subagent delegation, and bridges to tools discovered on MCP servers.
// Builders assembles the constructor map the tool manager consumes.
package agenttools
