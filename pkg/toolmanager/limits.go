package toolmanager

import "github.com/rs/zerolog/log"

// FilterToolCallsByMaxAllowed caps a batch of tool calls at maxToolCalls.
// Batches within the limit pass through untouched and unlogged; oversized
// batches are cut to the leading maxToolCalls entries in their original
// order, with a warning.
func FilterToolCallsByMaxAllowed(calls []ToolCall, maxToolCalls int) []ToolCall {
	if maxToolCalls < 0 {
		maxToolCalls = 0
	}
	if len(calls) <= maxToolCalls {
		return calls
	}

	log.Warn().
		Int("count", len(calls)).
		Int("max", maxToolCalls).
		Msg("Tool call count exceeds the allowed maximum; dropping the excess")

	return calls[:maxToolCalls]
}
