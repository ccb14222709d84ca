package toolmanager

import (
	"encoding/json"
	"fmt"
)

// FilterDuplicateToolCalls removes value-identical repeated calls, keeping
// the first occurrence and preserving the order of survivors. Two calls are
// duplicates iff (ID, Name, Arguments) compare equal by value; arguments are
// compared structurally, so nil and an empty map stay distinct. Pure
// function, no side effects.
func FilterDuplicateToolCalls(calls []ToolCall) []ToolCall {
	if len(calls) < 2 {
		return calls
	}

	seen := make(map[string]bool, len(calls))
	unique := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		key := dedupeKey(call)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, call)
	}
	return unique
}

// dedupeKey canonicalizes a call for value comparison. encoding/json emits
// map keys in sorted order, so structurally equal arguments produce equal
// keys; a nil map marshals to "null", keeping it distinct from "{}".
func dedupeKey(call ToolCall) string {
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		args = []byte(fmt.Sprintf("%v", call.Arguments))
	}
	return fmt.Sprintf("%s\x1f%s\x1f%s", call.ID, call.Name, args)
}
