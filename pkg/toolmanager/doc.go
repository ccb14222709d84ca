// Package toolmanager resolves, bounds, and dispatches model-issued tool calls.
//
// Invariants:
// - Tool names are unique within one manager; lookup by name is O(1).
// - Every submitted ToolCall yields exactly one ToolCallResponse, whether the
//   tool exists, succeeds, returns an error, or panics.
// - An exclusive tool joins the active set only when explicitly named in the
//   request's tool choices.
// - Dispatch output order always matches input order, regardless of the order
//   in which individual calls complete.
//
// A Manager is built once per request from declared tool configurations plus
// request-scoped overrides, and must not be shared across concurrent
// requests. Its mutable state (forced tool choices, the evaluation-check
// accumulator) is only touched between dispatch rounds, never during one.
//
// Usage:
//
//	mgr, _ := toolmanager.NewManager(cfg, builders, toolmanager.Overrides{})
//	responses := mgr.ExecuteSelectedTools(ctx, calls)
package toolmanager
