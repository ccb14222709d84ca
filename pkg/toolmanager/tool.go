package toolmanager

import "context"

// Tool is the capability contract every concrete tool satisfies. A tool
// instance is owned by one Manager for one request and is never shared
// across concurrent requests.
type Tool interface {
	// Name returns the stable identifier the model uses to call the tool.
	// Unique within one manager.
	Name() string

	// Kind categorizes where the tool's implementation lives.
	Kind() ToolKind

	// Description returns the model-facing definition of the tool.
	Description() ToolDescription

	// Prompt returns additional system-prompt guidance for the tool, or ""
	// when the description alone is enough.
	Prompt() string

	// EvaluationCheckList returns static checks an evaluator should apply
	// whenever this tool is active.
	EvaluationCheckList() []string

	// EvaluationChecksForResponse derives extra checks from one response of
	// this tool.
	EvaluationChecksForResponse(resp ToolCallResponse) []string

	// TakesControl reports whether a call to this tool hands the turn over
	// to the tool instead of returning results to the model.
	TakesControl() bool

	// Run executes one call. Errors and panics are normalized into a
	// ToolCallResponse by the dispatch layer, never propagated. Timeout
	// discipline is the tool's own responsibility; the dispatcher imposes
	// none.
	Run(ctx context.Context, call ToolCall) (ToolCallResponse, error)
}

// BaseTool supplies defaults for the optional parts of the Tool contract.
// Concrete tools embed it and implement Name, Description, and Run.
type BaseTool struct{}

func (BaseTool) Kind() ToolKind { return KindInternal }

func (BaseTool) Prompt() string { return "" }

func (BaseTool) EvaluationCheckList() []string { return nil }

func (BaseTool) EvaluationChecksForResponse(ToolCallResponse) []string { return nil }

func (BaseTool) TakesControl() bool { return false }
