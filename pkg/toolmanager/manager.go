package toolmanager

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/quiver/internal/observability"
	"github.com/harun/quiver/internal/tracing"
)

// Manager owns the active tool set for one request and drives the dispatch
// pipeline. It is not safe for concurrent use: forced tool choices and the
// evaluation-check accumulator may only change between dispatch rounds.
type Manager struct {
	maxToolCalls int
	mode         APIMode

	tools  []Tool
	byName map[string]Tool

	exclusive map[string]bool
	schemas   map[string]*gojsonschema.Schema

	toolChoices []string
	checks      []string
	checkSeen   map[string]bool

	progress    ProgressReporter
	traceErrors bool
}

// NewManager resolves the active tool set from cfg and the request-scoped
// overrides and returns a ready manager. Construction fails on invalid
// config, a config without a registered builder, or a builder error.
func NewManager(cfg ManagerConfig, builders Builders, ov Overrides) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tool manager config: %w", err)
	}

	mode := cfg.APIMode
	if mode == "" {
		mode = APIModeCompletions
	}

	tools, err := BuildActiveTools(cfg.Tools, builders, ov.DisabledTools, ov.ToolChoices)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		maxToolCalls: cfg.MaxToolCalls,
		mode:         mode,
		tools:        tools,
		byName:       make(map[string]Tool, len(tools)),
		exclusive:    make(map[string]bool),
		toolChoices:  append([]string(nil), ov.ToolChoices...),
		checkSeen:    make(map[string]bool),
		traceErrors:  true,
	}
	for _, tool := range tools {
		m.byName[tool.Name()] = tool
	}
	for _, tc := range cfg.Tools {
		if tc.IsExclusive {
			m.exclusive[tc.Name] = true
		}
	}
	m.compileSchemas()

	log.Info().
		Int("tools", len(tools)).
		Int("max_tool_calls", cfg.MaxToolCalls).
		Str("api_mode", string(mode)).
		Msg("Tool manager ready")

	return m, nil
}

// SetProgressReporter attaches an optional reporter notified from inside the
// dispatch fan-out. Must be set before the first dispatch.
func (m *Manager) SetProgressReporter(reporter ProgressReporter) {
	m.progress = reporter
}

// SetErrorTracing toggles recording of failure traces in response DebugInfo.
// Enabled by default.
func (m *Manager) SetErrorTracing(enabled bool) {
	m.traceErrors = enabled
}

// APIMode returns the wire convention this manager encodes tool selection in.
func (m *Manager) APIMode() APIMode {
	return m.mode
}

// Tools returns the active tools in declaration order. The slice is the
// caller's to keep.
func (m *Manager) Tools() []Tool {
	tools := make([]Tool, len(m.tools))
	copy(tools, m.tools)
	return tools
}

// ToolByName returns the active tool with the given name.
func (m *Manager) ToolByName(name string) (Tool, error) {
	tool, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool, nil
}

// ToolDefinitions projects the model-facing definition of every active tool.
func (m *Manager) ToolDefinitions() []ToolDescription {
	defs := make([]ToolDescription, 0, len(m.tools))
	for _, tool := range m.tools {
		defs = append(defs, tool.Description())
	}
	return defs
}

// ToolPrompts collects the non-empty prompt snippets of the active tools, in
// declaration order.
func (m *Manager) ToolPrompts() []string {
	prompts := make([]string, 0, len(m.tools))
	for _, tool := range m.tools {
		if prompt := tool.Prompt(); prompt != "" {
			prompts = append(prompts, prompt)
		}
	}
	return prompts
}

// ExclusiveTools returns the active tools marked exclusive in their build
// config.
func (m *Manager) ExclusiveTools() []Tool {
	tools := make([]Tool, 0)
	for _, tool := range m.tools {
		if m.exclusive[tool.Name()] {
			tools = append(tools, tool)
		}
	}
	return tools
}

// AddForcedTool appends name to the request's tool choices so the model is
// compelled to call it on the next turn. The name must resolve to an active
// tool.
func (m *Manager) AddForcedTool(name string) error {
	if _, ok := m.byName[name]; !ok {
		return fmt.Errorf("tool not found: %s", name)
	}
	m.toolChoices = append(m.toolChoices, name)
	observability.RecordForcedTool(string(m.mode))
	log.Debug().Str("tool", name).Msg("Tool forced for the next model turn")
	return nil
}

// ForcedTools encodes every current tool choice in the manager's API mode.
func (m *Manager) ForcedTools() []ForcedTool {
	forced := make([]ForcedTool, 0, len(m.toolChoices))
	for _, name := range m.toolChoices {
		forced = append(forced, ConvertToForcedTool(name, m.mode))
	}
	return forced
}

// DoesAToolTakeControl reports whether any call targets a tool that takes
// over the turn instead of returning results to the model.
func (m *Manager) DoesAToolTakeControl(calls []ToolCall) bool {
	for _, call := range calls {
		if tool, ok := m.byName[call.Name]; ok && tool.TakesControl() {
			return true
		}
	}
	return false
}

// EvaluationCheckList returns the active tools' static checks plus every
// check accumulated from responses so far, deduplicated in first-seen order.
func (m *Manager) EvaluationCheckList() []string {
	seen := make(map[string]bool, len(m.checks))
	checks := make([]string, 0, len(m.checks))
	for _, tool := range m.tools {
		for _, check := range tool.EvaluationCheckList() {
			if !seen[check] {
				seen[check] = true
				checks = append(checks, check)
			}
		}
	}
	for _, check := range m.checks {
		if !seen[check] {
			seen[check] = true
			checks = append(checks, check)
		}
	}
	return checks
}

// ExecuteSelectedTools runs the dispatch pipeline for one batch of calls:
// duplicate removal, max-call enforcement, concurrent execution, and
// DebugInfo enrichment. It always returns one response per surviving call
// and never panics through. A dispatch ID already present on the context is
// reused so callers can correlate their own records with dispatch logs.
func (m *Manager) ExecuteSelectedTools(ctx context.Context, calls []ToolCall) []ToolCallResponse {
	dispatchID := DispatchIDFromContext(ctx)
	if dispatchID == "" {
		dispatchID, _ = gonanoid.New()
		ctx = WithDispatchID(ctx, dispatchID)
	}

	ctx, span := tracing.StartSpan(ctx, "toolmanager", "toolmanager.execute",
		attribute.String("dispatch_id", dispatchID),
		attribute.Int("tool_calls", len(calls)),
	)
	defer span.End()

	start := time.Now()

	deduped := FilterDuplicateToolCalls(calls)
	if dropped := len(calls) - len(deduped); dropped > 0 {
		observability.RecordToolCallsDropped("duplicate", dropped)
		log.Debug().
			Str("dispatch_id", dispatchID).
			Int("dropped", dropped).
			Msg("Duplicate tool calls removed")
	}

	bounded := FilterToolCallsByMaxAllowed(deduped, m.maxToolCalls)
	if dropped := len(deduped) - len(bounded); dropped > 0 {
		observability.RecordToolCallsDropped("max_tool_calls", dropped)
	}

	responses := executeParallel(ctx, m.tools, bounded, execOptions{
		traceErrors: m.traceErrors,
		validate:    m.validateArguments,
		progress:    m.progress,
	})

	forced := toSet(m.toolChoices)
	for i := range responses {
		resp := &responses[i]
		resp.SetDebug("is_exclusive", m.exclusive[resp.Name])
		resp.SetDebug("is_forced", forced[resp.Name])
	}

	m.accumulateChecks(responses)

	observability.RecordDispatch(len(bounded), time.Since(start))
	log.Info().
		Str("dispatch_id", dispatchID).
		Int("requested", len(calls)).
		Int("executed", len(bounded)).
		Dur("duration", time.Since(start)).
		Msg("Tool dispatch complete")

	return responses
}

// accumulateChecks folds response-derived evaluation checks into the
// manager's accumulator, keeping first-seen order.
func (m *Manager) accumulateChecks(responses []ToolCallResponse) {
	for _, resp := range responses {
		tool, ok := m.byName[resp.Name]
		if !ok {
			continue
		}
		for _, check := range tool.EvaluationChecksForResponse(resp) {
			if !m.checkSeen[check] {
				m.checkSeen[check] = true
				m.checks = append(m.checks, check)
			}
		}
	}
}
