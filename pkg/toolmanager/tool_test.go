package toolmanager

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

// stubTool is a configurable Tool used across the package tests.
type stubTool struct {
	BaseTool
	name         string
	kind         ToolKind
	description  string
	parameters   map[string]interface{}
	prompt       string
	checks       []string
	checksFor    func(resp ToolCallResponse) []string
	takesControl bool
	run          func(ctx context.Context, call ToolCall) (ToolCallResponse, error)
}

func (s *stubTool) Name() string { return s.name }

func (s *stubTool) Kind() ToolKind {
	if s.kind == "" {
		return KindInternal
	}
	return s.kind
}

func (s *stubTool) Description() ToolDescription {
	desc := s.description
	if desc == "" {
		desc = "stub tool"
	}
	return ToolDescription{Name: s.name, Description: desc, Parameters: s.parameters}
}

func (s *stubTool) Prompt() string { return s.prompt }

func (s *stubTool) EvaluationCheckList() []string { return s.checks }

func (s *stubTool) EvaluationChecksForResponse(resp ToolCallResponse) []string {
	if s.checksFor == nil {
		return nil
	}
	return s.checksFor(resp)
}

func (s *stubTool) TakesControl() bool { return s.takesControl }

func (s *stubTool) Run(ctx context.Context, call ToolCall) (ToolCallResponse, error) {
	if s.run == nil {
		return ToolCallResponse{ID: call.ID, Name: call.Name, Content: "ok"}, nil
	}
	return s.run(ctx, call)
}

// echoTool returns a stub that reports its own name as content.
func echoTool(name string) *stubTool {
	return &stubTool{
		name: name,
		run: func(ctx context.Context, call ToolCall) (ToolCallResponse, error) {
			return ToolCallResponse{ID: call.ID, Name: call.Name, Content: name}, nil
		},
	}
}

// stubBuilders registers each tool under its own name.
func stubBuilders(tools ...*stubTool) Builders {
	builders := make(Builders, len(tools))
	for _, tool := range tools {
		tool := tool
		builders[tool.name] = func(cfg ToolBuildConfig) (Tool, error) {
			return tool, nil
		}
	}
	return builders
}

// progressRecorder collects the progress notifications emitted during a
// dispatch. Safe for the concurrent calls the fan-out makes.
type progressRecorder struct {
	mu       sync.Mutex
	started  []ToolCall
	finished []ToolCallResponse
}

func (r *progressRecorder) ToolCallStarted(call ToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, call)
}

func (r *progressRecorder) ToolCallFinished(resp ToolCallResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, resp)
}

func (r *progressRecorder) startedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.started))
	for _, call := range r.started {
		ids = append(ids, call.ID)
	}
	return ids
}

func (r *progressRecorder) finishedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.finished))
	for _, resp := range r.finished {
		ids = append(ids, resp.ID)
	}
	return ids
}

// captureLogs redirects the package-level logger into a buffer for the test.
// The returned buffer must only be read after all dispatch goroutines have
// settled.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(zerolog.SyncWriter(&buf))
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestBaseToolDefaults(t *testing.T) {
	base := BaseTool{}

	assert.Equal(t, KindInternal, base.Kind())
	assert.Empty(t, base.Prompt())
	assert.Nil(t, base.EvaluationCheckList())
	assert.Nil(t, base.EvaluationChecksForResponse(ToolCallResponse{}))
	assert.False(t, base.TakesControl())
}

func TestToolCallResponseSuccessful(t *testing.T) {
	assert.True(t, ToolCallResponse{}.Successful())
	assert.True(t, ToolCallResponse{Content: "done"}.Successful())
	assert.False(t, ToolCallResponse{ErrorMessage: "boom"}.Successful())
}

func TestToolCallResponseSetDebug(t *testing.T) {
	var resp ToolCallResponse
	resp.SetDebug("is_forced", true)
	resp.SetDebug("is_exclusive", false)

	assert.Equal(t, true, resp.DebugInfo["is_forced"])
	assert.Equal(t, false, resp.DebugInfo["is_exclusive"])
}
