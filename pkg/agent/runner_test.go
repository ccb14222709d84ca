package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/quiver/pkg/history"
	"github.com/harun/quiver/pkg/toolmanager"
)

// fakeTool implements toolmanager.Tool for runner tests.
type fakeTool struct {
	toolmanager.BaseTool
	name         string
	prompt       string
	checks       []string
	takesControl bool
	runs         atomic.Int32
	run          func(ctx context.Context, call toolmanager.ToolCall) (toolmanager.ToolCallResponse, error)
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Description() toolmanager.ToolDescription {
	return toolmanager.ToolDescription{Name: f.name, Description: "fake " + f.name}
}

func (f *fakeTool) Prompt() string { return f.prompt }

func (f *fakeTool) EvaluationCheckList() []string { return f.checks }

func (f *fakeTool) TakesControl() bool { return f.takesControl }

func (f *fakeTool) Run(ctx context.Context, call toolmanager.ToolCall) (toolmanager.ToolCallResponse, error) {
	f.runs.Add(1)
	if f.run == nil {
		return toolmanager.ToolCallResponse{ID: call.ID, Name: call.Name, Content: "ok"}, nil
	}
	return f.run(ctx, call)
}

// scriptedProvider replays canned completions in order and records every
// request it receives. Past the end of the script it answers with plain text.
type scriptedProvider struct {
	mu       sync.Mutex
	provider string
	script   []scriptedTurn
	requests []Request
}

type scriptedTurn struct {
	completion *Completion
	err        error
}

func (p *scriptedProvider) Name() string {
	if p.provider == "" {
		return "scripted"
	}
	return p.provider
}

func (p *scriptedProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)

	i := len(p.requests) - 1
	if i >= len(p.script) {
		return &Completion{Content: "done"}, nil
	}
	turn := p.script[i]
	if turn.err != nil {
		return nil, turn.err
	}
	completion := *turn.completion
	return &completion, nil
}

func (p *scriptedProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) request(i int) Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

// fakeCreator hands out pre-built providers keyed by profile ID.
type fakeCreator struct {
	providers map[string]Provider
}

func (f *fakeCreator) NewProvider(profile AuthProfile) (Provider, error) {
	provider, ok := f.providers[profile.ID]
	if !ok {
		return nil, fmt.Errorf("no provider for profile %s", profile.ID)
	}
	return provider, nil
}

func newRunnerManager(t *testing.T, tools ...toolmanager.Tool) *toolmanager.Manager {
	t.Helper()

	configs := make([]toolmanager.ToolBuildConfig, 0, len(tools))
	builders := toolmanager.Builders{}
	for _, tool := range tools {
		tool := tool
		configs = append(configs, toolmanager.ToolBuildConfig{Name: tool.Name(), IsEnabled: true})
		builders[tool.Name()] = func(toolmanager.ToolBuildConfig) (toolmanager.Tool, error) {
			return tool, nil
		}
	}

	manager, err := toolmanager.NewManager(toolmanager.ManagerConfig{
		Tools:        configs,
		MaxToolCalls: 10,
	}, builders, toolmanager.Overrides{})
	require.NoError(t, err)
	return manager
}

func newTestRunner(t *testing.T, manager *toolmanager.Manager, provider Provider, profiles ...AuthProfile) *Runner {
	t.Helper()

	if len(profiles) == 0 {
		profiles = []AuthProfile{{ID: "primary", Provider: "openai", APIKey: "test-key", Priority: 1}}
	}

	creator := &fakeCreator{providers: map[string]Provider{}}
	for _, profile := range profiles {
		creator.providers[profile.ID] = provider
	}

	runner, err := NewRunner(Config{
		Manager:         manager,
		Logger:          zerolog.Nop(),
		AuthProfiles:    profiles,
		ProviderFactory: creator,
	})
	require.NoError(t, err)
	return runner
}

func testRunParams(runID string) RunParams {
	return RunParams{
		Prompt: "do the thing",
		RunID:  runID,
		Config: RunConfig{
			Model:      "gpt-4o",
			MaxRetries: 1,
		},
	}
}

func TestNewRunner(t *testing.T) {
	t.Run("should create runner with valid config", func(t *testing.T) {
		manager := newRunnerManager(t)
		runner := newTestRunner(t, manager, &scriptedProvider{})

		assert.NotNil(t, runner)
		assert.NotNil(t, runner.manager)
	})

	t.Run("should fail without tool manager", func(t *testing.T) {
		_, err := NewRunner(Config{
			Logger:       zerolog.Nop(),
			AuthProfiles: []AuthProfile{{ID: "test", Provider: "openai", APIKey: "key", Priority: 1}},
		})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "tool manager")
	})

	t.Run("should fail without auth profiles", func(t *testing.T) {
		_, err := NewRunner(Config{
			Manager:      newRunnerManager(t),
			Logger:       zerolog.Nop(),
			AuthProfiles: []AuthProfile{},
		})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "auth profile")
	})
}

func TestValidateConfig(t *testing.T) {
	runner := newTestRunner(t, newRunnerManager(t), &scriptedProvider{})

	t.Run("should accept valid config", func(t *testing.T) {
		err := runner.validateConfig(RunConfig{
			Model:       "gpt-4o",
			Temperature: 0.7,
			MaxTokens:   4096,
			MaxRetries:  3,
		})
		assert.NoError(t, err)
	})

	t.Run("should reject empty model", func(t *testing.T) {
		err := runner.validateConfig(RunConfig{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "model")
	})

	t.Run("should reject invalid temperature", func(t *testing.T) {
		err := runner.validateConfig(RunConfig{Model: "gpt-4o", Temperature: 2.5})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "temperature")
	})

	t.Run("should reject negative max tokens", func(t *testing.T) {
		err := runner.validateConfig(RunConfig{Model: "gpt-4o", MaxTokens: -1})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "max tokens")
	})

	t.Run("should reject negative max turns", func(t *testing.T) {
		err := runner.validateConfig(RunConfig{Model: "gpt-4o", MaxTurns: -1})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "max turns")
	})
}

func TestRunCompletesWithoutToolCalls(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedTurn{
		{completion: &Completion{Content: "hello", Usage: &TokenUsage{InputTokens: 12, OutputTokens: 4}}},
	}}
	runner := newTestRunner(t, newRunnerManager(t), provider)

	result, err := runner.Run(testRunParams("run-1"))
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "hello", result.Response)
	assert.Equal(t, 1, result.Turns)
	assert.Empty(t, result.ToolCalls)
	assert.Equal(t, 12, result.Usage.InputTokens)
	assert.Equal(t, 4, result.Usage.OutputTokens)
	assert.Equal(t, 1, provider.requestCount())
}

func TestRunGeneratesRunID(t *testing.T) {
	provider := &scriptedProvider{}
	runner := newTestRunner(t, newRunnerManager(t), provider)

	result, err := runner.Run(testRunParams(""))
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
}

func TestRunExecutesToolCallsThenAnswers(t *testing.T) {
	search := &fakeTool{name: "search"}
	provider := &scriptedProvider{script: []scriptedTurn{
		{completion: &Completion{
			Content: "let me look that up",
			ToolCalls: []toolmanager.ToolCall{
				{ID: "call-1", Name: "search", Arguments: map[string]interface{}{"query": "golang"}},
			},
		}},
		{completion: &Completion{Content: "answer"}},
	}}
	runner := newTestRunner(t, newRunnerManager(t, search), provider)

	result, err := runner.Run(testRunParams("run-2"))
	require.NoError(t, err)

	assert.Equal(t, "answer", result.Response)
	assert.Equal(t, 2, result.Turns)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "call-1", result.ToolCalls[0].ID)
	assert.Equal(t, int32(1), search.runs.Load())

	// Second request must carry the assistant tool call and its result.
	require.Equal(t, 2, provider.requestCount())
	followup := provider.request(1)
	require.Len(t, followup.Messages, 3)
	assert.Equal(t, "assistant", followup.Messages[1].Role)
	require.Len(t, followup.Messages[1].ToolCalls, 1)
	assert.Equal(t, "tool", followup.Messages[2].Role)
	assert.Equal(t, "call-1", followup.Messages[2].ToolCallID)
	assert.Equal(t, "ok", followup.Messages[2].Content)
}

func TestRunAppliesForcedToolsOnFirstTurnOnly(t *testing.T) {
	search := &fakeTool{name: "search"}
	manager := newRunnerManager(t, search)
	require.NoError(t, manager.AddForcedTool("search"))

	provider := &scriptedProvider{script: []scriptedTurn{
		{completion: &Completion{
			ToolCalls: []toolmanager.ToolCall{{ID: "call-1", Name: "search"}},
		}},
		{completion: &Completion{Content: "answer"}},
	}}
	runner := newTestRunner(t, manager, provider)

	_, err := runner.Run(testRunParams("run-3"))
	require.NoError(t, err)

	require.Equal(t, 2, provider.requestCount())
	assert.Len(t, provider.request(0).ForcedTools, 1)
	assert.Empty(t, provider.request(1).ForcedTools)
}

func TestRunComposesSystemPromptFromToolPrompts(t *testing.T) {
	search := &fakeTool{name: "search", prompt: "Prefer search for anything time sensitive."}
	provider := &scriptedProvider{}
	runner := newTestRunner(t, newRunnerManager(t, search), provider)

	params := testRunParams("run-4")
	params.Config.SystemPrompt = "You are a research agent."

	_, err := runner.Run(params)
	require.NoError(t, err)

	prompt := provider.request(0).SystemPrompt
	assert.Contains(t, prompt, "You are a research agent.")
	assert.Contains(t, prompt, "Prefer search for anything time sensitive.")
}

func TestRunStopsWhenToolTakesControl(t *testing.T) {
	handoff := &fakeTool{
		name:         "handoff",
		takesControl: true,
		run: func(ctx context.Context, call toolmanager.ToolCall) (toolmanager.ToolCallResponse, error) {
			return toolmanager.ToolCallResponse{ID: call.ID, Name: call.Name, Content: "took over"}, nil
		},
	}
	provider := &scriptedProvider{script: []scriptedTurn{
		{completion: &Completion{
			ToolCalls: []toolmanager.ToolCall{{ID: "call-1", Name: "handoff"}},
		}},
	}}
	runner := newTestRunner(t, newRunnerManager(t, handoff), provider)

	result, err := runner.Run(testRunParams("run-5"))
	require.NoError(t, err)

	assert.True(t, result.TookControl)
	assert.Equal(t, "handoff", result.ControlTool)
	assert.Equal(t, "took over", result.Response)
	assert.Equal(t, 1, result.Turns)
	assert.Equal(t, 1, provider.requestCount())
}

func TestRunSkipsBuiltinCallsInResponsesMode(t *testing.T) {
	search := &fakeTool{name: "search"}
	builders := toolmanager.Builders{
		"search": func(toolmanager.ToolBuildConfig) (toolmanager.Tool, error) { return search, nil },
	}
	manager, err := toolmanager.NewManager(toolmanager.ManagerConfig{
		Tools:        []toolmanager.ToolBuildConfig{{Name: "search", IsEnabled: true}},
		MaxToolCalls: 10,
		APIMode:      toolmanager.APIModeResponses,
	}, builders, toolmanager.Overrides{})
	require.NoError(t, err)

	provider := &scriptedProvider{script: []scriptedTurn{
		{completion: &Completion{
			ToolCalls: []toolmanager.ToolCall{
				{ID: "call-1", Name: "web_search_preview"},
				{ID: "call-2", Name: "search"},
			},
		}},
		{completion: &Completion{Content: "answer"}},
	}}
	runner := newTestRunner(t, manager, provider)

	result, err := runner.Run(testRunParams("run-6"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), search.runs.Load())
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "call-2", result.ToolCalls[0].ID)
}

func TestRunFailsOverToNextProfile(t *testing.T) {
	flaky := &scriptedProvider{provider: "flaky", script: []scriptedTurn{
		{err: fmt.Errorf("503 service unavailable")},
	}}
	healthy := &scriptedProvider{provider: "healthy", script: []scriptedTurn{
		{completion: &Completion{Content: "recovered"}},
	}}

	manager := newRunnerManager(t)
	runner, err := NewRunner(Config{
		Manager: manager,
		Logger:  zerolog.Nop(),
		AuthProfiles: []AuthProfile{
			{ID: "first", Provider: "openai", APIKey: "k1", Priority: 1},
			{ID: "second", Provider: "anthropic", APIKey: "k2", Priority: 2},
		},
		ProviderFactory: &fakeCreator{providers: map[string]Provider{
			"first":  flaky,
			"second": healthy,
		}},
	})
	require.NoError(t, err)

	result, err := runner.Run(testRunParams("run-7"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Response)

	// The failed profile must be pushed into cooldown.
	runner.authMu.RLock()
	defer runner.authMu.RUnlock()
	assert.Equal(t, 1, runner.authProfiles[0].FailureCount)
	require.NotNil(t, runner.authProfiles[0].CooldownUntil)
	assert.Greater(t, *runner.authProfiles[0].CooldownUntil, time.Now().UnixMilli())
	assert.Equal(t, 0, runner.authProfiles[1].FailureCount)
}

func TestRunStopsOnNonRetryableError(t *testing.T) {
	broken := &scriptedProvider{script: []scriptedTurn{
		{err: fmt.Errorf("invalid API key")},
	}}
	spare := &scriptedProvider{}

	runner, err := NewRunner(Config{
		Manager: newRunnerManager(t),
		Logger:  zerolog.Nop(),
		AuthProfiles: []AuthProfile{
			{ID: "first", Provider: "openai", APIKey: "k1", Priority: 1},
			{ID: "second", Provider: "openai", APIKey: "k2", Priority: 2},
		},
		ProviderFactory: &fakeCreator{providers: map[string]Provider{
			"first":  broken,
			"second": spare,
		}},
	})
	require.NoError(t, err)

	_, err = runner.Run(testRunParams("run-8"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API key")
	assert.Equal(t, 0, spare.requestCount())
}

func TestRunSkipsProfilesInCooldown(t *testing.T) {
	cooldownUntil := time.Now().Add(time.Minute).UnixMilli()
	provider := &scriptedProvider{}

	runner, err := NewRunner(Config{
		Manager: newRunnerManager(t),
		Logger:  zerolog.Nop(),
		AuthProfiles: []AuthProfile{
			{ID: "cooling", Provider: "openai", APIKey: "k", Priority: 1, CooldownUntil: &cooldownUntil},
		},
		ProviderFactory: &fakeCreator{providers: map[string]Provider{"cooling": provider}},
	})
	require.NoError(t, err)

	_, err = runner.Run(testRunParams("run-9"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable auth profile")
	assert.Equal(t, 0, provider.requestCount())
}

func TestRunRetriesRetryableErrors(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedTurn{
		{err: fmt.Errorf("429 rate limit")},
		{completion: &Completion{Content: "eventually"}},
	}}
	runner := newTestRunner(t, newRunnerManager(t), provider)

	params := testRunParams("run-10")
	params.Config.MaxRetries = 2

	result, err := runner.Run(params)
	require.NoError(t, err)
	assert.Equal(t, "eventually", result.Response)
	assert.Equal(t, 2, provider.requestCount())
}

func TestRunUsageAccumulatesAcrossTurns(t *testing.T) {
	search := &fakeTool{name: "search"}
	provider := &scriptedProvider{script: []scriptedTurn{
		{completion: &Completion{
			ToolCalls: []toolmanager.ToolCall{{ID: "call-1", Name: "search"}},
			Usage:     &TokenUsage{InputTokens: 10, OutputTokens: 5},
		}},
		{completion: &Completion{Content: "answer", Usage: &TokenUsage{InputTokens: 7, OutputTokens: 3}}},
	}}
	runner := newTestRunner(t, newRunnerManager(t, search), provider)

	result, err := runner.Run(testRunParams("run-11"))
	require.NoError(t, err)

	assert.Equal(t, 17, result.Usage.InputTokens)
	assert.Equal(t, 8, result.Usage.OutputTokens)
}

func TestRunCollectsEvaluationChecks(t *testing.T) {
	search := &fakeTool{name: "search", checks: []string{"verify cited links resolve"}}
	provider := &scriptedProvider{}
	runner := newTestRunner(t, newRunnerManager(t, search), provider)

	result, err := runner.Run(testRunParams("run-12"))
	require.NoError(t, err)
	assert.Contains(t, result.EvaluationChecks, "verify cited links resolve")
}

func TestRunFailsAfterMaxTurns(t *testing.T) {
	search := &fakeTool{name: "search"}
	loop := &Completion{ToolCalls: []toolmanager.ToolCall{{ID: "call-1", Name: "search"}}}
	provider := &scriptedProvider{script: []scriptedTurn{
		{completion: loop},
		{completion: loop},
		{completion: loop},
	}}
	runner := newTestRunner(t, newRunnerManager(t, search), provider)

	params := testRunParams("run-13")
	params.Config.MaxTurns = 2

	_, err := runner.Run(params)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum tool turns")
}

func TestRunRecordsHistory(t *testing.T) {
	store, err := history.NewStore(history.Config{
		Path: filepath.Join(t.TempDir(), "history.db"),
	}, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	search := &fakeTool{name: "search"}
	provider := &scriptedProvider{script: []scriptedTurn{
		{completion: &Completion{
			ToolCalls: []toolmanager.ToolCall{{ID: "call-1", Name: "search"}},
		}},
		{completion: &Completion{Content: "answer"}},
	}}

	runner, err := NewRunner(Config{
		Manager:         newRunnerManager(t, search),
		History:         store,
		Logger:          zerolog.Nop(),
		AuthProfiles:    []AuthProfile{{ID: "primary", Provider: "openai", APIKey: "k", Priority: 1}},
		ProviderFactory: &fakeCreator{providers: map[string]Provider{"primary": provider}},
	})
	require.NoError(t, err)

	_, err = runner.Run(testRunParams("run-14"))
	require.NoError(t, err)

	entries, err := store.ByRun(context.Background(), "run-14")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "search", entries[0].Tool)
	assert.Equal(t, "success", entries[0].Outcome)
	assert.NotEmpty(t, entries[0].DispatchID)
}

func TestRunAbortedContext(t *testing.T) {
	provider := &scriptedProvider{}
	runner := newTestRunner(t, newRunnerManager(t), provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := runner.RunWithContext(ctx, testRunParams("run-15"))
	require.NoError(t, err)
	assert.True(t, result.Aborted)
	assert.Equal(t, 0, provider.requestCount())
}

func TestAbort(t *testing.T) {
	runner := newTestRunner(t, newRunnerManager(t), &scriptedProvider{})

	t.Run("should handle abort on unknown run", func(t *testing.T) {
		err := runner.Abort("non-existent")
		assert.NoError(t, err)
	})

	t.Run("should abort running execution", func(t *testing.T) {
		called := false
		runner.runsMu.Lock()
		runner.activeRuns["run-abort"] = func() {
			called = true
		}
		runner.runsMu.Unlock()

		err := runner.Abort("run-abort")
		assert.NoError(t, err)
		assert.True(t, called)
		assert.False(t, runner.IsRunning("run-abort"))
	})
}

func TestIsRunning(t *testing.T) {
	runner := newTestRunner(t, newRunnerManager(t), &scriptedProvider{})

	t.Run("should return false for unknown run", func(t *testing.T) {
		assert.False(t, runner.IsRunning("non-existent"))
	})

	t.Run("should return true for active run", func(t *testing.T) {
		runner.runsMu.Lock()
		runner.activeRuns["run-active"] = func() {}
		runner.runsMu.Unlock()

		assert.True(t, runner.IsRunning("run-active"))
	})
}

func TestIsRetryableError(t *testing.T) {
	t.Run("should identify retryable errors", func(t *testing.T) {
		assert.True(t, IsRetryableError(fmt.Errorf("ECONNRESET")))
		assert.True(t, IsRetryableError(fmt.Errorf("ETIMEDOUT")))
		assert.True(t, IsRetryableError(fmt.Errorf("429 rate limit")))
		assert.True(t, IsRetryableError(fmt.Errorf("500 server error")))
		assert.True(t, IsRetryableError(fmt.Errorf("502 bad gateway")))
	})

	t.Run("should identify non-retryable errors", func(t *testing.T) {
		assert.False(t, IsRetryableError(fmt.Errorf("invalid API key")))
		assert.False(t, IsRetryableError(fmt.Errorf("validation failed")))
		assert.False(t, IsRetryableError(nil))
	})
}
