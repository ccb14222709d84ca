package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/quiver/internal/observability"
	"github.com/harun/quiver/internal/tracing"
	"github.com/harun/quiver/pkg/history"
	"github.com/harun/quiver/pkg/toolmanager"
)

// Runner drives agent runs: it loops the model against the tool manager
// until the model stops calling tools, a tool takes control, or the turn
// budget runs out.
type Runner struct {
	manager         *toolmanager.Manager
	history         *history.Store
	logger          zerolog.Logger
	providerFactory ProviderCreator

	// Auth profiles
	authProfiles []AuthProfile
	authMu       sync.RWMutex

	// Active runs for abort capability
	activeRuns map[string]context.CancelFunc
	runsMu     sync.RWMutex
}

// Config holds runner configuration.
type Config struct {
	Manager         *toolmanager.Manager
	History         *history.Store
	Logger          zerolog.Logger
	AuthProfiles    []AuthProfile
	ProviderFactory ProviderCreator
}

// NewRunner creates an agent runner.
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Manager == nil {
		return nil, fmt.Errorf("tool manager is required")
	}
	if len(cfg.AuthProfiles) == 0 {
		return nil, fmt.Errorf("at least one auth profile is required")
	}

	providerFactory := cfg.ProviderFactory
	if providerFactory == nil {
		providerFactory = &ProviderFactory{}
	}

	return &Runner{
		manager:         cfg.Manager,
		history:         cfg.History,
		logger:          cfg.Logger.With().Str("component", "agent").Logger(),
		providerFactory: providerFactory,
		authProfiles:    cfg.AuthProfiles,
		activeRuns:      make(map[string]context.CancelFunc),
	}, nil
}

// Run executes an agent run with a background context.
func (r *Runner) Run(params RunParams) (RunResult, error) {
	return r.RunWithContext(context.Background(), params)
}

// RunWithContext executes an agent run with a caller-provided context.
func (r *Runner) RunWithContext(ctx context.Context, params RunParams) (RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if params.RunID == "" {
		params.RunID = tracing.NewRunID()
	}
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx = tracing.WithRunID(ctx, params.RunID)
	if params.AgentID != "" {
		ctx = tracing.WithAgentID(ctx, params.AgentID)
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"quiver.agent",
		"agent.run",
		attribute.String("run_id", params.RunID),
		attribute.String("model", params.Config.Model),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger).With().Str("run_id", params.RunID).Logger()

	if err := r.validateConfig(params.Config); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunResult{}, fmt.Errorf("invalid configuration: %w", err)
	}

	result, err := r.executeRun(ctx, params)
	if err != nil {
		logger.Error().Err(err).Msg("Agent run failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunResult{}, err
	}

	return result, nil
}

// Abort cancels a running agent execution.
func (r *Runner) Abort(runID string) error {
	r.runsMu.Lock()
	defer r.runsMu.Unlock()

	cancel, exists := r.activeRuns[runID]
	if !exists {
		r.logger.Debug().Str("run_id", runID).Msg("No active run to abort")
		return nil
	}

	r.logger.Info().Str("run_id", runID).Msg("Aborting agent run")
	cancel()
	delete(r.activeRuns, runID)

	return nil
}

// IsRunning checks whether a run is currently executing.
func (r *Runner) IsRunning(runID string) bool {
	r.runsMu.RLock()
	defer r.runsMu.RUnlock()

	_, exists := r.activeRuns[runID]
	return exists
}

// executeRun performs the actual agent execution.
func (r *Runner) executeRun(ctx context.Context, params RunParams) (RunResult, error) {
	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.runsMu.Lock()
	r.activeRuns[params.RunID] = cancel
	r.runsMu.Unlock()

	defer func() {
		r.runsMu.Lock()
		delete(r.activeRuns, params.RunID)
		r.runsMu.Unlock()
	}()

	select {
	case <-execCtx.Done():
		return RunResult{RunID: params.RunID, Aborted: true}, nil
	default:
	}

	messages := []Message{
		{Role: "user", Content: params.Prompt},
	}

	result, err := r.executeWithFailover(execCtx, messages, params)
	if err != nil {
		return RunResult{}, err
	}

	result.RunID = params.RunID
	return result, nil
}

// validateConfig validates run configuration.
func (r *Runner) validateConfig(config RunConfig) error {
	if config.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}
	if config.MaxTurns < 0 {
		return fmt.Errorf("max turns cannot be negative")
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// buildSystemPrompt composes the configured system prompt with the usage
// guidance of every active tool.
func (r *Runner) buildSystemPrompt(config RunConfig) string {
	systemPrompt := config.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = "You are a helpful assistant."
	}

	prompts := r.manager.ToolPrompts()
	if len(prompts) == 0 {
		return systemPrompt
	}

	return systemPrompt + "\n\n# Tool Usage\n\n" + strings.Join(prompts, "\n\n")
}

// executeWithFailover tries auth profiles in priority order until one
// completes the run. Profiles in cooldown are skipped and non-retryable
// errors abort the failover chain.
func (r *Runner) executeWithFailover(ctx context.Context, messages []Message, params RunParams) (RunResult, error) {
	r.authMu.RLock()
	profiles := make([]AuthProfile, len(r.authProfiles))
	copy(profiles, r.authProfiles)
	r.authMu.RUnlock()
	logger := tracing.LoggerFromContext(ctx, r.logger).With().Str("run_id", params.RunID).Logger()

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})

	var lastErr error

	for _, profile := range profiles {
		profileStart := time.Now()
		if profile.CooldownUntil != nil && time.Now().UnixMilli() < *profile.CooldownUntil {
			logger.Debug().
				Str("profile_id", profile.ID).
				Msg("Skipping profile in cooldown")
			continue
		}

		logger.Info().Str("profile_id", profile.ID).Str("provider", profile.Provider).Msg("Trying auth profile")

		provider, err := r.providerFactory.NewProvider(profile)
		if err != nil {
			observability.RecordAgentRun(profile.Provider, time.Since(profileStart), false)
			logger.Warn().
				Str("profile_id", profile.ID).
				Err(err).
				Msg("Failed to create provider")
			lastErr = err
			continue
		}

		result, err := r.executeWithProvider(ctx, provider, messages, params)
		if err == nil {
			r.updateProfileSuccess(profile.ID)
			observability.RecordAgentRun(profile.Provider, time.Since(profileStart), true)
			return result, nil
		}

		lastErr = err
		observability.RecordAgentRun(profile.Provider, time.Since(profileStart), false)
		logger.Warn().
			Str("profile_id", profile.ID).
			Err(err).
			Msg("Auth profile failed")

		r.updateProfileFailure(profile.ID)

		if !IsRetryableError(err) {
			return RunResult{}, err
		}
	}

	if lastErr != nil {
		logger.Error().Err(lastErr).Msg("All auth profiles failed")
		return RunResult{}, fmt.Errorf("all auth profiles failed: %w", lastErr)
	}
	return RunResult{}, fmt.Errorf("no usable auth profile: all profiles are cooling down")
}

// executeWithProvider runs the turn loop against one provider.
func (r *Runner) executeWithProvider(ctx context.Context, provider Provider, messages []Message, params RunParams) (RunResult, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"quiver.agent",
		"agent.execute_with_provider",
		attribute.String("provider", provider.Name()),
	)
	defer span.End()

	result, err := r.executeTurns(ctx, provider, messages, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// executeTurns handles the model/tool loop. Forced tools apply to the first
// model call of a run only; echoing them on later turns would force the same
// call forever and burn the turn budget.
func (r *Runner) executeTurns(ctx context.Context, provider Provider, messages []Message, params RunParams) (RunResult, error) {
	logger := tracing.LoggerFromContext(ctx, r.logger).With().Str("run_id", params.RunID).Logger()

	currentMessages := messages
	allToolCalls := []toolmanager.ToolCall{}
	usage := &TokenUsage{}

	systemPrompt := r.buildSystemPrompt(params.Config)
	tools := r.manager.ToolDefinitions()
	forcedTools := r.manager.ForcedTools()

	maxTurns := params.Config.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}

	for turn := 0; turn < maxTurns; turn++ {
		select {
		case <-ctx.Done():
			return RunResult{Aborted: true, Turns: turn, Usage: usage}, nil
		default:
		}

		request := Request{
			Model:        params.Config.Model,
			Messages:     currentMessages,
			SystemPrompt: systemPrompt,
			Tools:        tools,
			Temperature:  params.Config.Temperature,
			MaxTokens:    params.Config.MaxTokens,
		}
		if turn == 0 {
			request.ForcedTools = forcedTools
		}

		completion, err := r.callWithRetry(ctx, provider, request, params)
		if err != nil {
			return RunResult{}, err
		}
		observability.RecordAgentTurn(provider.Name())
		usage.add(completion.Usage)

		if len(completion.ToolCalls) == 0 {
			return RunResult{
				Response:         completion.Content,
				ToolCalls:        allToolCalls,
				Usage:            usage,
				Turns:            turn + 1,
				EvaluationChecks: r.manager.EvaluationCheckList(),
			}, nil
		}

		// Builtin calls run on the provider's side; only the rest is
		// dispatched locally. Unknown names stay in so the model gets a
		// not-found result back.
		executable := r.excludeBuiltinCalls(completion.ToolCalls)
		if len(executable) == 0 {
			logger.Debug().
				Int("builtin_calls", len(completion.ToolCalls)).
				Msg("Turn produced only provider-side calls")
			return RunResult{
				Response:         completion.Content,
				ToolCalls:        allToolCalls,
				Usage:            usage,
				Turns:            turn + 1,
				EvaluationChecks: r.manager.EvaluationCheckList(),
			}, nil
		}

		dispatchID, _ := gonanoid.New()
		dispatchCtx := toolmanager.WithDispatchID(ctx, dispatchID)
		responses := r.manager.ExecuteSelectedTools(dispatchCtx, executable)
		allToolCalls = append(allToolCalls, executable...)

		if r.history != nil {
			if err := r.history.RecordResponses(ctx, params.RunID, dispatchID, responses); err != nil {
				logger.Warn().Err(err).Msg("Failed to record tool call history")
			}
		}

		succeeded := 0
		for _, resp := range responses {
			if resp.Successful() {
				succeeded++
			}
		}
		dispatchStatus := "ok"
		if succeeded < len(responses) {
			dispatchStatus = "partial"
		}
		observability.RecordDispatchAudit(dispatchCtx, params.AgentID, dispatchStatus, map[string]interface{}{
			"dispatch_id": dispatchID,
			"calls":       len(executable),
			"succeeded":   succeeded,
		})

		if r.manager.DoesAToolTakeControl(executable) {
			controlTool, controlResponse := r.controlResult(executable, responses)
			return RunResult{
				Response:         controlResponse,
				ToolCalls:        allToolCalls,
				Usage:            usage,
				Turns:            turn + 1,
				TookControl:      true,
				ControlTool:      controlTool,
				EvaluationChecks: r.manager.EvaluationCheckList(),
			}, nil
		}

		currentMessages = append(currentMessages, Message{
			Role:      "assistant",
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})
		for _, resp := range responses {
			content := resp.Content
			if !resp.Successful() {
				content = resp.ErrorMessage
			}
			currentMessages = append(currentMessages, Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: resp.ID,
			})
		}
	}

	return RunResult{}, fmt.Errorf("maximum tool turns (%d) exceeded", maxTurns)
}

// excludeBuiltinCalls strips calls the provider executes natively.
func (r *Runner) excludeBuiltinCalls(calls []toolmanager.ToolCall) []toolmanager.ToolCall {
	builtins := r.manager.FilterToolCalls(calls, toolmanager.KindOpenAIBuiltin)
	if len(builtins) == 0 {
		return calls
	}

	skip := make(map[string]bool, len(builtins))
	for _, call := range builtins {
		skip[call.ID] = true
	}

	executable := make([]toolmanager.ToolCall, 0, len(calls))
	for _, call := range calls {
		if !skip[call.ID] {
			executable = append(executable, call)
		}
	}
	return executable
}

// controlResult picks the response of the first control-taking tool in the
// batch. Its output becomes the run's final response.
func (r *Runner) controlResult(calls []toolmanager.ToolCall, responses []toolmanager.ToolCallResponse) (string, string) {
	for _, call := range calls {
		tool, err := r.manager.ToolByName(call.Name)
		if err != nil || !tool.TakesControl() {
			continue
		}
		for _, resp := range responses {
			if resp.ID != call.ID {
				continue
			}
			if resp.Successful() {
				return call.Name, resp.Content
			}
			return call.Name, resp.ErrorMessage
		}
		return call.Name, ""
	}
	return "", ""
}

// callWithRetry calls the provider with exponential backoff on retryable
// errors.
func (r *Runner) callWithRetry(ctx context.Context, provider Provider, request Request, params RunParams) (*Completion, error) {
	maxRetries := params.Config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		completion, err := provider.Complete(ctx, request)
		if err == nil {
			return completion, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}

		if attempt == maxRetries-1 {
			break
		}

		// Exponential backoff: 1s, 2s, 4s
		delayMs := 1000 * (1 << attempt)
		r.logger.Info().
			Int("attempt", attempt+1).
			Int("delay_ms", delayMs).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// updateProfileSuccess resets failure tracking for a profile.
func (r *Runner) updateProfileSuccess(profileID string) {
	r.authMu.Lock()
	defer r.authMu.Unlock()

	for i := range r.authProfiles {
		if r.authProfiles[i].ID == profileID {
			r.authProfiles[i].FailureCount = 0
			r.authProfiles[i].CooldownUntil = nil
			break
		}
	}
}

// updateProfileFailure marks a profile as failed and extends its cooldown
// linearly with the failure count.
func (r *Runner) updateProfileFailure(profileID string) {
	r.authMu.Lock()
	defer r.authMu.Unlock()

	for i := range r.authProfiles {
		if r.authProfiles[i].ID == profileID {
			r.authProfiles[i].FailureCount++
			cooldownUntil := time.Now().UnixMilli() + int64(60000*r.authProfiles[i].FailureCount)
			r.authProfiles[i].CooldownUntil = &cooldownUntil
			break
		}
	}
}
