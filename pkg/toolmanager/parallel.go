package toolmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/quiver/internal/observability"
	"github.com/harun/quiver/internal/tracing"
)

// ExecuteToolsParallelized dispatches every call to its tool concurrently
// and returns one response per call, in the order the calls were given.
//
// A call naming a tool absent from tools yields a not-found response without
// any invocation. A tool that returns an error or panics yields a response
// carrying the failure message; with logErrorsToDebugInfo the response's
// DebugInfo["error_trace"] additionally records the failure type. The
// function blocks until every call has settled; a failing call never aborts
// its siblings and no timeout is imposed here.
func ExecuteToolsParallelized(ctx context.Context, tools []Tool, calls []ToolCall, logErrorsToDebugInfo bool) []ToolCallResponse {
	return executeParallel(ctx, tools, calls, execOptions{traceErrors: logErrorsToDebugInfo})
}

// execOptions carries the per-dispatch hooks the Manager threads into the
// fan-out region.
type execOptions struct {
	traceErrors bool
	validate    func(tool Tool, call ToolCall) error
	progress    ProgressReporter
}

func executeParallel(ctx context.Context, tools []Tool, calls []ToolCall, opts execOptions) []ToolCallResponse {
	byName := make(map[string]Tool, len(tools))
	for _, tool := range tools {
		byName[tool.Name()] = tool
	}

	responses := make([]ToolCallResponse, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(slot int, call ToolCall) {
			defer wg.Done()
			responses[slot] = runOne(ctx, byName[call.Name], call, opts)
		}(i, call)
	}
	wg.Wait()

	return responses
}

// runOne settles a single call: not-found, validation failure, error return,
// and panic all collapse into a ToolCallResponse.
func runOne(ctx context.Context, tool Tool, call ToolCall, opts execOptions) (resp ToolCallResponse) {
	if tool == nil {
		log.Warn().
			Str("tool", call.Name).
			Str("call_id", call.ID).
			Msg("Tool not found in active set")
		return ToolCallResponse{
			ID:           call.ID,
			Name:         call.Name,
			ErrorMessage: fmt.Sprintf("tool not found: %s", call.Name),
		}
	}

	start := time.Now()
	if opts.progress != nil {
		opts.progress.ToolCallStarted(call)
	}

	ctx, span := tracing.StartSpan(ctx, "toolmanager", "tool.run",
		attribute.String("tool", call.Name),
		attribute.String("call_id", call.ID),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("tool", call.Name).
				Str("call_id", call.ID).
				Interface("panic", r).
				Msg("Tool panicked during execution")
			resp = failureResponse(call, fmt.Sprint(r), fmt.Sprintf("%T", r), opts.traceErrors)
		}
		span.SetAttributes(attribute.Bool("success", resp.Successful()))
		observability.RecordToolCall(call.Name, time.Since(start), resp.Successful())
		if !resp.Successful() {
			observability.RecordToolAudit(ctx, call.Name, DispatchIDFromContext(ctx), "failure", map[string]interface{}{
				"call_id": call.ID,
				"error":   resp.ErrorMessage,
			})
		}
		if opts.progress != nil {
			opts.progress.ToolCallFinished(resp)
		}
	}()

	if opts.validate != nil {
		if err := opts.validate(tool, call); err != nil {
			log.Warn().
				Str("tool", call.Name).
				Str("call_id", call.ID).
				Err(err).
				Msg("Tool call arguments rejected")
			return failureResponse(call, err.Error(), fmt.Sprintf("%T", err), opts.traceErrors)
		}
	}

	out, err := tool.Run(ctx, call)
	if err != nil {
		log.Error().
			Str("tool", call.Name).
			Str("call_id", call.ID).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("Tool execution failed")
		return failureResponse(call, err.Error(), fmt.Sprintf("%T", err), opts.traceErrors)
	}

	// The response always echoes the call identity, whatever the tool set.
	out.ID = call.ID
	out.Name = call.Name

	log.Debug().
		Str("tool", call.Name).
		Str("call_id", call.ID).
		Dur("duration", time.Since(start)).
		Msg("Tool execution completed")

	return out
}

func failureResponse(call ToolCall, message, failureType string, trace bool) ToolCallResponse {
	resp := ToolCallResponse{
		ID:           call.ID,
		Name:         call.Name,
		ErrorMessage: message,
	}
	if trace {
		resp.SetDebug("error_trace", fmt.Sprintf("%s: %s", failureType, message))
	}
	return resp
}
