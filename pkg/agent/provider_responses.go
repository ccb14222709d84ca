package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/harun/quiver/pkg/toolmanager"
)

// ResponsesProvider implements Provider against the OpenAI responses API,
// the mode that unlocks hosted builtin tools like web_search_preview.
type ResponsesProvider struct {
	client openai.Client
}

// NewResponsesProvider creates a responses-mode provider. An empty baseURL
// targets the OpenAI platform.
func NewResponsesProvider(apiKey, baseURL string) *ResponsesProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/v1/"))
	}
	return &ResponsesProvider{
		client: openai.NewClient(opts...),
	}
}

// Name returns the provider name.
func (p *ResponsesProvider) Name() string {
	return "openai_responses"
}

// Complete runs one responses-API turn.
func (p *ResponsesProvider) Complete(ctx context.Context, request Request) (*Completion, error) {
	input, err := buildInput(request.Messages)
	if err != nil {
		return nil, err
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(request.Model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}

	if request.SystemPrompt != "" {
		params.Instructions = openai.String(request.SystemPrompt)
	}
	if request.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(request.MaxTokens))
	}
	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}

	if len(request.Tools) > 0 {
		tools := []responses.ToolUnionParam{}
		for _, def := range request.Tools {
			tools = append(tools, responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        def.Name,
					Description: openai.String(def.Description),
					Parameters:  def.Parameters,
					Strict:      openai.Bool(false),
				},
			})
		}
		params.Tools = tools
	}

	// The responses API accepts a single tool_choice; the most recently
	// forced tool wins. The manager already encoded builtins as a bare
	// type, so only "function" carries a name.
	if len(request.ForcedTools) > 0 {
		forced := request.ForcedTools[len(request.ForcedTools)-1]
		if forced.Type == "function" {
			params.ToolChoice = responses.ResponseNewParamsToolChoiceUnion{
				OfFunctionTool: &responses.ToolChoiceFunctionParam{Name: forcedToolName(forced)},
			}
		} else {
			params.ToolChoice = responses.ResponseNewParamsToolChoiceUnion{
				OfHostedTool: &responses.ToolChoiceTypesParam{Type: responses.ToolChoiceTypesType(forced.Type)},
			}
		}
	}

	response, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if response.Error.Message != "" {
		return nil, fmt.Errorf("responses API error: %s", response.Error.Message)
	}

	toolCalls := []toolmanager.ToolCall{}
	for _, item := range response.Output {
		if item.Type != "function_call" {
			continue
		}
		var args map[string]interface{}
		if item.Arguments != "" {
			if err := json.Unmarshal([]byte(item.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
			}
		}
		toolCalls = append(toolCalls, toolmanager.ToolCall{
			ID:        item.CallID,
			Name:      item.Name,
			Arguments: args,
		})
	}

	return &Completion{
		Content:   response.OutputText(),
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}

// buildInput flattens the conversation into responses-API input items. Tool
// exchanges become explicit function_call / function_call_output pairs keyed
// by call ID; plain text keeps its role.
func buildInput(messages []Message) (responses.ResponseInputParam, error) {
	input := responses.ResponseInputParam{}
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleUser))
		case "assistant":
			if msg.Content != "" {
				input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, tc := range msg.ToolCalls {
				argsJSON, err := json.Marshal(tc.Arguments)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
				}
				input = append(input, responses.ResponseInputItemParamOfFunctionCall(string(argsJSON), tc.ID, tc.Name))
			}
		case "tool":
			input = append(input, responses.ResponseInputItemParamOfFunctionCallOutput(msg.ToolCallID, msg.Content))
		}
	}
	return input, nil
}
