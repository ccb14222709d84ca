package agent

import (
	"context"
	"fmt"

	"github.com/harun/quiver/pkg/toolmanager"
)

// Provider is an LLM API client that can run one model turn with tools.
type Provider interface {
	// Complete runs one model turn.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Name returns the provider name for logs and metrics.
	Name() string
}

// Request contains the parameters for one model turn. Tools and ForcedTools
// come straight from the tool manager; each provider owns the translation to
// its wire format.
type Request struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	Tools        []toolmanager.ToolDescription
	ForcedTools  []toolmanager.ForcedTool
	Temperature  float64
	MaxTokens    int
}

// Completion is the model's reply for one turn.
type Completion struct {
	Content   string
	ToolCalls []toolmanager.ToolCall
	Usage     *TokenUsage
}

// ProviderCreator creates providers from auth profiles.
type ProviderCreator interface {
	NewProvider(profile AuthProfile) (Provider, error)
}

// ProviderFactory is the default ProviderCreator.
type ProviderFactory struct{}

// NewProvider creates a provider for the profile's provider name.
func (f *ProviderFactory) NewProvider(profile AuthProfile) (Provider, error) {
	switch profile.Provider {
	case "openai":
		return NewOpenAIProvider(profile.APIKey), nil
	case "openai_responses":
		return NewResponsesProvider(profile.APIKey, profile.BaseURL), nil
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}

// forcedToolName extracts the tool name from a forced-tool encoding,
// whichever API mode produced it. Builtin encodings carry the name in Type.
func forcedToolName(ft toolmanager.ForcedTool) string {
	if ft.Function != nil && ft.Function.Name != "" {
		return ft.Function.Name
	}
	if ft.Name != "" {
		return ft.Name
	}
	if ft.Type != "function" {
		return ft.Type
	}
	return ""
}
