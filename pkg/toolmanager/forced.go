package toolmanager

// APIMode selects the wire convention used to encode tool selection for the
// model provider.
type APIMode string

const (
	// APIModeCompletions is the chat completions function-calling convention.
	APIModeCompletions APIMode = "completions"
	// APIModeResponses is the responses API tool-calling convention.
	APIModeResponses APIMode = "responses"
)

// responsesBuiltins are the tool types the responses API hosts natively. For
// these the type field alone identifies the tool on the wire.
var responsesBuiltins = map[string]bool{
	"web_search_preview":   true,
	"file_search":          true,
	"computer_use_preview": true,
	"code_interpreter":     true,
	"image_generation":     true,
	"local_shell":          true,
}

// IsResponsesBuiltin reports whether name identifies a tool hosted natively
// by the responses API.
func IsResponsesBuiltin(name string) bool {
	return responsesBuiltins[name]
}

// ForcedFunction names the function a completions-mode forced tool targets.
type ForcedFunction struct {
	Name string `json:"name"`
}

// ForcedTool is the wire encoding of a tool the model is compelled to call.
// The populated fields depend on the API mode that produced it:
//
//	completions            {"type":"function","function":{"name":...}}
//	responses, builtin     {"type":<name>}
//	responses, function    {"type":"function","name":...}
type ForcedTool struct {
	Type     string          `json:"type"`
	Name     string          `json:"name,omitempty"`
	Function *ForcedFunction `json:"function,omitempty"`
}

// ConvertToForcedTool encodes a tool name in the wire shape the given API
// mode requires.
func ConvertToForcedTool(name string, mode APIMode) ForcedTool {
	if mode == APIModeResponses {
		if IsResponsesBuiltin(name) {
			return ForcedTool{Type: name}
		}
		return ForcedTool{Type: "function", Name: name}
	}
	return ForcedTool{Type: "function", Function: &ForcedFunction{Name: name}}
}
