package toolmanager

// ToolCall is one model-issued request to invoke a named tool.
// Nil Arguments and an empty map are distinct values: the model sent
// "null" in the first case and "{}" in the second.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolCallResponse is the result of one tool call. The dispatch layer always
// produces one per submitted call and never panics through.
type ToolCallResponse struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Content      string                 `json:"content,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	DebugInfo    map[string]interface{} `json:"debug_info,omitempty"`
}

// Successful reports whether the call completed without an error.
func (r ToolCallResponse) Successful() bool {
	return r.ErrorMessage == ""
}

// SetDebug records a key in DebugInfo, allocating the map on first use.
func (r *ToolCallResponse) SetDebug(key string, value interface{}) {
	if r.DebugInfo == nil {
		r.DebugInfo = make(map[string]interface{})
	}
	r.DebugInfo[key] = value
}

// ToolDescription is the model-facing definition of a tool. Parameters holds
// a JSON Schema object describing the tool's arguments; an empty map means
// the tool takes none.
type ToolDescription struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ProgressReporter receives dispatch lifecycle notifications. Implementations
// must tolerate concurrent calls: every in-flight tool call reports
// independently.
type ProgressReporter interface {
	ToolCallStarted(call ToolCall)
	ToolCallFinished(resp ToolCallResponse)
}
