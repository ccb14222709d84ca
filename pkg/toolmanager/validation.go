package toolmanager

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Parameter declares one argument of a tool. Tools assemble their
// ToolDescription.Parameters schema from these via SchemaObject.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

// SchemaObject assembles a JSON Schema object from declared parameters.
func SchemaObject(params []Parameter) map[string]interface{} {
	properties := make(map[string]interface{}, len(params))
	required := []string{}

	for _, param := range params {
		prop := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// compileSchemas builds an argument validator for every active tool that
// declares a parameter schema. A schema that fails to compile disables
// validation for that tool only; the tool stays dispatchable.
func (m *Manager) compileSchemas() {
	m.schemas = make(map[string]*gojsonschema.Schema, len(m.tools))
	for _, tool := range m.tools {
		desc := tool.Description()
		if len(desc.Parameters) == 0 {
			continue
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(desc.Parameters))
		if err != nil {
			log.Warn().
				Str("tool", tool.Name()).
				Err(err).
				Msg("Parameter schema failed to compile; argument validation disabled for this tool")
			continue
		}
		m.schemas[tool.Name()] = schema
	}
}

// validateArguments checks a call's arguments against the tool's declared
// schema. Nil arguments validate as an empty object; value equality
// elsewhere still distinguishes them.
func (m *Manager) validateArguments(tool Tool, call ToolCall) error {
	schema := m.schemas[tool.Name()]
	if schema == nil {
		return nil
	}

	args := call.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("argument validation failed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return fmt.Errorf("invalid arguments for %s: %s", tool.Name(), strings.Join(msgs, "; "))
	}
	return nil
}
