package toolmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchWithSchema() *stubTool {
	return &stubTool{
		name: "search",
		parameters: SchemaObject([]Parameter{
			{Name: "query", Type: "string", Description: "search query", Required: true},
			{Name: "limit", Type: "integer", Description: "max results"},
		}),
	}
}

func TestSchemaObjectShape(t *testing.T) {
	schema := SchemaObject([]Parameter{
		{Name: "query", Type: "string", Description: "search query", Required: true},
		{Name: "lang", Type: "string", Description: "result language", Default: "en", Enum: []string{"en", "id"}},
	})

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.Equal(t, []string{"query"}, schema["required"])

	properties, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	lang, ok := properties["lang"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "en", lang["default"])
	assert.Equal(t, []string{"en", "id"}, lang["enum"])
}

func TestSchemaObjectWithoutRequired(t *testing.T) {
	schema := SchemaObject([]Parameter{
		{Name: "limit", Type: "integer", Description: "max results"},
	})

	_, present := schema["required"]
	assert.False(t, present, "required must be omitted when no parameter demands it")
}

func TestDispatchRejectsInvalidArguments(t *testing.T) {
	m := newTestManager(t, ManagerConfig{
		MaxToolCalls: 4,
		Tools:        enabledTools("search"),
	}, stubBuilders(searchWithSchema()), Overrides{})

	responses := m.ExecuteSelectedTools(context.Background(), []ToolCall{
		{ID: "1", Name: "search", Arguments: map[string]interface{}{"query": 42}},
	})

	require.Len(t, responses, 1)
	assert.False(t, responses[0].Successful())
	assert.Contains(t, responses[0].ErrorMessage, "invalid arguments for search")
}

func TestDispatchRejectsMissingRequiredArgument(t *testing.T) {
	m := newTestManager(t, ManagerConfig{
		MaxToolCalls: 4,
		Tools:        enabledTools("search"),
	}, stubBuilders(searchWithSchema()), Overrides{})

	responses := m.ExecuteSelectedTools(context.Background(), []ToolCall{
		{ID: "1", Name: "search"},
	})

	require.Len(t, responses, 1)
	assert.False(t, responses[0].Successful())
	assert.Contains(t, responses[0].ErrorMessage, "invalid arguments for search")
}

func TestDispatchRejectsUndeclaredArgument(t *testing.T) {
	m := newTestManager(t, ManagerConfig{
		MaxToolCalls: 4,
		Tools:        enabledTools("search"),
	}, stubBuilders(searchWithSchema()), Overrides{})

	responses := m.ExecuteSelectedTools(context.Background(), []ToolCall{
		{ID: "1", Name: "search", Arguments: map[string]interface{}{
			"query":   "go",
			"explode": true,
		}},
	})

	require.Len(t, responses, 1)
	assert.False(t, responses[0].Successful())
}

func TestDispatchValidationIsolatesSiblings(t *testing.T) {
	m := newTestManager(t, ManagerConfig{
		MaxToolCalls: 4,
		Tools:        enabledTools("search", "page"),
	}, stubBuilders(searchWithSchema(), echoTool("page")), Overrides{})

	responses := m.ExecuteSelectedTools(context.Background(), []ToolCall{
		{ID: "1", Name: "search", Arguments: map[string]interface{}{"query": 42}},
		{ID: "2", Name: "page"},
	})

	require.Len(t, responses, 2)
	assert.False(t, responses[0].Successful())
	assert.True(t, responses[1].Successful(), "a rejected sibling must not affect other calls")
}

func TestDispatchAcceptsValidArguments(t *testing.T) {
	m := newTestManager(t, ManagerConfig{
		MaxToolCalls: 4,
		Tools:        enabledTools("search"),
	}, stubBuilders(searchWithSchema()), Overrides{})

	responses := m.ExecuteSelectedTools(context.Background(), []ToolCall{
		{ID: "1", Name: "search", Arguments: map[string]interface{}{
			"query": "golang orchestration",
			"limit": 5,
		}},
	})

	require.Len(t, responses, 1)
	assert.True(t, responses[0].Successful())
}

func TestDispatchSkipsValidationWithoutSchema(t *testing.T) {
	m := newTestManager(t, ManagerConfig{
		MaxToolCalls: 4,
		Tools:        enabledTools("freeform"),
	}, stubBuilders(echoTool("freeform")), Overrides{})

	responses := m.ExecuteSelectedTools(context.Background(), []ToolCall{
		{ID: "1", Name: "freeform", Arguments: map[string]interface{}{"anything": "goes"}},
	})

	require.Len(t, responses, 1)
	assert.True(t, responses[0].Successful())
}
