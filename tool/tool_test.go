package tool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falai-dev/falai-go/core"
	"github.com/falai-dev/falai-go/schema"
)

func testToolContext(t *testing.T) *core.ToolContext {
	t.Helper()
	return core.NewToolContext(t.Context(), core.NewSession("s1"), nil, nil, "call_1", nil)
}

func echoDef(id string) *Definition {
	return &Definition{
		ID:          id,
		Description: "echo",
		Parameters: schema.Object(map[string]*schema.Schema{
			"text": schema.String("text to echo"),
		}),
		Handler: func(_ *core.ToolContext, args map[string]any) (any, error) {
			return args["text"], nil
		},
	}
}

func TestDefinitionCallValidatesParameters(t *testing.T) {
	def := &Definition{
		ID: "lookup",
		Parameters: schema.Object(map[string]*schema.Schema{
			"id": schema.String(""),
		}, "id"),
		Handler: func(_ *core.ToolContext, _ map[string]any) (any, error) {
			t.Fatal("handler must not run on invalid arguments")
			return nil, nil
		},
	}

	_, err := def.Call(testToolContext(t), map[string]any{})
	require.Error(t, err)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	assert.Equal(t, "lookup", toolErr.Tool)
}

func TestDefinitionCallWrapsHandlerErrors(t *testing.T) {
	def := &Definition{
		ID:         "flaky",
		Parameters: schema.Object(nil),
		Handler: func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return nil, errors.New("backend down")
		},
	}

	_, err := def.Call(testToolContext(t), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Contains(t, toolErr.Message, "backend down")
}

func TestDefinitionCallPassesToolErrorsThrough(t *testing.T) {
	want := NewToolError("quota", "limit exceeded", "RATE_LIMIT")
	def := &Definition{
		ID:         "quota",
		Parameters: schema.Object(nil),
		Handler: func(_ *core.ToolContext, _ map[string]any) (any, error) {
			return nil, want
		},
	}

	_, err := def.Call(testToolContext(t), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Same(t, want, toolErr)
}

func TestNormalizeResult(t *testing.T) {
	assert.Equal(t, Result{Data: "hi"}, NormalizeResult("hi"))
	assert.Equal(t, Result{Data: 42}, NormalizeResult(42))
	assert.Equal(t, Result{}, NormalizeResult((*Result)(nil)))

	r := Result{Data: "ok", DataUpdate: map[string]any{"k": "v"}}
	assert.Equal(t, r, NormalizeResult(&r))
	assert.Equal(t, r, NormalizeResult(r))
}

func TestScopeShadowing(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(echoDef("echo")))

	agentEcho := echoDef("echo")
	agentEcho.Description = "agent echo"
	routeEcho := echoDef("echo")
	routeEcho.Description = "route echo"
	stepEcho := echoDef("echo")
	stepEcho.Description = "step echo"

	tests := []struct {
		name  string
		scope *Scope
		want  string
	}{
		{"step shadows route and agent", NewScope(registry, []Ref{InlineRef(stepEcho)}, []Ref{InlineRef(routeEcho)}, []Ref{InlineRef(agentEcho)}), "step echo"},
		{"route shadows agent", NewScope(registry, nil, []Ref{InlineRef(routeEcho)}, []Ref{InlineRef(agentEcho)}), "route echo"},
		{"agent only", NewScope(registry, nil, nil, []Ref{InlineRef(agentEcho)}), "agent echo"},
		{"id ref resolves via registry", NewScope(registry, nil, nil, []Ref{ByID("echo")}), "echo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, ok := tt.scope.Resolve("echo")
			require.True(t, ok)
			assert.Equal(t, tt.want, def.Description)
		})
	}
}

func TestScopeResolveUnknown(t *testing.T) {
	scope := NewScope(NewRegistry(), nil, nil, nil)
	_, ok := scope.Resolve("missing")
	assert.False(t, ok)

	// Unregistered id references resolve to nothing rather than panicking.
	scope = NewScope(NewRegistry(), nil, nil, []Ref{ByID("ghost")})
	_, ok = scope.Resolve("ghost")
	assert.False(t, ok)
}

func TestScopeDefinitionsDeduplicates(t *testing.T) {
	stepEcho := echoDef("echo")
	stepEcho.Description = "step echo"
	routeEcho := echoDef("echo")
	other := echoDef("other")

	scope := NewScope(NewRegistry(),
		[]Ref{InlineRef(stepEcho)},
		[]Ref{InlineRef(routeEcho), InlineRef(other)},
		nil,
	)

	defs := scope.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "step echo", defs[0].Description, "innermost definition wins")
	assert.Equal(t, "other", defs[1].Name)
}

func TestRegistryRejectsInvalidDefinitions(t *testing.T) {
	registry := NewRegistry()
	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(&Definition{ID: ""}))
	assert.Error(t, registry.Register(&Definition{ID: "no-handler"}))
	require.NoError(t, registry.Register(echoDef("echo")))

	replacement := echoDef("echo")
	replacement.Description = "v2"
	require.NoError(t, registry.Register(replacement))
	def, ok := registry.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "v2", def.Description)
}
