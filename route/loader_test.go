package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falai-dev/falai-go/core"
)

const routeYAML = `
id: refund
title: Process Refund
conditions:
  - the user asks for a refund
required_fields: [order_id, reason]
guidelines:
  - Stay polite even when declining.
tools: [lookup_order]
on_complete: survey
data_schema:
  type: object
  properties:
    order_id:
      type: string
    reason:
      type: string
steps:
  - description: ask order
    prompt: Ask for the order number.
    collect: [order_id]
  - description: ask reason
    prompt: Ask why the user wants a refund.
    requires: [order_id]
    collect: [reason]
    skip_if: reason_known
    finalize: record_refund
  - end: true
`

func TestLoadYAMLRoute(t *testing.T) {
	called := false
	opts := LoaderOptions{
		SkipPredicates: map[string]SkipFunc{
			"reason_known": func(sctx SkipContext) (bool, error) {
				_, ok := sctx.Data["reason"]
				return ok, nil
			},
		},
		Hooks: map[string]*Hook{
			"record_refund": NewFuncHook(func(*core.ToolContext) error {
				called = true
				return nil
			}),
		},
	}

	routes, err := Load([]byte(routeYAML), opts)
	require.NoError(t, err)
	require.Len(t, routes, 1)

	r := routes[0]
	assert.Equal(t, "refund", r.ID)
	assert.Equal(t, "Process Refund", r.Title)
	assert.Equal(t, []string{"order_id", "reason"}, r.RequiredFields)
	require.NotNil(t, r.OnComplete)
	assert.Equal(t, "survey", r.OnComplete.TargetRouteID)
	require.NotNil(t, r.DataSchema)
	require.NotNil(t, r.DataSchema.Property("order_id"))
	require.Len(t, r.Tools, 1)
	assert.Equal(t, "lookup_order", r.Tools[0].Name())

	first := r.InitialStep()
	require.NotNil(t, first)
	assert.Equal(t, "ask order", first.Description)
	assert.Equal(t, []string{"order_id"}, first.Collect)

	succ := r.Successors(first)
	require.Len(t, succ, 1)
	second := succ[0]
	assert.Equal(t, "ask reason", second.Description)
	require.NotNil(t, second.SkipIf)
	skip, err := second.SkipIf(SkipContext{Data: map[string]any{"reason": "broken"}})
	require.NoError(t, err)
	assert.True(t, skip)

	require.NotNil(t, second.Finalize)
	require.NoError(t, second.Finalize.Execute(core.NewToolContext(t.Context(), core.NewSession("s"), nil, nil, "", nil), nil))
	assert.True(t, called)

	end := r.Successors(second)
	require.Len(t, end, 1)
	assert.True(t, end[0].IsTerminal())
}

func TestLoadBranchingRoute(t *testing.T) {
	const branching = `
id: delivery
title: Delivery
steps:
  - description: choose
    collect: [mode]
    branches:
      - name: pickup
        steps:
          - description: pick store
            collect: [store]
          - end: true
      - name: ship
        steps:
          - description: collect address
            collect: [address]
          - end: true
`
	routes, err := Load([]byte(branching), opts())
	require.NoError(t, err)
	r := routes[0]

	entry := r.InitialStep()
	assert.Equal(t, []string{"pickup", "ship"}, r.BranchNames(entry))
	succ := r.Successors(entry)
	require.Len(t, succ, 2)
	assert.Equal(t, "pick store", succ[0].Description)
	assert.Equal(t, "collect address", succ[1].Description)
}

func TestLoadRejectsUnknownPredicate(t *testing.T) {
	const bad = `
id: r
title: R
steps:
  - description: s
    skip_if: does_not_exist
  - end: true
`
	_, err := Load([]byte(bad), opts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown skip predicate")
}

func TestLoadRejectsEmptyRoute(t *testing.T) {
	_, err := Load([]byte("id: r\ntitle: R\n"), opts())
	require.Error(t, err)
}

func opts() LoaderOptions { return LoaderOptions{} }
