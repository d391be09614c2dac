package batch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falai-dev/falai-go/route"
)

func buildLinear(t *testing.T, specs ...route.StepSpec) *route.Route {
	t.Helper()
	b := route.NewBuilder("r", "R")
	require.NotEmpty(t, specs)
	h := b.InitialStep(specs[0])
	for _, spec := range specs[1:] {
		h = h.NextStep(spec)
	}
	h.EndRoute()
	return b.MustBuild()
}

func descriptions(steps []*route.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Description
	}
	return out
}

func TestDetermineSingleCollectStep(t *testing.T) {
	b := route.NewBuilder("r", "R")
	b.InitialStep(route.StepSpec{Description: "a", Collect: []string{"x"}})
	r := b.MustBuild()

	// No data: the step needs input and is never itself included.
	got := Determine(r, nil, map[string]any{}, nil)
	assert.Equal(t, StopNeedsInput, got.StopReason)
	assert.Empty(t, got.Steps)
	require.NotNil(t, got.StoppedAt)
	assert.Equal(t, "a", got.StoppedAt.Description)

	// With the field present the step is included and the chain exhausts.
	got = Determine(r, nil, map[string]any{"x": "v"}, nil)
	assert.Equal(t, StopRouteComplete, got.StopReason)
	assert.Equal(t, []string{"a"}, descriptions(got.Steps))
	assert.Nil(t, got.StoppedAt)
}

func TestDetermineStopsAtFirstNeedingStep(t *testing.T) {
	r := buildLinear(t,
		route.StepSpec{Description: "s1"},
		route.StepSpec{Description: "s2", Collect: []string{"a"}},
		route.StepSpec{Description: "s3", Collect: []string{"b"}},
	)

	got := Determine(r, nil, map[string]any{"a": 1}, nil)
	assert.Equal(t, StopNeedsInput, got.StopReason)
	assert.Equal(t, []string{"s1", "s2"}, descriptions(got.Steps))
	assert.Equal(t, "s3", got.StoppedAt.Description)
}

func TestDetermineStopsAtEndRoute(t *testing.T) {
	r := buildLinear(t,
		route.StepSpec{Description: "s1"},
		route.StepSpec{Description: "s2"},
	)

	got := Determine(r, nil, map[string]any{}, nil)
	assert.Equal(t, StopEndRoute, got.StopReason)
	assert.Equal(t, []string{"s1", "s2"}, descriptions(got.Steps))
	require.NotNil(t, got.StoppedAt)
	assert.True(t, got.StoppedAt.IsTerminal())
}

func TestDetermineElidesSkippedSteps(t *testing.T) {
	skip := func(route.SkipContext) (bool, error) { return true, nil }
	r := buildLinear(t,
		route.StepSpec{Description: "s1"},
		route.StepSpec{Description: "s2", SkipIf: skip},
		route.StepSpec{Description: "s3"},
	)

	got := Determine(r, nil, map[string]any{}, nil)
	assert.Equal(t, StopEndRoute, got.StopReason)
	assert.Equal(t, []string{"s1", "s3"}, descriptions(got.Steps))
	assert.Equal(t, []string{"s2"}, descriptions(got.Skipped))
}

func TestDetermineSkipIfEvaluatedBeforeNeedsInput(t *testing.T) {
	// The step both needs input and skips; skipIf wins and the walk moves on.
	skip := func(route.SkipContext) (bool, error) { return true, nil }
	r := buildLinear(t,
		route.StepSpec{Description: "needy", Collect: []string{"x"}, SkipIf: skip},
		route.StepSpec{Description: "after"},
	)

	got := Determine(r, nil, map[string]any{}, nil)
	assert.Equal(t, StopEndRoute, got.StopReason)
	assert.Equal(t, []string{"after"}, descriptions(got.Steps))
	assert.Equal(t, []string{"needy"}, descriptions(got.Skipped))
}

func TestDetermineThrowingSkipIfNeverSkips(t *testing.T) {
	boom := func(route.SkipContext) (bool, error) { return true, errors.New("boom") }
	r := buildLinear(t,
		route.StepSpec{Description: "guarded", Collect: []string{"x"}, SkipIf: boom},
	)

	got := Determine(r, nil, map[string]any{}, nil)
	assert.Equal(t, StopNeedsInput, got.StopReason)
	assert.Equal(t, "guarded", got.StoppedAt.Description)
	assert.Empty(t, got.Skipped)
}

func TestDetermineStartsFromCurrentStep(t *testing.T) {
	r := buildLinear(t,
		route.StepSpec{Description: "s1"},
		route.StepSpec{Description: "s2"},
		route.StepSpec{Description: "s3"},
	)
	var s2 *route.Step
	for _, s := range r.Steps() {
		if s.Description == "s2" {
			s2 = s
		}
	}
	require.NotNil(t, s2)

	got := Determine(r, s2, map[string]any{}, nil)
	assert.Equal(t, []string{"s2", "s3"}, descriptions(got.Steps))
}

func TestDetermineRequiresDominatesCollect(t *testing.T) {
	r := buildLinear(t,
		route.StepSpec{Description: "s1", Requires: []string{"name"}, Collect: []string{"email"}},
	)

	// Collect already satisfied, requires not: still needs input.
	got := Determine(r, nil, map[string]any{"email": "a@b.c"}, nil)
	assert.Equal(t, StopNeedsInput, got.StopReason)
	assert.Empty(t, got.Steps)
}

func TestCollectFieldsDeduplicatesUnion(t *testing.T) {
	r := buildLinear(t,
		route.StepSpec{Description: "s1", Collect: []string{"a", "b"}},
		route.StepSpec{Description: "s2", Collect: []string{"b", "c"}},
	)
	got := Determine(r, nil, map[string]any{"a": 1, "b": 2, "c": 3}, nil)
	assert.Equal(t, []string{"a", "b", "c"}, got.CollectFields())
}

func TestCollectFieldsIncludesNeedingStep(t *testing.T) {
	r := buildLinear(t,
		route.StepSpec{Description: "s1"},
		route.StepSpec{Description: "s2", Collect: []string{"email"}},
	)
	got := Determine(r, nil, map[string]any{}, nil)
	require.Equal(t, StopNeedsInput, got.StopReason)
	assert.Equal(t, []string{"email"}, got.CollectFields(),
		"extraction must cover the step awaiting input")
}
