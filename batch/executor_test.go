package batch

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falai-dev/falai-go/core"
	"github.com/falai-dev/falai-go/model"
	"github.com/falai-dev/falai-go/route"
	"github.com/falai-dev/falai-go/schema"
	"github.com/falai-dev/falai-go/tool"
)

func newExecutor(provider model.Provider) *Executor {
	return NewExecutor(Options{
		Provider:     provider,
		Registry:     tool.NewRegistry(),
		ToolExecutor: tool.NewExecutor(provider, nil),
	})
}

func sessionInRoute(r *route.Route) *core.Session {
	s := core.NewSession("s1")
	s.EnterRoute(r.ID, r.Title, false)
	return s
}

func TestExecutePrepareFailureRollsBack(t *testing.T) {
	var ran []string
	hook := func(name string, err error) *route.Hook {
		return route.NewFuncHook(func(*core.ToolContext) error {
			ran = append(ran, name)
			return err
		})
	}
	r := buildLinear(t,
		route.StepSpec{Description: "s1", Prepare: hook("p1", nil)},
		route.StepSpec{Description: "s2", Prepare: hook("p2", errors.New("prepare boom"))},
		route.StepSpec{Description: "s3", Prepare: hook("p3", nil)},
	)

	provider := model.NewMockProvider("mock")
	sess := sessionInRoute(r)
	sess.MergeData(map[string]any{"seed": "v"})
	snapshot := sess.Clone()

	b := Determine(r, nil, sess.Data, nil)
	res := newExecutor(provider).Execute(t.Context(), b, sess, map[string]any{}, nil)

	assert.Equal(t, StopPrepareError, res.StopReason)
	assert.Equal(t, []string{"p1", "p2"}, ran, "hooks after the failure must not run")
	assert.Equal(t, []string{"s1"}, descriptions(res.ExecutedSteps))
	require.NotNil(t, res.Err)
	assert.Equal(t, core.ErrorTypePrepareHook, res.Err.Type)

	assert.Same(t, sess, res.Session, "fatal errors return the input session")
	assert.True(t, reflect.DeepEqual(snapshot.Data, res.Session.Data))
	assert.Empty(t, provider.Requests(), "no model call after a prepare failure")
}

func TestExecuteModelFailureRollsBack(t *testing.T) {
	r := buildLinear(t, route.StepSpec{Description: "s1", Prompt: "do it"})
	provider := model.NewMockProvider("mock")
	provider.Fail(errors.New("boom"))

	sess := sessionInRoute(r)
	b := Determine(r, nil, sess.Data, nil)
	res := newExecutor(provider).Execute(t.Context(), b, sess, map[string]any{}, nil)

	assert.Equal(t, StopLLMError, res.StopReason)
	assert.Empty(t, res.ExecutedSteps)
	assert.Same(t, sess, res.Session)
	require.NotNil(t, res.Err)
	assert.Equal(t, core.ErrorTypeLLMCall, res.Err.Type)
	assert.EqualError(t, res.Err.Cause, "boom")
}

func TestExecuteCollectsAndMergesData(t *testing.T) {
	r := buildLinear(t,
		route.StepSpec{Description: "s1", Collect: []string{"name"}},
		route.StepSpec{Description: "s2", Collect: []string{"email"}},
	)
	provider := model.NewMockProvider("mock")
	provider.EnqueueStructured("Got it, thanks!", map[string]any{"name": "Ada"})

	sess := sessionInRoute(r)
	sess.MergeData(map[string]any{"name": "placeholder", "email": "a@b.c"})

	b := Determine(r, nil, sess.Data, nil)
	res := newExecutor(provider).Execute(t.Context(), b, sess, map[string]any{}, nil)

	require.Nil(t, res.Err)
	assert.Equal(t, "Got it, thanks!", res.Message)
	assert.Equal(t, map[string]any{"name": "Ada"}, res.CollectedData)
	assert.Equal(t, []string{"email"}, res.FieldsMissing)
	assert.Equal(t, "Ada", res.Session.Data["name"], "collected data merged into the session")
	assert.Equal(t, "placeholder", sess.Data["name"], "input session stays untouched")
}

func TestExecuteValidationErrorStillMerges(t *testing.T) {
	b := route.NewBuilder("r", "R").
		WithDataSchema(schema.Object(map[string]*schema.Schema{
			"field1": schema.String(""),
		}))
	b.InitialStep(route.StepSpec{Description: "a", Collect: []string{"field1"}})
	r := b.MustBuild()

	provider := model.NewMockProvider("mock")
	provider.EnqueueStructured("noted", map[string]any{"field1": 123})

	sess := sessionInRoute(r)
	sess.MergeData(map[string]any{"field1": "old"})
	batch := Determine(r, nil, sess.Data, nil)
	res := newExecutor(provider).Execute(t.Context(), batch, sess, map[string]any{}, nil)

	assert.Equal(t, StopValidationError, res.StopReason)
	require.NotEmpty(t, res.ValidationErrors)
	assert.Equal(t, "field1", res.ValidationErrors[0].Field)
	assert.False(t, res.Success())
	assert.EqualValues(t, 123, res.Session.Data["field1"], "value merged despite the type mismatch")
}

func TestExecuteFinalizeFailuresAreNonFatal(t *testing.T) {
	var ran []string
	hook := func(name string, err error) *route.Hook {
		return route.NewFuncHook(func(*core.ToolContext) error {
			ran = append(ran, name)
			return err
		})
	}
	r := buildLinear(t,
		route.StepSpec{Description: "s1", Finalize: hook("f1", errors.New("first boom"))},
		route.StepSpec{Description: "s2", Finalize: hook("f2", nil)},
		route.StepSpec{Description: "s3", Finalize: hook("f3", errors.New("third boom"))},
	)
	provider := model.NewMockProvider("mock")

	sess := sessionInRoute(r)
	b := Determine(r, nil, sess.Data, nil)
	res := newExecutor(provider).Execute(t.Context(), b, sess, map[string]any{}, nil)

	assert.Equal(t, []string{"f1", "f2", "f3"}, ran, "every finalize hook runs")
	require.Len(t, res.FinalizeErrors, 2)
	assert.Equal(t, core.ErrorTypeFinalizeHook, res.FinalizeErrors[0].Type)
	assert.Equal(t, StopEndRoute, res.StopReason, "finalize failures never change the stop reason")
	assert.Nil(t, res.Err)
	assert.NotSame(t, sess, res.Session, "the batch still succeeds")
}

func TestExecuteCombinedPromptCoversBatch(t *testing.T) {
	r := buildLinear(t,
		route.StepSpec{Description: "s1", Prompt: "Ask about the weather.", Collect: []string{"city"}},
		route.StepSpec{Description: "s2", Prompt: "Offer the forecast.", Collect: []string{"city", "units"}},
	)
	provider := model.NewMockProvider("mock")

	sess := sessionInRoute(r)
	sess.MergeData(map[string]any{"city": "Oslo", "units": "metric"})
	b := Determine(r, nil, sess.Data, nil)
	newExecutor(provider).Execute(t.Context(), b, sess, map[string]any{}, nil)

	reqs := provider.Requests()
	require.Len(t, reqs, 1, "exactly one model call per batch")
	prompt := reqs[0].Prompt
	assert.Contains(t, prompt, "Ask about the weather.")
	assert.Contains(t, prompt, "Offer the forecast.")
	assert.Contains(t, prompt, "city")
	assert.Contains(t, prompt, "units")
	require.NotNil(t, reqs[0].Parameters.JSONSchema)
}

func TestExecuteEmitsEventsInOrder(t *testing.T) {
	skip := func(route.SkipContext) (bool, error) { return true, nil }
	r := buildLinear(t,
		route.StepSpec{Description: "s1"},
		route.StepSpec{Description: "s2", SkipIf: skip},
	)
	provider := model.NewMockProvider("mock")
	events := core.NewEventRegistry()
	exec := NewExecutor(Options{
		Provider: provider,
		Registry: tool.NewRegistry(),
		Events:   events,
	})

	var order []core.EventType
	events.Subscribe(func(ev core.Event) { order = append(order, ev.Type) })
	// A panicking listener must not disturb the rest.
	events.Subscribe(func(core.Event) { panic("listener boom") })

	sess := sessionInRoute(r)
	b := Determine(r, nil, sess.Data, nil)
	exec.Execute(t.Context(), b, sess, map[string]any{}, nil)

	assert.Equal(t, []core.EventType{
		core.EventBatchStart,
		core.EventStepIncluded,
		core.EventStepSkipped,
		core.EventBatchStop,
		core.EventBatchComplete,
	}, order)
}

func TestExecuteRouteCompletionSetsTransition(t *testing.T) {
	b := route.NewBuilder("intake", "Intake").
		WithRequiredFields("name").
		OnComplete("followup")
	b.InitialStep(route.StepSpec{Description: "collect name", Collect: []string{"name"}}).EndRoute()
	r := b.MustBuild()

	provider := model.NewMockProvider("mock")
	sess := sessionInRoute(r)
	sess.MergeData(map[string]any{"name": "Ada"})

	batch := Determine(r, nil, sess.Data, nil)
	require.Equal(t, StopEndRoute, batch.StopReason)
	res := newExecutor(provider).Execute(t.Context(), batch, sess, map[string]any{}, nil)

	require.Nil(t, res.Err)
	assert.True(t, res.Session.ActiveRouteCompleted())
	require.NotNil(t, res.Session.PendingTransition)
	assert.Equal(t, "followup", res.Session.PendingTransition.TargetRouteID)
	assert.Equal(t, core.TransitionRouteComplete, res.Session.PendingTransition.Reason)
}

func TestExecuteHookUpdatesFlowThroughChains(t *testing.T) {
	var hookOrder []string
	r := buildLinear(t, route.StepSpec{
		Description: "s1",
		Prepare: route.NewFuncHook(func(tc *core.ToolContext) error {
			tc.UpdateData("source", "prepare")
			return nil
		}),
	})
	// Route-level hook enriches every merge.
	r.Hooks.OnDataUpdate = func(_ *core.Session, update map[string]any) error {
		hookOrder = append(hookOrder, "route")
		update["enriched"] = true
		return nil
	}

	provider := model.NewMockProvider("mock")
	exec := NewExecutor(Options{
		Provider: provider,
		Registry: tool.NewRegistry(),
		OnDataUpdate: func(_ *core.Session, update map[string]any) error {
			hookOrder = append(hookOrder, "agent")
			return nil
		},
	})

	sess := sessionInRoute(r)
	b := Determine(r, nil, sess.Data, nil)
	res := exec.Execute(t.Context(), b, sess, map[string]any{}, nil)

	require.Nil(t, res.Err)
	assert.Equal(t, []string{"agent", "route"}, hookOrder, "agent hooks run first by default")
	assert.Equal(t, "prepare", res.Session.Data["source"])
	assert.Equal(t, true, res.Session.Data["enriched"], "hooks may mutate the update before commit")
}

func TestExecuteStreamDeliversChunksAndResult(t *testing.T) {
	r := buildLinear(t, route.StepSpec{Description: "s1", Collect: []string{"name"}})
	provider := model.NewMockProvider("mock")
	provider.EnqueueStructured("Hi Ada", map[string]any{"name": "Ada"})

	sess := sessionInRoute(r)
	sess.MergeData(map[string]any{"name": "placeholder"})
	b := Determine(r, nil, sess.Data, nil)

	chunks, results := newExecutor(provider).ExecuteStream(t.Context(), b, sess, map[string]any{}, nil)
	var last model.Chunk
	for ck := range chunks {
		last = ck
	}
	res := <-results

	assert.True(t, last.Done)
	require.Nil(t, res.Err)
	assert.Equal(t, "Hi Ada", res.Message)
	assert.Equal(t, "Ada", res.Session.Data["name"])
}
