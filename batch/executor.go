package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/falai-dev/falai-go/core"
	"github.com/falai-dev/falai-go/logging"
	"github.com/falai-dev/falai-go/model"
	"github.com/falai-dev/falai-go/route"
	"github.com/falai-dev/falai-go/schema"
	"github.com/falai-dev/falai-go/tool"
)

// HookOrder controls whether agent-level or route-level data/context hooks
// run first after a merge.
type HookOrder int

const (
	AgentHooksFirst HookOrder = iota
	RouteHooksFirst
)

// Result is the outcome of executing one batch.
type Result struct {
	// Session is the updated session on success, or the caller's input
	// session untouched on a prepare or model failure.
	Session *core.Session
	// StopReason is the final classification: the walk's reason, or one of
	// the error reasons, or validation_error when collected data failed a
	// schema check.
	StopReason StopReason
	StoppedAt  *route.Step
	// ExecutedSteps lists steps whose work completed. Empty on model
	// failure; on a prepare failure it holds only the steps whose prepare
	// hook ran before the failing one.
	ExecutedSteps []*route.Step
	CollectedData map[string]any
	// FieldsMissing lists collect fields absent from the model's structured
	// response. Informational.
	FieldsMissing    []string
	ValidationErrors []schema.ValidationError
	Message          string
	ToolCalls        []core.ToolCall
	Transcript       []core.Message
	// Err is the fatal error for prepare_error and llm_error stops.
	Err *core.ExecutionError
	// FinalizeErrors accumulates non-fatal finalize-hook failures. They
	// never change StopReason.
	FinalizeErrors []*core.ExecutionError
}

// Success reports whether the batch ran to completion without fatal or
// validation errors.
func (r *Result) Success() bool {
	return r.Err == nil && len(r.ValidationErrors) == 0
}

// Options wires an Executor's collaborators.
type Options struct {
	Provider     model.Provider
	Registry     *tool.Registry
	AgentTools   []tool.Ref
	ToolExecutor *tool.Executor
	Events       *core.EventRegistry
	Logger       logging.Logger
	// OnDataUpdate and OnContextUpdate are the agent-level hooks; the active
	// route's hooks are chained per HookOrder.
	OnDataUpdate    route.UpdateHook
	OnContextUpdate route.UpdateHook
	HookOrder       HookOrder
}

// Executor runs batches. Within one call ordering is strictly sequential:
// prepare hooks, one model call, data collection and validation, finalize
// hooks. It works on a session clone so fatal errors hand back the input
// session unchanged.
type Executor struct {
	opts   Options
	logger logging.Logger
}

// NewExecutor creates a batch executor.
func NewExecutor(opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Events == nil {
		opts.Events = core.NewEventRegistry()
	}
	return &Executor{opts: opts, logger: opts.Logger}
}

// Execute runs b against session. The input session is never mutated; the
// returned Result.Session carries the post-batch state on success and
// aliases the input on fatal failure.
func (e *Executor) Execute(ctx context.Context, b *Batch, session *core.Session, agentContext map[string]any, history []core.Message) *Result {
	started := time.Now()
	res := &Result{Session: session, StopReason: b.StopReason, StoppedAt: b.StoppedAt}

	e.emitBatchStart(b, session)

	work := session.Clone()
	scope := e.scope(b)

	if err := e.runPrepare(ctx, b, work, agentContext, history, scope, res); err != nil {
		res.Session = session
		res.StopReason = StopPrepareError
		res.Err = err
		e.emitComplete(b, session, res, started)
		return res
	}

	if err := e.modelCall(ctx, b, work, agentContext, history, scope, res); err != nil {
		res.Session = session
		res.StopReason = StopLLMError
		res.ExecutedSteps = nil
		res.Err = err
		e.emitComplete(b, session, res, started)
		return res
	}

	e.collectData(b, work, res)
	e.runFinalize(ctx, b, work, agentContext, history, scope, res)

	e.updatePosition(b, work)
	res.Session = work
	res.ExecutedSteps = b.Steps
	e.emitComplete(b, work, res, started)
	return res
}

// ExecuteStream runs b like Execute but streams the model's answer. Chunks
// are forwarded as they arrive and the final Result is delivered on the
// second channel once collection, validation and finalize hooks have run.
// Tool follow-up calls are not made on the streaming path.
func (e *Executor) ExecuteStream(ctx context.Context, b *Batch, session *core.Session, agentContext map[string]any, history []core.Message) (<-chan model.Chunk, <-chan *Result) {
	chunks := make(chan model.Chunk)
	results := make(chan *Result, 1)

	go func() {
		defer close(chunks)
		defer close(results)

		started := time.Now()
		res := &Result{Session: session, StopReason: b.StopReason, StoppedAt: b.StoppedAt}
		e.emitBatchStart(b, session)

		work := session.Clone()
		scope := e.scope(b)

		if err := e.runPrepare(ctx, b, work, agentContext, history, scope, res); err != nil {
			res.Session = session
			res.StopReason = StopPrepareError
			res.Err = err
			e.emitComplete(b, session, res, started)
			results <- res
			return
		}

		req := model.Request{
			Prompt:  BuildPrompt(b),
			History: history,
			Context: agentContext,
		}
		if cs := CollectSchema(b); cs != nil {
			req.Parameters = model.Parameters{JSONSchema: cs.ToMap(), SchemaName: "collected_data"}
		}

		stream, errCh := e.opts.Provider.GenerateStream(ctx, req)
		var structured map[string]any
		for chunk := range stream {
			res.Message = chunk.Accumulated
			if chunk.Structured != nil {
				structured = chunk.Structured
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
			}
		}
		if err := <-errCh; err != nil {
			e.logger.Error("batch.stream_failed", "session_id", work.ID, "error", err.Error())
			res.Session = session
			res.StopReason = StopLLMError
			res.ExecutedSteps = nil
			res.Err = core.NewExecutionError(core.ErrorTypeLLMCall, "", err)
			e.emitComplete(b, session, res, started)
			results <- res
			return
		}

		res.CollectedData = extractFields(b, structured)
		e.collectData(b, work, res)
		e.runFinalize(ctx, b, work, agentContext, history, scope, res)
		e.updatePosition(b, work)
		res.Session = work
		res.ExecutedSteps = b.Steps
		e.emitComplete(b, work, res, started)
		results <- res
	}()

	return chunks, results
}

func (e *Executor) scope(b *Batch) *tool.Scope {
	var stepTools []tool.Ref
	for _, s := range b.Steps {
		stepTools = append(stepTools, s.Tools...)
	}
	if b.StopReason == StopNeedsInput && b.StoppedAt != nil {
		stepTools = append(stepTools, b.StoppedAt.Tools...)
	}
	return tool.NewScope(e.opts.Registry, stepTools, b.Route.Tools, e.opts.AgentTools)
}

// runPrepare executes each batched step's prepare hook in order. The first
// failure aborts the batch; hooks that already ran are recorded in
// ExecutedSteps.
func (e *Executor) runPrepare(ctx context.Context, b *Batch, work *core.Session, agentContext map[string]any, history []core.Message, scope *tool.Scope, res *Result) *core.ExecutionError {
	for _, step := range b.Steps {
		if step.Prepare != nil {
			toolCtx := core.NewToolContext(ctx, work, history, agentContext, "", e.logger)
			if err := runHook(step.Prepare, toolCtx, scope); err != nil {
				e.logger.Error("batch.prepare_failed",
					"session_id", work.ID,
					"step_id", step.ID,
					"error", err.Error())
				return core.NewExecutionError(core.ErrorTypePrepareHook, step.ID, err)
			}
			e.applyHookUpdates(b, work, agentContext, toolCtx)
		}
		res.ExecutedSteps = append(res.ExecutedSteps, step)
	}
	return nil
}

// modelCall issues the batch's single model call and, when the model
// requests tools, drives the bounded follow-up loop.
func (e *Executor) modelCall(ctx context.Context, b *Batch, work *core.Session, agentContext map[string]any, history []core.Message, scope *tool.Scope, res *Result) *core.ExecutionError {
	req := model.Request{
		Prompt:  BuildPrompt(b),
		History: history,
		Context: agentContext,
		Tools:   scope.Definitions(),
	}
	if cs := CollectSchema(b); cs != nil {
		req.Parameters = model.Parameters{JSONSchema: cs.ToMap(), SchemaName: "collected_data"}
	}

	resp, err := e.opts.Provider.GenerateMessage(ctx, req)
	if err != nil {
		e.logger.Error("batch.model_call_failed", "session_id", work.ID, "error", err.Error())
		return core.NewExecutionError(core.ErrorTypeLLMCall, "", err)
	}

	res.Message = resp.Message
	res.ToolCalls = resp.ToolCalls
	structured := resp.Structured

	if len(resp.ToolCalls) > 0 && e.opts.ToolExecutor != nil {
		outcome, err := e.opts.ToolExecutor.Run(ctx, scope, work, agentContext, req, resp)
		if outcome != nil {
			res.Message = outcome.Message
			res.ToolCalls = outcome.ToolCalls
			res.Transcript = outcome.Transcript
			if outcome.Structured != nil {
				structured = outcome.Structured
			}
			e.applyDataUpdate(b, work, outcome.DataUpdates)
			e.applyContextUpdate(b, work, agentContext, outcome.ContextUpdates)
		}
		if err != nil {
			return core.NewExecutionError(core.ErrorTypeLLMCall, "", err)
		}
	}

	res.CollectedData = map[string]any{}
	for f, v := range extractFields(b, structured) {
		res.CollectedData[f] = v
	}
	return nil
}

// collectData records which collect fields came back, validates them against
// the route schema and merges them into the session. Validation failures
// flip the stop reason but never block the merge.
func (e *Executor) collectData(b *Batch, work *core.Session, res *Result) {
	fields := b.CollectFields()
	for _, f := range fields {
		if _, ok := res.CollectedData[f]; !ok {
			res.FieldsMissing = append(res.FieldsMissing, f)
		}
	}
	if len(res.CollectedData) == 0 {
		return
	}

	if vs := validationSchema(b); vs != nil {
		res.ValidationErrors = vs.Validate(res.CollectedData)
		if len(res.ValidationErrors) > 0 {
			res.StopReason = StopValidationError
			e.logger.Warn("batch.validation_failed",
				"session_id", work.ID,
				"errors", len(res.ValidationErrors))
		}
	}

	e.applyDataUpdate(b, work, res.CollectedData)
}

// runFinalize executes every batched step's finalize hook in order, even
// after failures. Errors accumulate and are reported only.
func (e *Executor) runFinalize(ctx context.Context, b *Batch, work *core.Session, agentContext map[string]any, history []core.Message, scope *tool.Scope, res *Result) {
	for _, step := range b.Steps {
		if step.Finalize == nil {
			continue
		}
		toolCtx := core.NewToolContext(ctx, work, history, agentContext, "", e.logger)
		if err := runHook(step.Finalize, toolCtx, scope); err != nil {
			e.logger.Warn("batch.finalize_failed",
				"session_id", work.ID,
				"step_id", step.ID,
				"error", err.Error())
			res.FinalizeErrors = append(res.FinalizeErrors, core.NewExecutionError(core.ErrorTypeFinalizeHook, step.ID, err))
			continue
		}
		e.applyHookUpdates(b, work, agentContext, toolCtx)
	}
}

// updatePosition moves the session to where the walk stopped and applies
// completion side effects when the route finished with its required fields
// present.
func (e *Executor) updatePosition(b *Batch, work *core.Session) {
	switch b.StopReason {
	case StopNeedsInput:
		if b.StoppedAt != nil {
			work.EnterStep(b.StoppedAt.ID, b.StoppedAt.Description)
		}
		return
	case StopEndRoute:
		if b.StoppedAt != nil {
			work.EnterStep(b.StoppedAt.ID, b.StoppedAt.Description)
		}
	case StopRouteComplete:
		if n := len(b.Steps); n > 0 {
			last := b.Steps[n-1]
			work.EnterStep(last.ID, last.Description)
		}
	default:
		return
	}

	r := b.Route
	if !r.RequiredFieldsSatisfied(work.Data) {
		return
	}
	work.MarkRouteComplete()
	if r.OnComplete != nil {
		work.SetPendingTransition(r.OnComplete.TargetRouteID, r.OnComplete.Condition, core.TransitionRouteComplete)
		work.MergeDataForRoute(r.OnComplete.TargetRouteID, r.OnComplete.InitialData)
	}
	e.logger.Info("batch.route_complete", "session_id", work.ID, "route_id", r.ID)
}

// applyHookUpdates commits updates a hook staged on its tool context.
func (e *Executor) applyHookUpdates(b *Batch, work *core.Session, agentContext map[string]any, toolCtx *core.ToolContext) {
	e.applyDataUpdate(b, work, toolCtx.DataUpdates())
	e.applyContextUpdate(b, work, agentContext, toolCtx.ContextUpdates())
}

// applyDataUpdate runs the data-update hook chain, which may mutate the
// update in place, then merges it. Hook failures are logged and do not
// block the merge.
func (e *Executor) applyDataUpdate(b *Batch, work *core.Session, update map[string]any) {
	if len(update) == 0 {
		return
	}
	for _, h := range e.dataHookChain(b.Route) {
		if err := h(work, update); err != nil {
			e.logger.Warn("batch.data_hook_failed", "session_id", work.ID, "error", err.Error())
		}
	}
	work.MergeData(update)
}

// applyContextUpdate runs the context-update hook chain and merges the
// update into the shared agent context.
func (e *Executor) applyContextUpdate(b *Batch, work *core.Session, agentContext map[string]any, update map[string]any) {
	if len(update) == 0 {
		return
	}
	for _, h := range e.contextHookChain(b.Route) {
		if err := h(work, update); err != nil {
			e.logger.Warn("batch.context_hook_failed", "session_id", work.ID, "error", err.Error())
		}
	}
	for k, v := range update {
		agentContext[k] = v
	}
}

func (e *Executor) dataHookChain(r *route.Route) []route.UpdateHook {
	return orderHooks(e.opts.HookOrder, e.opts.OnDataUpdate, r.Hooks.OnDataUpdate)
}

func (e *Executor) contextHookChain(r *route.Route) []route.UpdateHook {
	return orderHooks(e.opts.HookOrder, e.opts.OnContextUpdate, r.Hooks.OnContextUpdate)
}

func orderHooks(order HookOrder, agentHook, routeHook route.UpdateHook) []route.UpdateHook {
	var chain []route.UpdateHook
	first, second := agentHook, routeHook
	if order == RouteHooksFirst {
		first, second = routeHook, agentHook
	}
	if first != nil {
		chain = append(chain, first)
	}
	if second != nil {
		chain = append(chain, second)
	}
	return chain
}

// runHook dispatches a hook with panic isolation.
func runHook(h *route.Hook, toolCtx *core.ToolContext, scope *tool.Scope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return h.Execute(toolCtx, scope)
}

// extractFields pulls the batch's collect fields out of the structured
// response. Absent and nil values are left out.
func extractFields(b *Batch, structured map[string]any) map[string]any {
	out := map[string]any{}
	if structured == nil {
		return out
	}
	for _, f := range b.CollectFields() {
		if v, ok := structured[f]; ok && v != nil {
			out[f] = v
		}
	}
	return out
}

func (e *Executor) emitBatchStart(b *Batch, session *core.Session) {
	ev := core.NewEvent(core.EventBatchStart)
	ev.SessionID = session.ID
	ev.RouteID = b.Route.ID
	ev.StepIDs = b.StepIDs()
	e.opts.Events.Emit(ev)

	for _, s := range b.Steps {
		inc := core.NewEvent(core.EventStepIncluded)
		inc.SessionID = session.ID
		inc.RouteID = b.Route.ID
		inc.StepID = s.ID
		e.opts.Events.Emit(inc)
	}
	for _, s := range b.Skipped {
		skip := core.NewEvent(core.EventStepSkipped)
		skip.SessionID = session.ID
		skip.RouteID = b.Route.ID
		skip.StepID = s.ID
		e.opts.Events.Emit(skip)
	}

	stop := core.NewEvent(core.EventBatchStop)
	stop.SessionID = session.ID
	stop.RouteID = b.Route.ID
	stop.StopReason = string(b.StopReason)
	if b.StoppedAt != nil {
		stop.StepID = b.StoppedAt.ID
	}
	e.opts.Events.Emit(stop)
}

func (e *Executor) emitComplete(b *Batch, session *core.Session, res *Result, started time.Time) {
	ev := core.NewEvent(core.EventBatchComplete)
	ev.SessionID = session.ID
	ev.RouteID = b.Route.ID
	ev.StepIDs = b.StepIDs()
	ev.StopReason = string(res.StopReason)
	e.opts.Events.Emit(ev)

	var err error
	if res.Err != nil {
		err = res.Err
	}
	e.logger.Debug("batch.execution_finished",
		"session_id", session.ID,
		"route_id", b.Route.ID,
		"steps", len(b.Steps),
		"stop_reason", string(res.StopReason),
		"duration_ms", time.Since(started).Milliseconds(),
		"error", err)
}
