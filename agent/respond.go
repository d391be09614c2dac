package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/falai-dev/falai-go/batch"
	"github.com/falai-dev/falai-go/core"
	"github.com/falai-dev/falai-go/model"
	"github.com/falai-dev/falai-go/route"
	"github.com/falai-dev/falai-go/routing"
	"github.com/falai-dev/falai-go/schema"
	"github.com/falai-dev/falai-go/tool"
)

// Response is the outcome of one conversation turn.
type Response struct {
	// Message is the assistant's reply for this turn.
	Message string
	// Session carries the post-turn state. On a fatal batch error it is the
	// pre-turn session unchanged so the caller can retry the turn.
	Session *core.Session
	// StopReason is set on turns that executed a batch.
	StopReason batch.StopReason
	RouteID    string
	StepID     string

	IsRouteComplete bool
	Switched        bool
	Scores          []routing.RouteScore

	CollectedData    map[string]any
	FieldsMissing    []string
	ValidationErrors []schema.ValidationError
	ToolCalls        []core.ToolCall

	// Err is the fatal batch error, nil on success. Validation and finalize
	// failures are reported in their own fields and do not set it.
	Err            *core.ExecutionError
	FinalizeErrors []*core.ExecutionError
}

// Respond executes one conversation turn: consume any pending transition,
// route, determine and execute the batch, persist. Sessions are
// single-writer; callers must not run two turns concurrently on the same
// session and should continue with the returned Response.Session.
func (a *Agent) Respond(ctx context.Context, sess *core.Session, userMessage string) (*Response, error) {
	if sess == nil {
		sess = core.NewSession(core.NewID())
	}
	turnID := core.NewTurnID()
	a.logger.Debug("agent.respond.start", "session_id", sess.ID, "turn_id", turnID)

	history, userMsg, err := a.recordUserMessage(ctx, sess, userMessage)
	if err != nil {
		return nil, err
	}

	agentCtx := a.contextSnapshot()
	decision, err := a.router.Decide(ctx, sess, history, agentCtx)
	if err != nil {
		return nil, err
	}

	resp := a.executeTurn(ctx, sess, history, decision, agentCtx)
	a.mergeContext(agentCtx)

	if err := a.finishTurn(ctx, resp, userMsg); err != nil {
		return resp, err
	}
	a.logger.Debug("agent.respond.finished",
		"session_id", resp.Session.ID,
		"turn_id", turnID,
		"route_id", resp.RouteID,
		"stop_reason", string(resp.StopReason))
	return resp, nil
}

// RespondStream is the streaming variant of Respond. Chunks arrive as the
// model produces them; the final Response is delivered on the second channel
// after collection, hooks and persistence finish. Tool follow-up calls are
// not made while streaming.
func (a *Agent) RespondStream(ctx context.Context, sess *core.Session, userMessage string) (<-chan model.Chunk, <-chan *Response, error) {
	if sess == nil {
		sess = core.NewSession(core.NewID())
	}
	history, userMsg, err := a.recordUserMessage(ctx, sess, userMessage)
	if err != nil {
		return nil, nil, err
	}

	agentCtx := a.contextSnapshot()
	decision, err := a.router.Decide(ctx, sess, history, agentCtx)
	if err != nil {
		return nil, nil, err
	}

	final := make(chan *Response, 1)

	if decision.Route == nil || decision.Step == nil {
		// No batch to run: stream a direct reply.
		req := a.directRequest(history, decision, agentCtx)
		chunks, errCh := a.provider.GenerateStream(ctx, req)
		out := make(chan model.Chunk)
		go func() {
			defer close(out)
			defer close(final)
			resp := a.responseForDecision(sess, decision)
			for chunk := range chunks {
				resp.Message = chunk.Accumulated
				if chunk.Structured != nil {
					a.mergeDirectStructured(sess, decision, chunk.Structured, resp)
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
				}
			}
			if err := <-errCh; err != nil {
				resp.Err = core.NewExecutionError(core.ErrorTypeLLMCall, "", err)
			} else if ferr := a.finishTurn(ctx, resp, userMsg); ferr != nil {
				a.logger.Error("agent.stream.persist_failed", "session_id", sess.ID, "error", ferr.Error())
			}
			final <- resp
		}()
		return out, final, nil
	}

	b := batch.Determine(decision.Route, decision.Step, sess.Data, agentCtx)
	chunks, results := a.executor.ExecuteStream(ctx, b, sess, agentCtx, history)
	go func() {
		defer close(final)
		res := <-results
		a.mergeContext(agentCtx)
		resp := a.responseFromResult(decision, res)
		if resp.Err == nil {
			if err := a.finishTurn(ctx, resp, userMsg); err != nil {
				a.logger.Error("agent.stream.persist_failed", "session_id", resp.Session.ID, "error", err.Error())
			}
		}
		final <- resp
	}()
	return chunks, final, nil
}

// executeTurn runs the post-routing part of a turn: a batch when there is a
// step to start from, a direct model reply otherwise.
func (a *Agent) executeTurn(ctx context.Context, sess *core.Session, history []core.Message, decision *routing.Decision, agentCtx map[string]any) *Response {
	if decision.Route != nil && decision.Step != nil {
		b := batch.Determine(decision.Route, decision.Step, sess.Data, agentCtx)
		res := a.executor.Execute(ctx, b, sess, agentCtx, history)
		return a.responseFromResult(decision, res)
	}

	resp := a.responseForDecision(sess, decision)
	req := a.directRequest(history, decision, agentCtx)
	result, err := a.provider.GenerateMessage(ctx, req)
	if err != nil {
		resp.Err = core.NewExecutionError(core.ErrorTypeLLMCall, "", err)
		return resp
	}
	resp.Message = result.Message
	resp.ToolCalls = result.ToolCalls

	if len(result.ToolCalls) > 0 {
		scope := tool.NewScope(a.registry, nil, a.routeTools(decision.Route), a.agentTools)
		outcome, err := a.toolExec.Run(ctx, scope, sess, agentCtx, req, result)
		if outcome != nil {
			resp.Message = outcome.Message
			resp.ToolCalls = outcome.ToolCalls
			sess.MergeData(outcome.DataUpdates)
			for k, v := range outcome.ContextUpdates {
				agentCtx[k] = v
			}
			if outcome.Structured != nil {
				result.Structured = outcome.Structured
			}
		}
		if err != nil {
			resp.Err = core.NewExecutionError(core.ErrorTypeLLMCall, "", err)
			return resp
		}
	}

	if result.Structured != nil {
		a.mergeDirectStructured(sess, decision, result.Structured, resp)
	}
	return resp
}

// responseForDecision seeds a Response for a turn with no batch.
func (a *Agent) responseForDecision(sess *core.Session, decision *routing.Decision) *Response {
	resp := &Response{
		Session:         sess,
		IsRouteComplete: decision.IsRouteComplete,
		Switched:        decision.Switched,
		Scores:          decision.Scores,
		FieldsMissing:   decision.MissingFields,
	}
	if decision.Route != nil {
		resp.RouteID = decision.Route.ID
	}
	return resp
}

func (a *Agent) responseFromResult(decision *routing.Decision, res *batch.Result) *Response {
	resp := &Response{
		Message:          res.Message,
		Session:          res.Session,
		StopReason:       res.StopReason,
		RouteID:          decision.Route.ID,
		Switched:         decision.Switched,
		Scores:           decision.Scores,
		CollectedData:    res.CollectedData,
		FieldsMissing:    res.FieldsMissing,
		ValidationErrors: res.ValidationErrors,
		ToolCalls:        res.ToolCalls,
		Err:              res.Err,
		FinalizeErrors:   res.FinalizeErrors,
	}
	if decision.Step != nil {
		resp.StepID = decision.Step.ID
	}
	if res.StopReason == batch.StopEndRoute || res.StopReason == batch.StopRouteComplete {
		resp.IsRouteComplete = res.Session.ActiveRouteCompleted()
	}
	return resp
}

// directRequest builds the model request for turns outside batch execution:
// no matching route, a completed route, or required fields the chain can no
// longer collect.
func (a *Agent) directRequest(history []core.Message, decision *routing.Decision, agentCtx map[string]any) model.Request {
	var b strings.Builder
	if a.opts.Name != "" {
		fmt.Fprintf(&b, "You are %s.\n", a.opts.Name)
	}
	if a.opts.Personality != "" {
		b.WriteString(a.opts.Personality)
		b.WriteString("\n")
	}

	req := model.Request{History: history, Context: agentCtx}
	switch {
	case decision.Route == nil:
		b.WriteString("Respond helpfully to the user's message.\n")
	case decision.IsRouteComplete:
		fmt.Fprintf(&b, "The %q flow has been completed. Acknowledge the outcome and offer further help.\n", decision.Route.Title)
		for _, g := range decision.Route.Guidelines {
			fmt.Fprintf(&b, "Guideline: %s\n", g)
		}
	case len(decision.MissingFields) > 0:
		fmt.Fprintf(&b, "The %q flow still needs the following information: %s. Ask the user for it.\n",
			decision.Route.Title, strings.Join(decision.MissingFields, ", "))
		req.Parameters = model.Parameters{
			JSONSchema: fieldSchema(decision.Route, decision.MissingFields).ToMap(),
			SchemaName: "collected_data",
		}
	default:
		b.WriteString("Respond helpfully to the user's message.\n")
	}
	req.Prompt = b.String()

	scope := tool.NewScope(a.registry, nil, a.routeTools(decision.Route), a.agentTools)
	req.Tools = scope.Definitions()
	return req
}

// mergeDirectStructured merges structured output from a non-batch turn,
// covering required fields the user supplied while outside the chain.
func (a *Agent) mergeDirectStructured(sess *core.Session, decision *routing.Decision, structured map[string]any, resp *Response) {
	if decision.Route == nil || len(decision.MissingFields) == 0 {
		return
	}
	collected := map[string]any{}
	for _, f := range decision.MissingFields {
		if v, ok := structured[f]; ok && v != nil {
			collected[f] = v
		}
	}
	if len(collected) == 0 {
		return
	}
	sess.MergeData(collected)
	resp.CollectedData = collected
}

func (a *Agent) routeTools(r *route.Route) []tool.Ref {
	if r == nil {
		return nil
	}
	return r.Tools
}

// recordUserMessage loads history, appends the user's message and persists
// it when a message repository is configured.
func (a *Agent) recordUserMessage(ctx context.Context, sess *core.Session, userMessage string) ([]core.Message, core.Message, error) {
	var history []core.Message
	if a.opts.MessageRepository != nil {
		loaded, err := a.opts.MessageRepository.FindBySessionID(ctx, sess.ID)
		if err != nil {
			return nil, core.Message{}, fmt.Errorf("load history: %w", err)
		}
		history = loaded
	}
	userMsg := core.NewUserMessage(userMessage)
	history = append(history, userMsg)
	if a.opts.MessageRepository != nil {
		if err := a.opts.MessageRepository.Create(ctx, sess.ID, userMsg); err != nil {
			return nil, core.Message{}, fmt.Errorf("persist user message: %w", err)
		}
	}
	return history, userMsg, nil
}

// finishTurn persists the assistant reply and, when auto-save is on, the
// session snapshot. Fatal batch errors skip persistence so the caller can
// retry against unchanged state.
func (a *Agent) finishTurn(ctx context.Context, resp *Response, _ core.Message) error {
	if resp.Err != nil {
		return nil
	}
	if a.opts.MessageRepository != nil && resp.Message != "" {
		if err := a.opts.MessageRepository.Create(ctx, resp.Session.ID, core.NewAssistantMessage(resp.Message)); err != nil {
			return fmt.Errorf("persist assistant message: %w", err)
		}
	}
	if a.opts.AutoSave && a.opts.SessionRepository != nil {
		if err := a.opts.SessionRepository.Update(ctx, resp.Session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	return nil
}

// fieldSchema builds an extraction schema for a subset of a route's fields,
// falling back to free-form strings for undeclared ones.
func fieldSchema(r *route.Route, fields []string) *schema.Schema {
	props := make(map[string]*schema.Schema, len(fields))
	for _, f := range fields {
		if r.DataSchema != nil {
			if p := r.DataSchema.Property(f); p != nil {
				props[f] = p
				continue
			}
		}
		props[f] = schema.String("")
	}
	return schema.Object(props)
}
