package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/falai-dev/falai-go/core"
	"github.com/falai-dev/falai-go/logging"
	"github.com/falai-dev/falai-go/model"
)

// MaxToolIterations caps the follow-up loop: after executing model-requested
// tool calls the executor may ask the model for additional calls, at most
// this many times. Reaching the cap logs a warning and stops with the last
// known message and tool calls.
const MaxToolIterations = 5

// Outcome aggregates the result of executing a response's tool calls plus
// any follow-up rounds.
type Outcome struct {
	Message        string
	ToolCalls      []core.ToolCall
	Structured     map[string]any
	DataUpdates    map[string]any
	ContextUpdates map[string]any
	Transcript     []core.Message // assistant tool-call + tool-result messages, in order
}

// Executor resolves and invokes model-requested tool calls, feeding results
// back through follow-up model calls. One executor is safe for concurrent
// use across sessions.
type Executor struct {
	provider model.Provider
	logger   logging.Logger
}

// NewExecutor constructs an Executor. A nil logger disables logging.
func NewExecutor(provider model.Provider, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Executor{provider: provider, logger: logger}
}

// Run executes resp's tool calls within scope, merging data/context updates,
// then loops on follow-up model calls until the model stops requesting tools
// or MaxToolIterations is reached. A failed follow-up call returns the
// outcome so far along with the error; tool failures themselves are caught
// and logged per call, never propagated.
func (e *Executor) Run(
	ctx context.Context,
	scope *Scope,
	session *core.Session,
	agentContext map[string]any,
	req model.Request,
	resp *model.Response,
) (*Outcome, error) {
	out := &Outcome{
		Message:        resp.Message,
		ToolCalls:      resp.ToolCalls,
		Structured:     resp.Structured,
		DataUpdates:    map[string]any{},
		ContextUpdates: map[string]any{},
	}

	history := append([]core.Message(nil), req.History...)

	for iteration := 0; len(out.ToolCalls) > 0; iteration++ {
		if iteration >= MaxToolIterations {
			e.logger.Warn("tool.loop.cap_reached", "iterations", iteration, "pending_calls", len(out.ToolCalls))
			break
		}

		assistantMsg := core.NewAssistantMessage(out.Message)
		assistantMsg.ToolCalls = out.ToolCalls
		history = append(history, assistantMsg)
		out.Transcript = append(out.Transcript, assistantMsg)

		for _, call := range out.ToolCalls {
			resultMsg := e.executeCall(ctx, scope, session, agentContext, history, call, out)
			history = append(history, resultMsg)
			out.Transcript = append(out.Transcript, resultMsg)
		}

		followUp := req
		followUp.History = history
		next, err := e.provider.GenerateMessage(ctx, followUp)
		if err != nil {
			e.logger.Error("tool.loop.followup_failed", "iteration", iteration, "error", err.Error())
			return out, err
		}

		out.Message = next.Message
		out.ToolCalls = next.ToolCalls
		if next.Structured != nil {
			out.Structured = next.Structured
		}
	}

	return out, nil
}

// executeCall runs one tool call and returns the tool-role message recording
// its result. Unknown ids and handler failures produce error-text results.
func (e *Executor) executeCall(
	ctx context.Context,
	scope *Scope,
	session *core.Session,
	agentContext map[string]any,
	history []core.Message,
	call core.ToolCall,
	out *Outcome,
) core.Message {
	def, ok := scope.Resolve(call.Name)
	if !ok {
		e.logger.Warn("tool.call.unknown", "tool", call.Name, "tool_call_id", call.ID)
		return core.NewToolMessage(call.ID, fmt.Sprintf("tool %q is not available", call.Name))
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			e.logger.Warn("tool.call.bad_arguments", "tool", call.Name, "error", err.Error())
			return core.NewToolMessage(call.ID, fmt.Sprintf("invalid arguments for %q: %v", call.Name, err))
		}
	}

	toolCtx := core.NewToolContext(ctx, session, history, agentContext, call.ID, e.logger)

	start := time.Now()
	var (
		raw any
		err error
	)
	func() { // panic safety: a crashing handler must not abort the turn
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
			}
		}()
		raw, err = def.Call(toolCtx, args)
	}()
	e.logger.Info("tool.call.executed", "tool", call.Name, "duration_ms", time.Since(start).Milliseconds(), "error", err != nil)

	if err != nil {
		return core.NewToolMessage(call.ID, fmt.Sprintf("tool %q failed: %v", call.Name, err))
	}

	result := NormalizeResult(raw)
	for k, v := range result.DataUpdate {
		out.DataUpdates[k] = v
	}
	for k, v := range toolCtx.DataUpdates() {
		out.DataUpdates[k] = v
	}
	for k, v := range result.ContextUpdate {
		out.ContextUpdates[k] = v
	}
	for k, v := range toolCtx.ContextUpdates() {
		out.ContextUpdates[k] = v
	}

	return core.NewToolMessage(call.ID, stringifyResult(result.Data))
}

func stringifyResult(data any) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
