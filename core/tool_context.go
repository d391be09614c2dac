package core

import (
	"context"

	"github.com/falai-dev/falai-go/logging"
)

// ToolContext is the constrained surface handed to tool handlers. It exposes
// the agent context, collected session data and conversation history, and
// accumulates context updates without mutating the session until the
// executor applies them.
type ToolContext struct {
	ctx            context.Context
	session        *Session
	history        []Message
	agentContext   map[string]any
	contextUpdates map[string]any
	dataUpdates    map[string]any
	toolCallID     string
	logger         logging.Logger
}

// NewToolContext binds a tool invocation to its session, history and agent
// context. A nil logger is replaced with a NoOpLogger.
func NewToolContext(ctx context.Context, session *Session, history []Message, agentContext map[string]any, toolCallID string, logger logging.Logger) *ToolContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		ctx:            ctx,
		session:        session,
		history:        history,
		agentContext:   agentContext,
		contextUpdates: map[string]any{},
		dataUpdates:    map[string]any{},
		toolCallID:     toolCallID,
		logger:         logger,
	}
}

// Context returns the cancellation context of the invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// SessionID returns the id of the session the tool runs against.
func (tc *ToolContext) SessionID() string {
	if tc.session == nil {
		return ""
	}
	return tc.session.ID
}

// Field returns a collected data field and its existence flag.
func (tc *ToolContext) Field(name string) (any, bool) {
	if tc.session == nil {
		return nil, false
	}
	return tc.session.Field(name)
}

// Data returns a snapshot copy of the session's collected data.
func (tc *ToolContext) Data() map[string]any {
	if tc.session == nil {
		return map[string]any{}
	}
	snapshot := make(map[string]any, len(tc.session.Data))
	for k, v := range tc.session.Data {
		snapshot[k] = v
	}
	return snapshot
}

// History returns the conversation history visible to the tool.
func (tc *ToolContext) History() []Message { return tc.history }

// ContextValue looks up an agent-context value, checking staged updates
// first.
func (tc *ToolContext) ContextValue(key string) (any, bool) {
	if v, ok := tc.contextUpdates[key]; ok {
		return v, true
	}
	v, ok := tc.agentContext[key]
	return v, ok
}

// UpdateContext stages an agent-context mutation; the executor merges staged
// updates after the handler returns and fires the context-update hooks.
func (tc *ToolContext) UpdateContext(key string, value any) {
	tc.contextUpdates[key] = value
}

// ContextUpdates returns the staged agent-context mutations.
func (tc *ToolContext) ContextUpdates() map[string]any { return tc.contextUpdates }

// UpdateData stages a collected-data mutation; the executor merges staged
// updates through the session's normal data-merge path.
func (tc *ToolContext) UpdateData(key string, value any) {
	tc.dataUpdates[key] = value
}

// DataUpdates returns the staged collected-data mutations.
func (tc *ToolContext) DataUpdates() map[string]any { return tc.dataUpdates }

// ToolCallID returns the model-assigned id correlating request and result.
func (tc *ToolContext) ToolCallID() string { return tc.toolCallID }

// Logger returns the invocation logger.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }
