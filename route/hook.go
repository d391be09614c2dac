package route

import (
	"fmt"

	"github.com/falai-dev/falai-go/core"
	"github.com/falai-dev/falai-go/tool"
)

// HookFunc is a plain-function step hook. It runs against the same context
// surface tools do and may stage data/context updates through it.
type HookFunc func(toolCtx *core.ToolContext) error

// Hook is the tagged union behind a step's prepare/finalize attachment: a
// plain function, or a tool reference dispatched through the tool contract.
// Exactly one field is set.
type Hook struct {
	Func func(toolCtx *core.ToolContext) error
	Tool *tool.Ref
}

// NewFuncHook wraps a plain function as a hook.
func NewFuncHook(fn HookFunc) *Hook { return &Hook{Func: fn} }

// NewToolHook wraps a tool reference as a hook.
func NewToolHook(ref tool.Ref) *Hook { return &Hook{Tool: &ref} }

// Execute dispatches the hook: functions run directly; tool references are
// resolved in scope and invoked with empty arguments. All hook kinds flow
// through this single path.
func (h *Hook) Execute(toolCtx *core.ToolContext, scope *tool.Scope) error {
	if h == nil {
		return nil
	}
	if h.Func != nil {
		return h.Func(toolCtx)
	}
	if h.Tool != nil {
		def, ok := scope.Resolve(h.Tool.Name())
		if !ok {
			return fmt.Errorf("hook tool %q not found", h.Tool.Name())
		}
		_, err := def.Call(toolCtx, map[string]any{})
		return err
	}
	return nil
}

// UpdateHook observes (and may mutate, in place) a data or context update
// before it is committed. This is how consumers implement cross-field
// validation, enrichment and auto-triggers.
type UpdateHook func(session *core.Session, update map[string]any) error

// Hooks bundles the update observers attachable to a route or agent.
type Hooks struct {
	OnDataUpdate    UpdateHook
	OnContextUpdate UpdateHook
}
