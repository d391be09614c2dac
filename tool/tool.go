// Package tool implements the function-calling subsystem: tool definitions
// with schema-described parameters, scoped resolution (step tools shadow
// route tools shadow agent tools) and the bounded follow-up loop that feeds
// tool results back to the model.
package tool

import (
	"fmt"
	"time"

	"github.com/falai-dev/falai-go/core"
	"github.com/falai-dev/falai-go/schema"
)

// Handler executes a tool with already-parsed arguments. The return value is
// polymorphic: a bare string (treated as the result data) or a *Result /
// Result carrying data plus optional session-data and agent-context updates.
type Handler func(toolCtx *core.ToolContext, args map[string]any) (any, error)

// Definition describes a callable tool.
type Definition struct {
	ID          string
	Description string
	Parameters  *schema.Schema
	Handler     Handler
}

// Result is the structured tool return shape. DataUpdate is merged into
// session data and ContextUpdate into agent context, each firing the
// corresponding lifecycle hook.
type Result struct {
	Data          any            `json:"data"`
	DataUpdate    map[string]any `json:"data_update,omitempty"`
	ContextUpdate map[string]any `json:"context_update,omitempty"`
}

// NormalizeResult folds a handler's polymorphic return value into a Result.
func NormalizeResult(v any) Result {
	switch r := v.(type) {
	case *Result:
		if r == nil {
			return Result{}
		}
		return *r
	case Result:
		return r
	case string:
		return Result{Data: r}
	default:
		return Result{Data: v}
	}
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// Call validates args against the declared parameter schema then invokes the
// handler. Validation or execution failures are wrapped (or passed through)
// as *ToolError for uniform downstream handling.
func (d *Definition) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", d.ID, "tool_call_id", toolCtx.ToolCallID())

	if errs := d.Parameters.Validate(args); len(errs) > 0 {
		logger.Warn("tool.call.validation_failed", "tool", d.ID, "error", errs[0].Error())
		return nil, &ToolError{
			Tool:    d.ID,
			Message: fmt.Sprintf("parameter validation failed: %v", errs[0].Message),
			Code:    "VALIDATION_ERROR",
			Details: errs,
		}
	}

	result, err := d.Handler(toolCtx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			logger.Error("tool.call.error", "tool", d.ID, "error", toolErr.Message)
			return nil, toolErr
		}
		logger.Error("tool.call.error", "tool", d.ID, "error", err.Error())
		return nil, &ToolError{Tool: d.ID, Message: err.Error(), Code: "EXECUTION_ERROR"}
	}

	logger.Info("tool.call.success", "tool", d.ID, "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// FromStruct is a convenience constructor deriving the parameter schema from
// an argument struct via reflection.
func FromStruct(id, description string, argsType any, handler Handler) *Definition {
	return &Definition{ID: id, Description: description, Parameters: schema.FromStruct(argsType), Handler: handler}
}
