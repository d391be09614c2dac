package core

import "fmt"

// ErrorType categorizes engine failures for callers.
type ErrorType string

const (
	// ErrorTypePrepareHook marks a prepare-hook failure; fatal to the batch.
	ErrorTypePrepareHook ErrorType = "prepare_hook"
	// ErrorTypeLLMCall marks a model-call failure; fatal to the batch.
	ErrorTypeLLMCall ErrorType = "llm_call"
	// ErrorTypeDataValidation marks collected-data validation mismatches;
	// reported but never fatal to the merge.
	ErrorTypeDataValidation ErrorType = "data_validation"
	// ErrorTypeFinalizeHook marks a finalize-hook failure; fully non-fatal.
	ErrorTypeFinalizeHook ErrorType = "finalize_hook"
	// ErrorTypeToolCall marks a tool-execution failure; caught and logged
	// per call, never propagated.
	ErrorTypeToolCall ErrorType = "tool_call"
)

// ExecutionError is the structured error returned alongside a failed or
// partially failed turn. Fatal errors (prepare/llm) roll the session back to
// its last good state so the caller can retry the same turn.
type ExecutionError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	StepID  string    `json:"step_id,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s error at step %s: %s", e.Type, e.StepID, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ExecutionError) Unwrap() error { return e.Cause }

// NewExecutionError builds an ExecutionError wrapping cause.
func NewExecutionError(t ErrorType, stepID string, cause error) *ExecutionError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ExecutionError{Type: t, Message: msg, StepID: stepID, Cause: cause}
}
