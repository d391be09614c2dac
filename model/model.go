// Package model defines the provider contract the engine drives generation
// through. Providers adapt vendor APIs (chat transport, streaming, schema
// encoding) behind Provider; the core never owns a wire format.
package model

import (
	"context"

	"github.com/falai-dev/falai-go/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Parameters carries structured-output instructions for a request. When
// JSONSchema is set the provider must return a Structured payload matching
// it (best effort; the engine re-validates).
type Parameters struct {
	JSONSchema map[string]any `json:"json_schema,omitempty"`
	SchemaName string         `json:"schema_name,omitempty"`
}

// Request captures the normalized model input produced by the engine: the
// combined batch prompt, conversation history, agent context and tool
// declarations.
type Request struct {
	Prompt     string           `json:"prompt"`
	History    []core.Message   `json:"history,omitempty"`
	Context    map[string]any   `json:"context,omitempty"`
	Tools      []ToolDefinition `json:"tools,omitempty"`
	Parameters Parameters       `json:"parameters"`
}

// Response is the provider's answer to a single GenerateMessage call.
// Structured holds the schema-shaped payload when one was requested;
// ToolCalls holds any model-requested tool invocations.
type Response struct {
	Message    string          `json:"message"`
	Structured map[string]any  `json:"structured,omitempty"`
	ToolCalls  []core.ToolCall `json:"tool_calls,omitempty"`
}

// Chunk is one streaming fragment. Structured is populated only on the final
// chunk (Done true).
type Chunk struct {
	Delta       string         `json:"delta"`
	Accumulated string         `json:"accumulated"`
	Done        bool           `json:"done"`
	Structured  map[string]any `json:"structured,omitempty"`
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Provider is the minimal interface required to drive generation. Both
// methods honor ctx cancellation; an aborted call surfaces as an error with
// the abort reason. No timeouts are imposed here.
type Provider interface {
	// GenerateMessage issues exactly one model call and returns the final
	// response.
	GenerateMessage(ctx context.Context, req Request) (*Response, error)

	// GenerateStream yields incremental chunks; the error channel delivers
	// at most one terminal error. Both channels close when generation ends.
	GenerateStream(ctx context.Context, req Request) (<-chan Chunk, <-chan error)

	// Info returns information about the provider implementation.
	Info() Info
}
