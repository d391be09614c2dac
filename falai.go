// Package falai provides a high-level façade over the conversation engine:
// declarative routes made of steps, provider-scored routing, batched step
// execution with a single model call per turn, and scoped tool invocation.
// Most applications interact with this package by:
//  1. Building routes with NewRoute() (steps, collect/requires fields, hooks)
//  2. Creating an Agent via NewAgent() with a model provider and the routes
//  3. Calling Respond() (or RespondStream()) once per user turn
//
// The façade delegates turn orchestration to the agent package while keeping
// setup ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply persistent repositories
// and a structured logger.
package falai

import (
	"github.com/falai-dev/falai-go/agent"
	"github.com/falai-dev/falai-go/core"
	"github.com/falai-dev/falai-go/model"
	"github.com/falai-dev/falai-go/route"
	"github.com/falai-dev/falai-go/tool"
)

// Re-exported core types so simple applications only import this package.
type (
	Agent        = agent.Agent
	AgentOptions = agent.Options
	Response     = agent.Response
	Session      = core.Session
	Message      = core.Message
	Event        = core.Event
	Route        = route.Route
	StepSpec     = route.StepSpec
	Tool         = tool.Definition
	ToolResult   = tool.Result
)

// NewAgent creates an Agent with optional overrides. Unset services default
// to in-process implementations and a no-op logger.
func NewAgent(provider model.Provider, optFns ...func(o *agent.Options)) (*agent.Agent, error) {
	return agent.New(provider, optFns...)
}

// NewRoute starts a route builder.
func NewRoute(id, title string) *route.Builder {
	return route.NewBuilder(id, title)
}

// NewSession creates an empty session with a generated id.
func NewSession() *core.Session {
	return core.NewSession(core.NewID())
}

// NewSessionWithID creates an empty session with the given id.
func NewSessionWithID(id string) *core.Session {
	return core.NewSession(id)
}
