// Package agent wires the routing engine, batch executor, tool executor and
// persistence into a single conversational façade. Most applications create
// an Agent via New() with a model provider and a set of routes, then call
// Respond once per user turn.
package agent

import (
	"fmt"
	"sync"

	"github.com/falai-dev/falai-go/batch"
	"github.com/falai-dev/falai-go/core"
	"github.com/falai-dev/falai-go/logging"
	"github.com/falai-dev/falai-go/model"
	"github.com/falai-dev/falai-go/route"
	"github.com/falai-dev/falai-go/routing"
	"github.com/falai-dev/falai-go/session"
	"github.com/falai-dev/falai-go/tool"
)

// Options configures an Agent.
type Options struct {
	// Name and Personality shape the prompts sent on turns that run outside
	// any route (no match, completed route, missing required fields).
	Name        string
	Personality string

	// Routes the agent can move the conversation through.
	Routes []*route.Route

	// Tools available on every turn regardless of route.
	Tools []*tool.Definition

	// Repositories (optional). With a MessageRepository the agent loads and
	// appends conversation history itself; with a SessionRepository and
	// AutoSave it persists the session after each successful turn.
	SessionRepository session.SessionRepository
	MessageRepository session.MessageRepository
	AutoSave          bool

	// SwitchThreshold and MaxCandidates tune route scoring; zero values
	// select the routing defaults.
	SwitchThreshold int
	MaxCandidates   int

	// OnDataUpdate and OnContextUpdate run after every data or context
	// merge, chained with the active route's hooks per HookOrder.
	OnDataUpdate    route.UpdateHook
	OnContextUpdate route.UpdateHook
	HookOrder       batch.HookOrder

	// Context seeds the agent-level context shared with skip predicates,
	// hooks and tools.
	Context map[string]any

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Agent executes conversation turns against a declarative route graph.
type Agent struct {
	opts     Options
	provider model.Provider
	registry *tool.Registry
	// agentTools are the registered tool ids exposed on every scope.
	agentTools []tool.Ref
	router     *routing.Engine
	executor   *batch.Executor
	toolExec   *tool.Executor
	events     *core.EventRegistry
	logger     logging.Logger
	// ctxMu guards context: sessions are single-writer but one agent serves
	// many sessions concurrently, and every turn may merge context updates.
	ctxMu   sync.RWMutex
	context map[string]any
}

// New creates an Agent with optional overrides. Defaults are safe for local
// development: no persistence, no-op logging, routing defaults.
func New(provider model.Provider, optFns ...func(o *Options)) (*Agent, error) {
	if provider == nil {
		return nil, fmt.Errorf("agent requires a model provider")
	}
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	registry := tool.NewRegistry()
	agentTools := make([]tool.Ref, 0, len(opts.Tools))
	for _, def := range opts.Tools {
		if err := registry.Register(def); err != nil {
			return nil, err
		}
		agentTools = append(agentTools, tool.ByID(def.ID))
	}

	agentContext := map[string]any{}
	for k, v := range opts.Context {
		agentContext[k] = v
	}

	events := core.NewEventRegistry()
	toolExec := tool.NewExecutor(provider, opts.Logger)
	executor := batch.NewExecutor(batch.Options{
		Provider:        provider,
		Registry:        registry,
		AgentTools:      agentTools,
		ToolExecutor:    toolExec,
		Events:          events,
		Logger:          opts.Logger,
		OnDataUpdate:    opts.OnDataUpdate,
		OnContextUpdate: opts.OnContextUpdate,
		HookOrder:       opts.HookOrder,
	})
	router := routing.NewEngine(opts.Routes, provider, opts.Logger, routing.Options{
		SwitchThreshold: opts.SwitchThreshold,
		MaxCandidates:   opts.MaxCandidates,
	})

	return &Agent{
		opts:       opts,
		provider:   provider,
		registry:   registry,
		agentTools: agentTools,
		router:     router,
		executor:   executor,
		toolExec:   toolExec,
		events:     events,
		logger:     opts.Logger,
		context:    agentContext,
	}, nil
}

// Subscribe registers a listener for executor lifecycle events. Cancel the
// returned subscription to stop receiving them.
func (a *Agent) Subscribe(fn core.Listener) *core.Subscription {
	return a.events.Subscribe(fn)
}

// Tools returns the agent-level tool registry for late registration.
func (a *Agent) Tools() *tool.Registry { return a.registry }

// RouteByID returns a registered route, or nil.
func (a *Agent) RouteByID(id string) *route.Route { return a.router.RouteByID(id) }

// Context returns a snapshot of the agent-level context map. Tool and hook
// context updates are merged into the live map at the end of each turn.
func (a *Agent) Context() map[string]any { return a.contextSnapshot() }

// contextSnapshot copies the shared context so a turn works on its own map.
func (a *Agent) contextSnapshot() map[string]any {
	a.ctxMu.RLock()
	defer a.ctxMu.RUnlock()
	snap := make(map[string]any, len(a.context))
	for k, v := range a.context {
		snap[k] = v
	}
	return snap
}

// mergeContext folds a turn's context back into the shared map.
func (a *Agent) mergeContext(updated map[string]any) {
	a.ctxMu.Lock()
	defer a.ctxMu.Unlock()
	for k, v := range updated {
		a.context[k] = v
	}
}
