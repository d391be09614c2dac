package tool

import (
	"fmt"
	"sync"

	"github.com/falai-dev/falai-go/model"
)

// Registry holds tools registered by id. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Definition
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]*Definition{}}
}

// Register adds a definition; re-registering an id replaces it.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("tool definition requires an id")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s has no handler", def.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.ID] = def
	return nil
}

// Get looks up a registered tool by id.
func (r *Registry) Get(id string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[id]
	return def, ok
}

// Scope resolves tool references with shadowing precedence: step-scoped
// tools shadow route-scoped tools, which shadow agent-scoped tools. Inline
// references resolve to their own definition; id references go through the
// registry.
type Scope struct {
	registry *Registry
	// layers ordered innermost first: step, route, agent.
	layers [][]Ref
}

// NewScope builds a resolution scope. Any layer may be empty.
func NewScope(registry *Registry, stepTools, routeTools, agentTools []Ref) *Scope {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Scope{registry: registry, layers: [][]Ref{stepTools, routeTools, agentTools}}
}

// Resolve returns the definition for a tool name, honoring shadowing order.
func (s *Scope) Resolve(name string) (*Definition, bool) {
	for _, layer := range s.layers {
		for _, ref := range layer {
			if ref.Name() != name {
				continue
			}
			if ref.Inline != nil {
				return ref.Inline, true
			}
			if def, ok := s.registry.Get(ref.ID); ok {
				return def, true
			}
		}
	}
	return nil, false
}

// Definitions converts the scope's visible tools (deduplicated by name,
// innermost wins) into provider tool declarations.
func (s *Scope) Definitions() []model.ToolDefinition {
	seen := map[string]bool{}
	var defs []model.ToolDefinition
	for _, layer := range s.layers {
		for _, ref := range layer {
			name := ref.Name()
			if name == "" || seen[name] {
				continue
			}
			def, ok := s.Resolve(name)
			if !ok {
				continue
			}
			seen[name] = true
			defs = append(defs, model.ToolDefinition{
				Name:        def.ID,
				Description: def.Description,
				Parameters:  def.Parameters.ToMap(),
			})
		}
	}
	return defs
}
