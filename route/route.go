package route

import (
	"github.com/falai-dev/falai-go/schema"
	"github.com/falai-dev/falai-go/tool"
)

// CompletionRule is a deferred transition applied when the route completes:
// the session records a pending transition to TargetRouteID, consumed at the
// start of the next turn.
type CompletionRule struct {
	TargetRouteID string
	Condition     string
	InitialData   map[string]any
}

// Route is an immutable-after-construction conversational flow: an ordered
// step chain with branch points, field declarations used for routing and
// completion detection, and route-scoped hooks, tools and guidelines.
type Route struct {
	ID             string
	Title          string
	Conditions     []string
	RequiredFields []string
	OptionalFields []string
	Guidelines     []string
	Tools          []tool.Ref
	Hooks          Hooks
	OnComplete     *CompletionRule
	DataSchema     *schema.Schema

	steps   []*Step
	initial int
}

// InitialStep returns the route's entry step, or nil for an empty route.
func (r *Route) InitialStep() *Step {
	if r.initial < 0 || r.initial >= len(r.steps) {
		return nil
	}
	return r.steps[r.initial]
}

// StepByID returns the step with the given id, or nil.
func (r *Route) StepByID(id string) *Step {
	for _, s := range r.steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Steps returns the arena in construction order. Callers must not mutate the
// returned steps.
func (r *Route) Steps() []*Step {
	return append([]*Step(nil), r.steps...)
}

// Successors returns the ordered candidate continuations after s: the linear
// next step, or each branch entry in declaration order. An empty result
// means the chain is exhausted at s.
func (r *Route) Successors(s *Step) []*Step {
	if s == nil {
		return nil
	}
	if len(s.branches) > 0 {
		out := make([]*Step, 0, len(s.branches))
		for _, edge := range s.branches {
			out = append(out, r.steps[edge.index])
		}
		return out
	}
	if s.next < 0 {
		return nil
	}
	return []*Step{r.steps[s.next]}
}

// Advance moves past a consumed or skipped step during a chain walk. Linear
// chains follow the single successor; branch points take the first entry
// that is terminal or not skipped. Nil means the chain is exhausted (or
// every branch entry was skipped).
func (r *Route) Advance(s *Step, sctx SkipContext) *Step {
	succ := r.Successors(s)
	switch len(succ) {
	case 0:
		return nil
	case 1:
		return succ[0]
	}
	for _, next := range succ {
		if next.IsTerminal() || !ShouldSkip(next, sctx) {
			return next
		}
	}
	return nil
}

// BranchNames returns the declared branch names at s, in order, or nil for a
// non-branching step.
func (r *Route) BranchNames(s *Step) []string {
	if s == nil || len(s.branches) == 0 {
		return nil
	}
	names := make([]string, len(s.branches))
	for i, e := range s.branches {
		names[i] = e.name
	}
	return names
}

// RequiredFieldsSatisfied reports whether every declared required field has
// a defined value in data.
func (r *Route) RequiredFieldsSatisfied(data map[string]any) bool {
	for _, field := range r.RequiredFields {
		if !defined(data, field) {
			return false
		}
	}
	return true
}

// MissingRequiredFields lists declared required fields without a defined
// value in data, preserving declaration order.
func (r *Route) MissingRequiredFields(data map[string]any) []string {
	var missing []string
	for _, field := range r.RequiredFields {
		if !defined(data, field) {
			missing = append(missing, field)
		}
	}
	return missing
}
