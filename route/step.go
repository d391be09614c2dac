// Package route represents conversational flows as immutable step graphs: a
// linear chain with branch points, built once through a Builder and read-only
// thereafter. It also hosts the pure predicates the routing and batch engines
// walk the graph with.
package route

import "github.com/falai-dev/falai-go/tool"

// SkipContext is the read-only view a skip predicate evaluates against.
type SkipContext struct {
	Context map[string]any // agent-level context
	Data    map[string]any // session collected data
}

// SkipFunc decides whether to bypass a step for the current turn. An error
// (or panic) means the step must NOT be skipped: failing open never silently
// drops work.
type SkipFunc func(SkipContext) (bool, error)

// StepSpec is the construction-time description of a step.
type StepSpec struct {
	Description string
	Prompt      string
	Collect     []string
	Requires    []string
	SkipIf      SkipFunc
	Prepare     *Hook
	Finalize    *Hook
	Tools       []tool.Ref
}

// Step is a frozen node in a route's chain. Edges are arena indexes owned by
// the Route; a terminal step marks route completion (END_ROUTE).
type Step struct {
	ID          string
	Description string
	Prompt      string
	Collect     []string
	Requires    []string
	SkipIf      SkipFunc
	Prepare     *Hook
	Finalize    *Hook
	Tools       []tool.Ref

	index    int
	next     int // -1 when no linear successor
	branches []branchEdge
	terminal bool
}

type branchEdge struct {
	name  string
	index int
}

// IsTerminal reports whether the step is the END_ROUTE sentinel.
func (s *Step) IsTerminal() bool { return s.terminal }

// NeedsInput reports whether the step cannot execute without fresh model
// input given the current collected data: true iff any required field is
// undefined, or the step collects fields and none of them has a defined
// value yet. Requires dominates collect. A step with neither requires nor
// collect never needs input. Nil values count as undefined.
func NeedsInput(s *Step, data map[string]any) bool {
	for _, field := range s.Requires {
		if !defined(data, field) {
			return true
		}
	}
	if len(s.Collect) == 0 {
		return false
	}
	for _, field := range s.Collect {
		if defined(data, field) {
			return false
		}
	}
	return true
}

// ShouldSkip evaluates the step's skip predicate, failing open: a missing
// predicate, an error or a panic all mean the step is not skipped.
func ShouldSkip(s *Step, sctx SkipContext) bool {
	if s.SkipIf == nil {
		return false
	}
	skip := false
	func() {
		defer func() {
			if recover() != nil {
				skip = false
			}
		}()
		result, err := s.SkipIf(sctx)
		if err != nil {
			skip = false
			return
		}
		skip = result
	}()
	return skip
}

func defined(data map[string]any, field string) bool {
	v, ok := data[field]
	return ok && v != nil
}
