package route

import (
	"fmt"

	"github.com/falai-dev/falai-go/core"
	"github.com/falai-dev/falai-go/schema"
	"github.com/falai-dev/falai-go/tool"
)

// Builder assembles a Route as an arena of step nodes with index-based
// edges. Construction happens through StepHandle values so chains read
// fluently without mutable captured state:
//
//	b := route.NewBuilder("book_flight", "Book a flight")
//	h := b.InitialStep(route.StepSpec{Prompt: "Ask for the destination", Collect: []string{"destination"}})
//	h = h.NextStep(route.StepSpec{Prompt: "Ask for dates", Collect: []string{"dates"}})
//	h.EndRoute()
//	r, err := b.Build()
//
// Build freezes the graph; the resulting Route is read-only.
type Builder struct {
	route *Route
	built bool
	seq   int
	err   error
}

// StepHandle points at one node in the arena and extends the chain from it.
type StepHandle struct {
	builder *Builder
	index   int
}

// NewBuilder starts a route definition.
func NewBuilder(id, title string) *Builder {
	return &Builder{route: &Route{ID: id, Title: title, initial: -1}}
}

// WithConditions sets the natural-language conditions routing scores against.
func (b *Builder) WithConditions(conditions ...string) *Builder {
	b.route.Conditions = append(b.route.Conditions, conditions...)
	return b
}

// WithRequiredFields declares fields that must be collected before the route
// can complete.
func (b *Builder) WithRequiredFields(fields ...string) *Builder {
	b.route.RequiredFields = append(b.route.RequiredFields, fields...)
	return b
}

// WithOptionalFields declares fields the route may collect.
func (b *Builder) WithOptionalFields(fields ...string) *Builder {
	b.route.OptionalFields = append(b.route.OptionalFields, fields...)
	return b
}

// WithGuidelines attaches guideline strings appended to the batch prompt.
func (b *Builder) WithGuidelines(guidelines ...string) *Builder {
	b.route.Guidelines = append(b.route.Guidelines, guidelines...)
	return b
}

// WithTools attaches route-scoped tool references.
func (b *Builder) WithTools(refs ...tool.Ref) *Builder {
	b.route.Tools = append(b.route.Tools, refs...)
	return b
}

// WithHooks sets the route-level data/context update observers.
func (b *Builder) WithHooks(hooks Hooks) *Builder {
	b.route.Hooks = hooks
	return b
}

// WithDataSchema declares the schema collected data is validated against.
func (b *Builder) WithDataSchema(s *schema.Schema) *Builder {
	b.route.DataSchema = s
	return b
}

// OnComplete records the deferred transition applied when the route
// completes.
func (b *Builder) OnComplete(targetRouteID string) *Builder {
	b.route.OnComplete = &CompletionRule{TargetRouteID: targetRouteID}
	return b
}

// InitialStep creates the route's entry step.
func (b *Builder) InitialStep(spec StepSpec) StepHandle {
	if b.route.initial >= 0 {
		b.fail(fmt.Errorf("route %s already has an initial step", b.route.ID))
		return StepHandle{builder: b, index: b.route.initial}
	}
	idx := b.addStep(spec)
	b.route.initial = idx
	return StepHandle{builder: b, index: idx}
}

// Build freezes and returns the route. Further use of the builder or its
// handles is an error.
func (b *Builder) Build() (*Route, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.built {
		return nil, fmt.Errorf("route %s already built", b.route.ID)
	}
	if b.route.initial < 0 {
		return nil, fmt.Errorf("route %s has no initial step", b.route.ID)
	}
	b.built = true
	return b.route, nil
}

// MustBuild is Build for static route definitions that cannot fail at
// runtime.
func (b *Builder) MustBuild() *Route {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

func (b *Builder) addStep(spec StepSpec) int {
	b.seq++
	step := &Step{
		ID:          core.StepID(b.route.ID, spec.Description, b.seq),
		Description: spec.Description,
		Prompt:      spec.Prompt,
		Collect:     append([]string(nil), spec.Collect...),
		Requires:    append([]string(nil), spec.Requires...),
		SkipIf:      spec.SkipIf,
		Prepare:     spec.Prepare,
		Finalize:    spec.Finalize,
		Tools:       append([]tool.Ref(nil), spec.Tools...),
		index:       len(b.route.steps),
		next:        -1,
	}
	b.route.steps = append(b.route.steps, step)
	return step.index
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// NextStep appends a step after the handle's node and returns a handle to
// the new node.
func (h StepHandle) NextStep(spec StepSpec) StepHandle {
	b := h.builder
	current := b.route.steps[h.index]
	if current.terminal {
		b.fail(fmt.Errorf("cannot extend terminal step %s", current.ID))
		return h
	}
	if current.next >= 0 || len(current.branches) > 0 {
		b.fail(fmt.Errorf("step %s already has a successor", current.ID))
		return h
	}
	idx := b.addStep(spec)
	current.next = idx
	return StepHandle{builder: b, index: idx}
}

// Branch creates named sibling chains from the handle's node. Entries are
// walked in the given order; each returned handle extends its own chain
// independently.
func (h StepHandle) Branch(entries []BranchEntry) map[string]StepHandle {
	b := h.builder
	current := b.route.steps[h.index]
	handles := map[string]StepHandle{}
	if current.next >= 0 || len(current.branches) > 0 {
		b.fail(fmt.Errorf("step %s already has a successor", current.ID))
		return handles
	}
	for _, entry := range entries {
		idx := b.addStep(entry.Spec)
		current.branches = append(current.branches, branchEdge{name: entry.Name, index: idx})
		handles[entry.Name] = StepHandle{builder: b, index: idx}
	}
	return handles
}

// EndRoute terminates the chain with the END_ROUTE sentinel. The sentinel is
// never executed; reaching it with all required fields present marks the
// route complete.
func (h StepHandle) EndRoute() {
	b := h.builder
	current := b.route.steps[h.index]
	if current.next >= 0 || len(current.branches) > 0 {
		b.fail(fmt.Errorf("step %s already has a successor", current.ID))
		return
	}
	b.seq++
	sentinel := &Step{
		ID:       core.StepID(b.route.ID, "END_ROUTE", b.seq),
		index:    len(b.route.steps),
		next:     -1,
		terminal: true,
	}
	b.route.steps = append(b.route.steps, sentinel)
	current.next = sentinel.index
}

// BranchEntry names one sibling chain created at a branch point.
type BranchEntry struct {
	Name string
	Spec StepSpec
}
