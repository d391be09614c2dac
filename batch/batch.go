// Package batch turns a route position into the largest unit of work
// executable with a single model call. Determine walks the chain and
// classifies why the run stops; Executor runs the prepare hooks, the one
// model call, data collection and validation, and the finalize hooks.
package batch

import "github.com/falai-dev/falai-go/route"

// StopReason classifies why a batch run ended.
type StopReason string

const (
	// StopNeedsInput means the walk reached a step whose required or
	// collected fields are not yet present. The step itself is never part of
	// the batch.
	StopNeedsInput StopReason = "needs_input"
	// StopEndRoute means the walk reached the END_ROUTE sentinel.
	StopEndRoute StopReason = "end_route"
	// StopRouteComplete means the chain was exhausted with every remaining
	// step included or skipped.
	StopRouteComplete StopReason = "route_complete"
	// StopPrepareError means a prepare hook failed; the batch was aborted
	// before the model call.
	StopPrepareError StopReason = "prepare_error"
	// StopLLMError means the model call failed; the session is unchanged.
	StopLLMError StopReason = "llm_error"
	// StopValidationError means collected data failed schema validation. The
	// data is still merged; this reason only flags the mismatch.
	StopValidationError StopReason = "validation_error"
)

// Batch is the consecutive run of steps chosen for one model call. Skipped
// steps are elided without breaking the run; only a needs-input step or
// END_ROUTE ends it.
type Batch struct {
	Route      *route.Route
	Steps      []*route.Step
	Skipped    []*route.Step
	StopReason StopReason
	// StoppedAt is the step the walk halted on: the needs-input step or the
	// END_ROUTE sentinel. Nil when the chain was simply exhausted.
	StoppedAt *route.Step
}

// Determine walks r's chain from current (or the initial step) and returns
// the batch. It is deterministic and side-effect free. At each step skipIf
// is evaluated first, failing open; a non-skipped step that needs input ends
// the walk without being included.
func Determine(r *route.Route, current *route.Step, data, agentContext map[string]any) *Batch {
	b := &Batch{Route: r}
	sctx := route.SkipContext{Context: agentContext, Data: data}

	cur := current
	if cur == nil {
		cur = r.InitialStep()
	}
	for cur != nil {
		if cur.IsTerminal() {
			b.StopReason = StopEndRoute
			b.StoppedAt = cur
			return b
		}
		if route.ShouldSkip(cur, sctx) {
			b.Skipped = append(b.Skipped, cur)
			cur = r.Advance(cur, sctx)
			continue
		}
		if route.NeedsInput(cur, data) {
			b.StopReason = StopNeedsInput
			b.StoppedAt = cur
			return b
		}
		b.Steps = append(b.Steps, cur)
		cur = r.Advance(cur, sctx)
	}
	b.StopReason = StopRouteComplete
	return b
}

// CollectFields returns the deduplicated union of collect fields for the
// model call: every batched step's fields plus, on a needs-input stop, the
// halting step's own fields so the extraction can satisfy it from what the
// user already said.
func (b *Batch) CollectFields() []string {
	seen := map[string]bool{}
	var fields []string
	add := func(list []string) {
		for _, f := range list {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	for _, s := range b.Steps {
		add(s.Collect)
	}
	if b.StopReason == StopNeedsInput && b.StoppedAt != nil {
		add(b.StoppedAt.Collect)
	}
	return fields
}

// StepIDs returns the included step ids in order.
func (b *Batch) StepIDs() []string {
	ids := make([]string, len(b.Steps))
	for i, s := range b.Steps {
		ids[i] = s.ID
	}
	return ids
}
