// Package routing decides the active (route, step) pair for a conversation
// turn. It consumes pending transitions, asks the model provider to score
// candidate routes, applies the switch threshold and walks the chosen
// route's chain to the next executable step, detecting route completion
// along the way.
package routing

import (
	"context"
	"fmt"

	"github.com/falai-dev/falai-go/core"
	"github.com/falai-dev/falai-go/logging"
	"github.com/falai-dev/falai-go/model"
	"github.com/falai-dev/falai-go/route"
)

// DefaultSwitchThreshold gates route pre-emption: an alternate route must
// score at least this to displace the active one.
const DefaultSwitchThreshold = 70

// Options configures the routing engine.
type Options struct {
	// SwitchThreshold is the minimum score an alternate route needs to
	// pre-empt the active route. Zero selects DefaultSwitchThreshold.
	SwitchThreshold int
	// MaxCandidates bounds how many routes are sent for scoring per turn.
	// Zero means all routes.
	MaxCandidates int
}

// Decision is the outcome of routing one turn.
type Decision struct {
	// Route is the active route, nil when no route matched the conversation.
	Route *route.Route
	// Step is where batch execution should start. Nil when the route is
	// complete, when no route matched, or when the chain is exhausted with
	// required fields still missing.
	Step *route.Step
	// IsRouteComplete is set when the chain walk reached END_ROUTE with all
	// required fields present.
	IsRouteComplete bool
	// Switched is set when scoring moved the session off its previous route.
	Switched bool
	// FromTransition is set when the route was chosen by consuming a pending
	// transition instead of scoring.
	FromTransition bool
	// Scores holds the provider's per-route scores for this turn, empty when
	// scoring was skipped.
	Scores []RouteScore
	// MissingFields lists required fields still absent when the chain ran
	// out before they were collected.
	MissingFields []string
}

// Engine selects routes and steps. It calls the model only for score
// requests; response generation belongs to the caller.
type Engine struct {
	routes   []*route.Route
	provider model.Provider
	logger   logging.Logger
	opts     Options
}

// NewEngine creates a routing engine over a fixed route set.
func NewEngine(routes []*route.Route, provider model.Provider, logger logging.Logger, opts Options) *Engine {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if opts.SwitchThreshold <= 0 {
		opts.SwitchThreshold = DefaultSwitchThreshold
	}
	return &Engine{routes: routes, provider: provider, logger: logger, opts: opts}
}

// RouteByID returns the registered route with the given id, or nil.
func (e *Engine) RouteByID(id string) *route.Route {
	for _, r := range e.routes {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Decide chooses the (route, step) pair for this turn and records the
// position on the session. A pending transition, if present, is consumed
// first and bypasses scoring entirely.
func (e *Engine) Decide(ctx context.Context, session *core.Session, history []core.Message, agentContext map[string]any) (*Decision, error) {
	if pt := session.ConsumePendingTransition(); pt != nil {
		return e.applyTransition(session, agentContext, pt)
	}

	selected, scores, err := e.selectRoute(ctx, session, history)
	if err != nil {
		return nil, err
	}
	decision := &Decision{Scores: scores}
	if selected == nil {
		e.logger.Debug("routing.no_match", "session_id", session.ID)
		return decision, nil
	}
	decision.Route = selected

	if session.CurrentRoute == nil || session.CurrentRoute.ID != selected.ID {
		decision.Switched = session.CurrentRoute != nil
		session.EnterRoute(selected.ID, selected.Title, false)
		e.logger.Info("routing.route_entered",
			"session_id", session.ID,
			"route_id", selected.ID,
			"switched", decision.Switched)
	}

	e.resolveStep(session, agentContext, decision)
	return decision, nil
}

// applyTransition enters the transition's target route without scoring.
func (e *Engine) applyTransition(session *core.Session, agentContext map[string]any, pt *core.PendingTransition) (*Decision, error) {
	target := e.RouteByID(pt.TargetRouteID)
	if target == nil {
		return nil, fmt.Errorf("pending transition targets unknown route %q", pt.TargetRouteID)
	}
	session.EnterRoute(target.ID, target.Title, false)
	e.logger.Info("routing.transition_applied",
		"session_id", session.ID,
		"route_id", target.ID,
		"reason", string(pt.Reason))

	decision := &Decision{Route: target, FromTransition: true}
	e.resolveStep(session, agentContext, decision)
	return decision, nil
}

// resolveStep walks the decision's route from the session position, fills in
// the chosen step or completion state and records step entry and completion
// side effects on the session.
func (e *Engine) resolveStep(session *core.Session, agentContext map[string]any, decision *Decision) {
	r := decision.Route
	if session.ActiveRouteCompleted() {
		// Completed on a previous turn; nothing left to execute here.
		decision.IsRouteComplete = true
		return
	}
	sctx := route.SkipContext{Context: agentContext, Data: session.Data}

	start := r.InitialStep()
	if session.CurrentStep != nil {
		if s := r.StepByID(session.CurrentStep.ID); s != nil {
			start = s
		}
	}

	step, reachedEnd := e.nextCandidate(r, start, sctx)
	if reachedEnd {
		if r.RequiredFieldsSatisfied(session.Data) {
			decision.IsRouteComplete = true
			session.MarkRouteComplete()
			if r.OnComplete != nil {
				session.SetPendingTransition(r.OnComplete.TargetRouteID, r.OnComplete.Condition, core.TransitionRouteComplete)
				session.MergeDataForRoute(r.OnComplete.TargetRouteID, r.OnComplete.InitialData)
			}
			e.logger.Info("routing.route_complete", "session_id", session.ID, "route_id", r.ID)
		} else {
			decision.MissingFields = r.MissingRequiredFields(session.Data)
			e.logger.Debug("routing.chain_exhausted_missing_fields",
				"session_id", session.ID,
				"route_id", r.ID,
				"missing", decision.MissingFields)
		}
		return
	}

	decision.Step = step
	if session.CurrentStep == nil || session.CurrentStep.ID != step.ID {
		session.EnterStep(step.ID, step.Description)
	}
}

// nextCandidate walks the chain from start and returns the first non-skipped
// step, or reachedEnd=true when the walk hits END_ROUTE or exhausts the
// chain. At a branch point the entries are tried in declaration order and
// the first viable one wins; a branch whose entries are all skipped ends the
// walk.
func (e *Engine) nextCandidate(r *route.Route, start *route.Step, sctx route.SkipContext) (step *route.Step, reachedEnd bool) {
	cur := start
	for cur != nil {
		if cur.IsTerminal() {
			return nil, true
		}
		if !route.ShouldSkip(cur, sctx) {
			return cur, false
		}
		cur = r.Advance(cur, sctx)
	}
	return nil, true
}
