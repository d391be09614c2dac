package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/falai-dev/falai-go/core"
	"github.com/falai-dev/falai-go/model"
	"github.com/falai-dev/falai-go/route"
	"github.com/falai-dev/falai-go/schema"
)

// Score bands. The band boundaries are part of the scoring contract sent to
// the provider and are not configurable at runtime.
const (
	BandStrong     = 90
	BandContextual = 70
	BandModerate   = 50
	BandWeak       = 30
)

// scoringRules is the fixed rubric included in every score request.
const scoringRules = `Score each route from 0 to 100 using these bands:
- 90-100: the user's message explicitly and strongly matches the route's purpose
- 70-89: contextual match with supporting keywords
- 50-69: moderate or partial match
- 30-49: weak or ambiguous match
- 0-29: no meaningful match
Score every listed route. Base the score only on the conversation and the route descriptions.`

// historyWindow bounds how much conversation is replayed in a score request.
const historyWindow = 10

// RouteScore is one provider-assigned route score.
type RouteScore struct {
	RouteID   string `json:"routeId"`
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning,omitempty"`
}

type scorePayload struct {
	Scores []RouteScore `json:"scores"`
}

// selectRoute scores candidate routes through the provider and applies the
// switch threshold against the session's active route. A nil route with a
// nil error means nothing scored above the no-match band.
func (e *Engine) selectRoute(ctx context.Context, session *core.Session, history []core.Message) (*route.Route, []RouteScore, error) {
	if len(e.routes) == 0 {
		return nil, nil, nil
	}
	if len(e.routes) == 1 {
		return e.routes[0], nil, nil
	}

	candidates := e.candidateRoutes(session)
	scores, err := e.scoreRoutes(ctx, candidates, session, history)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]int, len(scores))
	for _, s := range scores {
		byID[s.RouteID] = s.Score
	}

	var current *route.Route
	if session.CurrentRoute != nil {
		current = e.RouteByID(session.CurrentRoute.ID)
	}

	best, bestScore := e.highestScored(candidates, byID)
	if current == nil {
		if best == nil || bestScore < BandWeak {
			return nil, scores, nil
		}
		return best, scores, nil
	}

	currentScore := byID[current.ID]
	if best != nil && best.ID != current.ID && bestScore >= e.opts.SwitchThreshold && bestScore > currentScore {
		e.logger.Info("routing.switch",
			"session_id", session.ID,
			"from", current.ID,
			"to", best.ID,
			"from_score", currentScore,
			"to_score", bestScore)
		return best, scores, nil
	}
	return current, scores, nil
}

// candidateRoutes orders routes for scoring, active route first, and applies
// the MaxCandidates bound.
func (e *Engine) candidateRoutes(session *core.Session) []*route.Route {
	ordered := make([]*route.Route, 0, len(e.routes))
	if session.CurrentRoute != nil {
		if cur := e.RouteByID(session.CurrentRoute.ID); cur != nil {
			ordered = append(ordered, cur)
		}
	}
	for _, r := range e.routes {
		if session.CurrentRoute != nil && r.ID == session.CurrentRoute.ID {
			continue
		}
		ordered = append(ordered, r)
	}
	if e.opts.MaxCandidates > 0 && len(ordered) > e.opts.MaxCandidates {
		ordered = ordered[:e.opts.MaxCandidates]
	}
	return ordered
}

func (e *Engine) highestScored(candidates []*route.Route, byID map[string]int) (*route.Route, int) {
	var best *route.Route
	bestScore := -1
	for _, r := range candidates {
		if s, ok := byID[r.ID]; ok && s > bestScore {
			best, bestScore = r, s
		}
	}
	return best, bestScore
}

// scoreRoutes issues the single score request for this turn and decodes the
// structured response. Missing or malformed entries are dropped, not fatal.
func (e *Engine) scoreRoutes(ctx context.Context, candidates []*route.Route, session *core.Session, history []core.Message) ([]RouteScore, error) {
	req := model.Request{
		Prompt:  buildScorePrompt(candidates, session),
		History: tailMessages(history, historyWindow),
		Parameters: model.Parameters{
			JSONSchema: scoreSchema(),
			SchemaName: "route_scores",
		},
	}
	resp, err := e.provider.GenerateMessage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("route scoring: %w", err)
	}
	if resp.Structured == nil {
		e.logger.Warn("routing.score_unstructured", "session_id", session.ID)
		return nil, nil
	}

	var payload scorePayload
	if err := schema.Decode(resp.Structured, &payload); err != nil {
		return nil, fmt.Errorf("decode route scores: %w", err)
	}

	known := make(map[string]bool, len(candidates))
	for _, r := range candidates {
		known[r.ID] = true
	}
	scores := payload.Scores[:0]
	for _, s := range payload.Scores {
		if !known[s.RouteID] {
			e.logger.Debug("routing.score_unknown_route", "route_id", s.RouteID)
			continue
		}
		if s.Score < 0 {
			s.Score = 0
		}
		if s.Score > 100 {
			s.Score = 100
		}
		scores = append(scores, s)
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores, nil
}

// scoreSchema is the structured-output contract for a score request.
func scoreSchema() map[string]any {
	entry := schema.Object(map[string]*schema.Schema{
		"routeId":   schema.String("id of the route being scored"),
		"score":     {Type: schema.TypeInteger, Description: "match score from 0 to 100"},
		"reasoning": schema.String("one-sentence justification"),
	}, "routeId", "score")
	return schema.Object(map[string]*schema.Schema{
		"scores": {Type: schema.TypeArray, Items: entry},
	}, "scores").ToMap()
}

func buildScorePrompt(candidates []*route.Route, session *core.Session) string {
	var b strings.Builder
	b.WriteString("You are routing a conversation between predefined flows.\n\n")
	b.WriteString(scoringRules)
	b.WriteString("\n\nRoutes:\n")
	for _, r := range candidates {
		fmt.Fprintf(&b, "- id: %s\n  title: %s\n", r.ID, r.Title)
		for _, c := range r.Conditions {
			fmt.Fprintf(&b, "  condition: %s\n", c)
		}
	}
	if session.CurrentRoute != nil {
		fmt.Fprintf(&b, "\nThe conversation is currently in route %q.\n", session.CurrentRoute.ID)
	}
	if len(session.Data) > 0 {
		fmt.Fprintf(&b, "Collected fields so far: %s.\n", strings.Join(sortedKeys(session.Data), ", "))
	}
	return b.String()
}

func tailMessages(history []core.Message, n int) []core.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
