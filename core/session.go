// Package core holds the value types shared by every falai component: the
// session data model, conversation messages, executor lifecycle events and
// the error taxonomy. It contains no orchestration logic.
package core

import "time"

// TransitionReason explains why a pending transition was recorded.
type TransitionReason string

const (
	// TransitionRouteComplete marks a transition created by a route's
	// completion rule.
	TransitionRouteComplete TransitionReason = "route_complete"
	// TransitionManual marks a transition requested explicitly by a step or
	// tool.
	TransitionManual TransitionReason = "manual"
)

// RouteRef records the route a session currently occupies.
type RouteRef struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	EnteredAt time.Time `json:"entered_at"`
}

// StepRef records the step a session currently occupies.
type StepRef struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	EnteredAt   time.Time `json:"entered_at"`
}

// RouteHistoryEntry is one visit to a route, closed when the session leaves it.
type RouteHistoryEntry struct {
	RouteID   string     `json:"route_id"`
	EnteredAt time.Time  `json:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
	Completed bool       `json:"completed"`
}

// PendingTransition is a deferred route switch recorded when a route
// completes (or a manual switch is requested) and consumed at the start of
// the next turn, before normal routing runs. At most one exists at a time.
type PendingTransition struct {
	TargetRouteID string           `json:"target_route_id"`
	Condition     string           `json:"condition,omitempty"`
	Reason        TransitionReason `json:"reason"`
}

// Session tracks conversation position and collected fields. Data is always
// the union view backing the active route; DataByRoute keeps a per-route
// bucket that is written on every mutation so the two stay consistent.
//
// Sessions are single-writer: callers must not run two turns concurrently on
// the same value. The engine mutates sessions only through MergeData,
// EnterRoute and EnterStep and never deletes them; persistence and lifetime
// belong to the caller.
type Session struct {
	ID                string                    `json:"id"`
	CurrentRoute      *RouteRef                 `json:"current_route,omitempty"`
	CurrentStep       *StepRef                  `json:"current_step,omitempty"`
	Data              map[string]any            `json:"data"`
	DataByRoute       map[string]map[string]any `json:"data_by_route"`
	RouteHistory      []RouteHistoryEntry       `json:"route_history,omitempty"`
	PendingTransition *PendingTransition        `json:"pending_transition,omitempty"`
	Metadata          map[string]string         `json:"metadata,omitempty"`
	Created           time.Time                 `json:"created"`
	Updated           time.Time                 `json:"updated"`
}

// NewSession creates an empty session with the given ID.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          id,
		Data:        map[string]any{},
		DataByRoute: map[string]map[string]any{},
		Metadata:    map[string]string{},
		Created:     now,
		Updated:     now,
	}
}

// Field returns the value and existence flag for a collected data field.
func (s *Session) Field(name string) (any, bool) {
	v, ok := s.Data[name]
	return v, ok
}

// MergeData shallow-merges update into Data and into the active route's
// bucket, last write wins per field.
func (s *Session) MergeData(update map[string]any) {
	if len(update) == 0 {
		return
	}
	if s.Data == nil {
		s.Data = map[string]any{}
	}
	for k, v := range update {
		s.Data[k] = v
	}
	if s.CurrentRoute != nil {
		if s.DataByRoute == nil {
			s.DataByRoute = map[string]map[string]any{}
		}
		bucket := s.DataByRoute[s.CurrentRoute.ID]
		if bucket == nil {
			bucket = map[string]any{}
			s.DataByRoute[s.CurrentRoute.ID] = bucket
		}
		for k, v := range update {
			bucket[k] = v
		}
	}
	s.Updated = time.Now().UTC()
}

// EnterRoute closes the current route-history entry (if any), appends a new
// one, rebases Data onto the target route's bucket and clears the current
// step. completed marks whether the route being left finished all of its
// required fields.
func (s *Session) EnterRoute(routeID, title string, completed bool) {
	now := time.Now().UTC()
	s.closeHistoryEntry(now, completed)
	s.CurrentRoute = &RouteRef{ID: routeID, Title: title, EnteredAt: now}
	s.CurrentStep = nil
	s.RouteHistory = append(s.RouteHistory, RouteHistoryEntry{RouteID: routeID, EnteredAt: now})
	if s.DataByRoute == nil {
		s.DataByRoute = map[string]map[string]any{}
	}
	if s.DataByRoute[routeID] == nil {
		s.DataByRoute[routeID] = map[string]any{}
	}
	if s.Data == nil {
		s.Data = map[string]any{}
	}
	// Data stays the union view: keep globally collected fields and overlay
	// anything previously collected for this route.
	for k, v := range s.DataByRoute[routeID] {
		s.Data[k] = v
	}
	s.Updated = now
}

// EnterStep records the session's new step position.
func (s *Session) EnterStep(stepID, description string) {
	s.CurrentStep = &StepRef{ID: stepID, Description: description, EnteredAt: time.Now().UTC()}
	s.Updated = s.CurrentStep.EnteredAt
}

// MarkRouteComplete flags the open history entry for the current route as
// completed without leaving the route.
func (s *Session) MarkRouteComplete() {
	for i := len(s.RouteHistory) - 1; i >= 0; i-- {
		if s.CurrentRoute != nil && s.RouteHistory[i].RouteID == s.CurrentRoute.ID && s.RouteHistory[i].ExitedAt == nil {
			s.RouteHistory[i].Completed = true
			break
		}
	}
	s.Updated = time.Now().UTC()
}

// SetPendingTransition records a deferred route switch, replacing any
// previous one.
func (s *Session) SetPendingTransition(targetRouteID, condition string, reason TransitionReason) {
	s.PendingTransition = &PendingTransition{TargetRouteID: targetRouteID, Condition: condition, Reason: reason}
	s.Updated = time.Now().UTC()
}

// ConsumePendingTransition clears and returns the pending transition, or nil.
func (s *Session) ConsumePendingTransition() *PendingTransition {
	pt := s.PendingTransition
	s.PendingTransition = nil
	return pt
}

// MergeDataForRoute writes update into a specific route's bucket. Used to
// seed initial data for a route the session has not entered yet; when the
// session later enters that route the bucket is overlaid onto Data. If the
// route is the active one this behaves like MergeData.
func (s *Session) MergeDataForRoute(routeID string, update map[string]any) {
	if len(update) == 0 {
		return
	}
	if s.CurrentRoute != nil && s.CurrentRoute.ID == routeID {
		s.MergeData(update)
		return
	}
	if s.DataByRoute == nil {
		s.DataByRoute = map[string]map[string]any{}
	}
	bucket := s.DataByRoute[routeID]
	if bucket == nil {
		bucket = map[string]any{}
		s.DataByRoute[routeID] = bucket
	}
	for k, v := range update {
		bucket[k] = v
	}
	s.Updated = time.Now().UTC()
}

// DataForRoute returns the collected-data bucket for a route id (may be nil).
func (s *Session) DataForRoute(routeID string) map[string]any {
	if s.DataByRoute == nil {
		return nil
	}
	return s.DataByRoute[routeID]
}

// ActiveRouteCompleted reports whether the open history entry for the
// current route is already marked completed.
func (s *Session) ActiveRouteCompleted() bool {
	if s.CurrentRoute == nil {
		return false
	}
	for i := len(s.RouteHistory) - 1; i >= 0; i-- {
		if s.RouteHistory[i].RouteID == s.CurrentRoute.ID && s.RouteHistory[i].ExitedAt == nil {
			return s.RouteHistory[i].Completed
		}
	}
	return false
}

// CompletedRoutes lists route ids with at least one completed history entry.
func (s *Session) CompletedRoutes() []string {
	seen := map[string]bool{}
	var ids []string
	for _, entry := range s.RouteHistory {
		if entry.Completed && !seen[entry.RouteID] {
			seen[entry.RouteID] = true
			ids = append(ids, entry.RouteID)
		}
	}
	return ids
}

// Clone returns a deep copy of the session safe for independent mutation.
// The batch executor operates on clones so that fatal errors can hand the
// caller back the untouched input session.
func (s *Session) Clone() *Session {
	clone := &Session{
		ID:          s.ID,
		Data:        make(map[string]any, len(s.Data)),
		DataByRoute: make(map[string]map[string]any, len(s.DataByRoute)),
		Metadata:    make(map[string]string, len(s.Metadata)),
		Created:     s.Created,
		Updated:     s.Updated,
	}
	if s.CurrentRoute != nil {
		ref := *s.CurrentRoute
		clone.CurrentRoute = &ref
	}
	if s.CurrentStep != nil {
		ref := *s.CurrentStep
		clone.CurrentStep = &ref
	}
	if s.PendingTransition != nil {
		pt := *s.PendingTransition
		clone.PendingTransition = &pt
	}
	for k, v := range s.Data {
		clone.Data[k] = v
	}
	for routeID, bucket := range s.DataByRoute {
		cp := make(map[string]any, len(bucket))
		for k, v := range bucket {
			cp[k] = v
		}
		clone.DataByRoute[routeID] = cp
	}
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	clone.RouteHistory = make([]RouteHistoryEntry, len(s.RouteHistory))
	copy(clone.RouteHistory, s.RouteHistory)
	return clone
}

// closeHistoryEntry stamps ExitedAt on the open entry for the current route.
func (s *Session) closeHistoryEntry(now time.Time, completed bool) {
	if s.CurrentRoute == nil {
		return
	}
	for i := len(s.RouteHistory) - 1; i >= 0; i-- {
		if s.RouteHistory[i].RouteID == s.CurrentRoute.ID && s.RouteHistory[i].ExitedAt == nil {
			exited := now
			s.RouteHistory[i].ExitedAt = &exited
			if completed {
				s.RouteHistory[i].Completed = true
			}
			break
		}
	}
}
