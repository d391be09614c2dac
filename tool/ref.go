package tool

// Ref is a tagged reference to a tool: either a registered id or an inline
// definition. Both resolve to the same handler contract at one point
// (Scope.Resolve) before invocation.
type Ref struct {
	ID     string
	Inline *Definition
}

// ByID references a tool registered under id.
func ByID(id string) Ref { return Ref{ID: id} }

// InlineRef wraps an inline definition as a reference.
func InlineRef(def *Definition) Ref { return Ref{Inline: def} }

// Name returns the tool id the reference points at.
func (r Ref) Name() string {
	if r.Inline != nil {
		return r.Inline.ID
	}
	return r.ID
}

// IsInline reports whether the reference carries its own definition.
func (r Ref) IsInline() bool { return r.Inline != nil }
