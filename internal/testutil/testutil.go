// Package testutil holds route fixtures shared by the engine tests.
package testutil

import (
	"github.com/falai-dev/falai-go/route"
	"github.com/falai-dev/falai-go/schema"
)

// CollectRoute builds a linear flow that greets, collects a name and an
// email and ends. Both fields are required for completion.
func CollectRoute() *route.Route {
	b := route.NewBuilder("collect_contact", "Collect Contact").
		WithConditions("the user wants to leave their contact details").
		WithRequiredFields("name", "email").
		WithDataSchema(schema.Object(map[string]*schema.Schema{
			"name":  schema.String("the user's name"),
			"email": schema.String("the user's email address"),
		}))
	b.InitialStep(route.StepSpec{
		Description: "greet",
		Prompt:      "Greet the user and explain you need their contact details.",
	}).NextStep(route.StepSpec{
		Description: "ask name",
		Prompt:      "Ask for the user's name.",
		Collect:     []string{"name"},
	}).NextStep(route.StepSpec{
		Description: "ask email",
		Prompt:      "Ask for the user's email address.",
		Requires:    []string{"name"},
		Collect:     []string{"email"},
	}).EndRoute()
	return b.MustBuild()
}

// SupportRoute builds a second flow so routing tests have something to
// score against.
func SupportRoute() *route.Route {
	b := route.NewBuilder("support", "Technical Support").
		WithConditions("the user reports a technical problem")
	b.InitialStep(route.StepSpec{
		Description: "triage",
		Prompt:      "Ask the user to describe the problem.",
		Collect:     []string{"problem"},
	}).EndRoute()
	return b.MustBuild()
}

// ScoreResponse builds the structured payload of a route-scoring reply.
func ScoreResponse(scores map[string]int) map[string]any {
	var entries []any
	for id, s := range scores {
		entries = append(entries, map[string]any{"routeId": id, "score": s})
	}
	return map[string]any{"scores": entries}
}
