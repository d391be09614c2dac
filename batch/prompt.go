package batch

import (
	"fmt"
	"strings"

	"github.com/falai-dev/falai-go/schema"
)

// BuildPrompt composes the single combined prompt for a batch: route
// guidelines, every included step's prompt text in order, the halting step's
// prompt on a needs-input stop, and an extraction instruction naming every
// collect field.
func BuildPrompt(b *Batch) string {
	var sb strings.Builder
	r := b.Route

	if r.Title != "" {
		fmt.Fprintf(&sb, "You are handling the %q flow.\n", r.Title)
	}
	for _, g := range r.Guidelines {
		fmt.Fprintf(&sb, "Guideline: %s\n", g)
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}

	for _, s := range b.Steps {
		if s.Prompt != "" {
			sb.WriteString(s.Prompt)
			sb.WriteString("\n")
		}
	}
	if b.StopReason == StopNeedsInput && b.StoppedAt != nil && b.StoppedAt.Prompt != "" {
		sb.WriteString(b.StoppedAt.Prompt)
		sb.WriteString("\n")
	}

	if fields := b.CollectFields(); len(fields) > 0 {
		fmt.Fprintf(&sb, "\nExtract the following fields from the conversation when the user has provided them: %s.\n", strings.Join(fields, ", "))
		sb.WriteString("Leave out any field the user has not provided yet.\n")
	}
	return sb.String()
}

// CollectSchema builds the structured-output schema for the batch's collect
// fields. Field definitions come from the route's data schema when declared;
// undeclared fields default to free-form strings. Nil when the batch
// collects nothing.
func CollectSchema(b *Batch) *schema.Schema {
	fields := b.CollectFields()
	if len(fields) == 0 {
		return nil
	}
	props := make(map[string]*schema.Schema, len(fields))
	for _, f := range fields {
		if b.Route.DataSchema != nil {
			if p := b.Route.DataSchema.Property(f); p != nil {
				props[f] = p
				continue
			}
		}
		props[f] = schema.String("")
	}
	// No required list: absent fields are reported, never demanded.
	return schema.Object(props)
}

// validationSchema strips the required list from the route's data schema so
// collected values are checked for type and known-field membership only.
func validationSchema(b *Batch) *schema.Schema {
	ds := b.Route.DataSchema
	if ds == nil {
		return nil
	}
	return &schema.Schema{
		Type:                 ds.Type,
		Properties:           ds.Properties,
		AdditionalProperties: ds.AdditionalProperties,
	}
}
