// Package schema implements the reduced JSON-Schema subset used uniformly for
// route field declarations, tool parameter contracts and collected-data
// validation. Only type, properties, required, items, enum and
// additionalProperties are supported; anything richer belongs to a provider
// adapter, not the core.
package schema

// Value types supported by the subset.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Schema is a recursive description of an expected value shape.
type Schema struct {
	Type                 string             `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	Description          string             `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Properties           map[string]*Schema `json:"properties,omitempty" yaml:"properties,omitempty" mapstructure:"properties"`
	Required             []string           `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
	Items                *Schema            `json:"items,omitempty" yaml:"items,omitempty" mapstructure:"items"`
	Enum                 []any              `json:"enum,omitempty" yaml:"enum,omitempty" mapstructure:"enum"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty" yaml:"additionalProperties,omitempty" mapstructure:"additionalProperties"`
}

// Object is a convenience constructor for an object schema with the given
// named properties.
func Object(properties map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: TypeObject, Properties: properties, Required: required}
}

// String returns a string property schema with an optional description.
func String(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}

// Number returns a number property schema with an optional description.
func Number(description string) *Schema {
	return &Schema{Type: TypeNumber, Description: description}
}

// Boolean returns a boolean property schema with an optional description.
func Boolean(description string) *Schema {
	return &Schema{Type: TypeBoolean, Description: description}
}

// ToMap converts the schema into the generic map shape expected by model
// providers and by the validator.
func (s *Schema) ToMap() map[string]any {
	if s == nil {
		return nil
	}
	m := map[string]any{}
	if s.Type != "" {
		m["type"] = s.Type
	}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.ToMap()
		}
		m["properties"] = props
	}
	if len(s.Required) > 0 {
		m["required"] = append([]string(nil), s.Required...)
	}
	if s.Items != nil {
		m["items"] = s.Items.ToMap()
	}
	if len(s.Enum) > 0 {
		m["enum"] = append([]any(nil), s.Enum...)
	}
	if s.AdditionalProperties != nil {
		m["additionalProperties"] = *s.AdditionalProperties
	}
	return m
}

// Property returns the property schema for a field name, or nil if the schema
// does not declare it.
func (s *Schema) Property(name string) *Schema {
	if s == nil || s.Properties == nil {
		return nil
	}
	return s.Properties[name]
}

// Merge returns a new object schema combining the receiver's properties with
// those of other. Properties of other win on name collision; required lists
// are unioned. Used by the batch executor to assemble the collect-union
// schema for a single model call.
func (s *Schema) Merge(other *Schema) *Schema {
	if s == nil {
		return other
	}
	if other == nil {
		return s
	}
	merged := &Schema{Type: TypeObject, Properties: map[string]*Schema{}}
	for name, p := range s.Properties {
		merged.Properties[name] = p
	}
	for name, p := range other.Properties {
		merged.Properties[name] = p
	}
	seen := map[string]bool{}
	for _, r := range append(append([]string(nil), s.Required...), other.Required...) {
		if !seen[r] {
			seen[r] = true
			merged.Required = append(merged.Required, r)
		}
	}
	return merged
}
