package schema

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError describes a single mismatch between a collected value and
// the declared schema. Validation errors are informational: callers report
// them but never reject the data they describe, because model-returned data
// is presumed useful even when it fails a type check.
type ValidationError struct {
	Field      string `json:"field"`
	Value      any    `json:"value,omitempty"`
	Message    string `json:"message"`
	SchemaPath string `json:"schema_path,omitempty"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Validate checks data against the schema and returns every mismatch found.
// Unknown-to-schema fields are reported as errors as well. A nil schema
// validates everything.
func (s *Schema) Validate(data map[string]any) []ValidationError {
	if s == nil {
		return nil
	}

	var errs []ValidationError

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(s.ToMap()))
	if err != nil {
		errs = append(errs, ValidationError{Message: fmt.Sprintf("schema compile failed: %v", err)})
		return errs
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		errs = append(errs, ValidationError{Message: fmt.Sprintf("validation failed: %v", err)})
		return errs
	}

	for _, re := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:      re.Field(),
			Value:      re.Value(),
			Message:    re.Description(),
			SchemaPath: re.Context().String(),
		})
	}

	// gojsonschema only rejects extra fields when additionalProperties is
	// explicitly false; unknown fields are still worth flagging.
	if s.Type == TypeObject && s.AdditionalProperties == nil {
		for name, value := range data {
			if s.Property(name) == nil {
				errs = append(errs, ValidationError{
					Field:   name,
					Value:   value,
					Message: "field is not declared in the schema",
				})
			}
		}
	}

	return errs
}

// ValidateRequired reports only missing-required errors, used when a partial
// payload is expected and per-field type checks happen elsewhere.
func (s *Schema) ValidateRequired(data map[string]any) []ValidationError {
	if s == nil {
		return nil
	}
	var errs []ValidationError
	for _, name := range s.Required {
		if _, ok := data[name]; !ok {
			errs = append(errs, ValidationError{Field: name, Message: "required field is missing"})
		}
	}
	return errs
}
