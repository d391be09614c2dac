package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTypeMismatch(t *testing.T) {
	s := Object(map[string]*Schema{
		"name": String(""),
		"age":  Number(""),
	})

	errs := s.Validate(map[string]any{"name": "Ada", "age": 36.0})
	assert.Empty(t, errs)

	errs = s.Validate(map[string]any{"name": 123})
	require.Len(t, errs, 1)
	assert.Equal(t, "name", errs[0].Field)
}

func TestValidateFlagsUnknownFields(t *testing.T) {
	s := Object(map[string]*Schema{"name": String("")})

	errs := s.Validate(map[string]any{"name": "Ada", "surprise": true})
	require.Len(t, errs, 1)
	assert.Equal(t, "surprise", errs[0].Field)

	// An explicit additionalProperties leaves the decision to the schema.
	open := true
	s.AdditionalProperties = &open
	assert.Empty(t, s.Validate(map[string]any{"name": "Ada", "surprise": true}))
}

func TestValidateNilSchemaAcceptsEverything(t *testing.T) {
	var s *Schema
	assert.Nil(t, s.Validate(map[string]any{"anything": 1}))
}

func TestValidateRequired(t *testing.T) {
	s := Object(map[string]*Schema{
		"name":  String(""),
		"email": String(""),
	}, "name", "email")

	errs := s.ValidateRequired(map[string]any{"name": "Ada"})
	require.Len(t, errs, 1)
	assert.Equal(t, "email", errs[0].Field)
	assert.Empty(t, s.ValidateRequired(map[string]any{"name": "Ada", "email": "a@b.c"}))
}

func TestMerge(t *testing.T) {
	left := Object(map[string]*Schema{
		"name": String("full name"),
		"city": String(""),
	}, "name")
	right := Object(map[string]*Schema{
		"name":  String("shadowed name"),
		"email": String(""),
	}, "email")

	merged := left.Merge(right)
	require.NotNil(t, merged)
	assert.Len(t, merged.Properties, 3)
	assert.Equal(t, "shadowed name", merged.Property("name").Description)
	assert.ElementsMatch(t, []string{"name", "email"}, merged.Required)

	assert.Same(t, right, (*Schema)(nil).Merge(right))
	assert.Same(t, left, left.Merge(nil))
}

func TestToMapRoundsOutFields(t *testing.T) {
	s := Object(map[string]*Schema{
		"tags": {Type: TypeArray, Items: String("")},
		"kind": {Type: TypeString, Enum: []any{"a", "b"}},
	}, "kind")

	m := s.ToMap()
	assert.Equal(t, "object", m["type"])
	assert.Equal(t, []string{"kind"}, m["required"])
	props := m["properties"].(map[string]any)
	tags := props["tags"].(map[string]any)
	assert.Equal(t, "array", tags["type"])
	assert.Equal(t, map[string]any{"type": "string"}, tags["items"])
}

func TestFromStruct(t *testing.T) {
	type args struct {
		Name     string   `json:"name" description:"customer name"`
		Age      int      `json:"age,omitempty"`
		Tags     []string `json:"tags"`
		Internal string   `json:"-"`
		Note     *string  `json:"note"`
	}

	s := FromStruct(args{})
	require.Equal(t, TypeObject, s.Type)
	assert.Equal(t, TypeString, s.Property("name").Type)
	assert.Equal(t, "customer name", s.Property("name").Description)
	assert.Equal(t, TypeInteger, s.Property("age").Type)
	assert.Equal(t, TypeArray, s.Property("tags").Type)
	assert.Equal(t, TypeString, s.Property("tags").Items.Type)
	assert.Nil(t, s.Property("Internal"))
	// omitempty and pointer fields stay optional.
	assert.ElementsMatch(t, []string{"name", "tags"}, s.Required)
}

func TestDecodeWeaklyTyped(t *testing.T) {
	type contact struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
		VIP  bool   `json:"vip"`
	}

	var out contact
	err := Decode(map[string]any{"name": "Ada", "age": 36.0, "vip": "true"}, &out)
	require.NoError(t, err)
	assert.Equal(t, contact{Name: "Ada", Age: 36, VIP: true}, out)
}
