package schema

import (
	"reflect"
	"strings"
)

// FromStruct derives an object schema from a Go struct using reflection.
// Field names come from json tags when present; fields tagged omitempty or
// declared as pointers are optional, everything else is required. This is a
// convenience for declaring tool parameter contracts from argument structs.
func FromStruct(structType any) *Schema {
	t := reflect.TypeOf(structType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return &Schema{Type: TypeObject, Properties: map[string]*Schema{}}
	}

	properties := map[string]*Schema{}
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			if name := strings.Split(jsonTag, ",")[0]; name != "" {
				fieldName = name
			}
		}

		fieldSchema := typeSchema(field.Type)
		if description := field.Tag.Get("description"); description != "" {
			fieldSchema.Description = description
		}
		properties[fieldName] = fieldSchema

		if !hasOmitEmpty(jsonTag) && field.Type.Kind() != reflect.Ptr {
			required = append(required, fieldName)
		}
	}

	return &Schema{Type: TypeObject, Properties: properties, Required: required}
}

// typeSchema maps a Go type to its subset schema equivalent.
func typeSchema(t reflect.Type) *Schema {
	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: TypeString}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: TypeInteger}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: TypeNumber}
	case reflect.Bool:
		return &Schema{Type: TypeBoolean}
	case reflect.Slice, reflect.Array:
		return &Schema{Type: TypeArray, Items: typeSchema(t.Elem())}
	case reflect.Map, reflect.Struct:
		return &Schema{Type: TypeObject}
	case reflect.Ptr:
		return typeSchema(t.Elem())
	default:
		return &Schema{Type: TypeString}
	}
}

// hasOmitEmpty checks if a JSON tag has the "omitempty" option.
func hasOmitEmpty(tag string) bool {
	for _, part := range strings.Split(tag, ",")[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}
