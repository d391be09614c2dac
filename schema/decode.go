package schema

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode maps loosely typed collected data (or tool arguments) onto a typed
// struct. Numeric widening and string conversion are allowed because values
// usually arrive from JSON decoding where every number is a float64.
func Decode(data map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("decode collected data: %w", err)
	}
	return nil
}
