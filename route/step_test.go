package route

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsInput(t *testing.T) {
	tests := []struct {
		name string
		step *Step
		data map[string]any
		want bool
	}{
		{
			name: "no requires no collect never needs input",
			step: &Step{},
			data: map[string]any{},
			want: false,
		},
		{
			name: "unsatisfied requires",
			step: &Step{Requires: []string{"name"}},
			data: map[string]any{},
			want: true,
		},
		{
			name: "nil value counts as undefined",
			step: &Step{Requires: []string{"name"}},
			data: map[string]any{"name": nil},
			want: true,
		},
		{
			name: "satisfied requires",
			step: &Step{Requires: []string{"name"}},
			data: map[string]any{"name": "Ada"},
			want: false,
		},
		{
			name: "collect with no field present",
			step: &Step{Collect: []string{"email", "phone"}},
			data: map[string]any{},
			want: true,
		},
		{
			name: "collect with one field present",
			step: &Step{Collect: []string{"email", "phone"}},
			data: map[string]any{"phone": "555"},
			want: false,
		},
		{
			name: "requires dominates satisfied collect",
			step: &Step{Requires: []string{"name"}, Collect: []string{"email"}},
			data: map[string]any{"email": "a@b.c"},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsInput(tt.step, tt.data))
		})
	}
}

func TestShouldSkipFailsOpen(t *testing.T) {
	sctx := SkipContext{}

	assert.False(t, ShouldSkip(&Step{}, sctx), "missing predicate")

	erroring := &Step{SkipIf: func(SkipContext) (bool, error) {
		return true, errors.New("predicate failed")
	}}
	assert.False(t, ShouldSkip(erroring, sctx), "erroring predicate must not skip")

	panicking := &Step{SkipIf: func(SkipContext) (bool, error) {
		panic("predicate boom")
	}}
	assert.False(t, ShouldSkip(panicking, sctx), "panicking predicate must not skip")

	skipping := &Step{SkipIf: func(SkipContext) (bool, error) {
		return true, nil
	}}
	assert.True(t, ShouldSkip(skipping, sctx))
}

func TestShouldSkipSeesContextAndData(t *testing.T) {
	s := &Step{SkipIf: func(sctx SkipContext) (bool, error) {
		return sctx.Context["vip"] == true && sctx.Data["tier"] == "gold", nil
	}}
	assert.True(t, ShouldSkip(s, SkipContext{
		Context: map[string]any{"vip": true},
		Data:    map[string]any{"tier": "gold"},
	}))
	assert.False(t, ShouldSkip(s, SkipContext{Context: map[string]any{}, Data: map[string]any{}}))
}
