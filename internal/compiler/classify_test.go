package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photovoltex/interop/internal/ir"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		shape CallShape
		want  ir.Category
	}{
		{"no value", CallShape{}, ir.FireAndForget},
		{"async no value", CallShape{Async: true}, ir.AwaitEmpty},
		{"value", CallShape{Returns: "string"}, ir.AwaitValue},
		{"async value", CallShape{Returns: "string", Async: true}, ir.AwaitValue},
		{"fallible", CallShape{Fallible: true}, ir.AwaitFallible},
		{"async fallible", CallShape{Fallible: true, Async: true}, ir.AwaitFallible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.shape)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyRejectsAmbiguousShape(t *testing.T) {
	_, err := Classify(CallShape{Returns: "string", Fallible: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}
