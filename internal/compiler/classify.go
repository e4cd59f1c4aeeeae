package compiler

import (
	"fmt"

	"github.com/photovoltex/interop/internal/ir"
)

// CallShape is the declared return shape of a command.
type CallShape struct {
	Returns  string // value type, "" when none
	Fallible bool   // declares an ok/err pair
	Async    bool   // awaited even without a value
}

// Classify maps a call shape to its invocation category.
//
//	no value, not async  -> FireAndForget
//	no value, async      -> AwaitEmpty
//	value                -> AwaitValue
//	ok/err pair          -> AwaitFallible
//
// A shape declaring both a value and an ok/err pair has no category.
func Classify(s CallShape) (ir.Category, error) {
	switch {
	case s.Returns != "" && s.Fallible:
		return "", fmt.Errorf("returns and fallible are mutually exclusive")
	case s.Fallible:
		return ir.AwaitFallible, nil
	case s.Returns != "":
		return ir.AwaitValue, nil
	case s.Async:
		return ir.AwaitEmpty, nil
	default:
		return ir.FireAndForget, nil
	}
}
