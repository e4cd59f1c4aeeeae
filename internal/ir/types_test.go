package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryAwaits(t *testing.T) {
	assert.False(t, FireAndForget.Awaits())
	assert.True(t, AwaitEmpty.Awaits())
	assert.True(t, AwaitValue.Awaits())
	assert.True(t, AwaitFallible.Awaits())
	assert.False(t, Category("sometimes").Valid())
}

func TestValueType(t *testing.T) {
	assert.Equal(t, "", CommandDescriptor{Category: AwaitEmpty}.ValueType())
	assert.Equal(t, "string", CommandDescriptor{Category: AwaitValue, Returns: "string"}.ValueType())
	assert.Equal(t, "int32", CommandDescriptor{Category: AwaitFallible, Ok: "int32", Err: "string"}.ValueType())
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "greet", Qualify("", "greet"))
	assert.Equal(t, "cmd::greet", Qualify("cmd", "greet"))
	assert.Equal(t, "cmd::greet", CommandDescriptor{Namespace: "cmd", Name: "greet"}.QualifiedName())
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "TestState::Bar", EventName("TestState", "Bar"))
}

func TestNamespaceAggregateLookup(t *testing.T) {
	ns := NamespaceDescriptor{Aggregates: []AggregateDescriptor{{Name: "TestState"}}}
	assert.NotNil(t, ns.Aggregate("TestState"))
	assert.Nil(t, ns.Aggregate("Other"))
}
