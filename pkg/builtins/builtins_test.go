package builtins_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/brane/pkg/builtins"
	"github.com/kristofer/brane/pkg/value"
)

func TestGlobalsRegistersPrint(t *testing.T) {
	globals := builtins.Globals()
	printSlot, ok := globals["print"]
	require.True(t, ok)
	assert.Equal(t, value.KindBuiltIn, printSlot.Kind)
	assert.Equal(t, value.BuiltInPrint, printSlot.BuiltIn)
}

func TestNewServiceInstanceHasIdentifierAndAddress(t *testing.T) {
	heap := value.NewHeap()
	class := builtins.NewServiceClass(heap)
	instSlot := builtins.NewServiceInstance(heap, class, "svc-1", "10.0.0.1:8080")

	handle, ok := instSlot.AsHandle()
	require.True(t, ok)
	inst, ok := heap.Get(handle).(*value.InstanceObject)
	require.True(t, ok)

	idText, _ := heap.GetString(mustHandle(t, inst.Properties["identifier"]))
	assert.Equal(t, "svc-1", idText)

	addrText, _ := heap.GetString(mustHandle(t, inst.Properties["address"]))
	assert.Equal(t, "10.0.0.1:8080", addrText)

	class, ok = inst.Class, true
	cls, ok := heap.Get(class).(*value.ClassObject)
	require.True(t, ok)
	assert.Equal(t, builtins.ServiceClassName, cls.Name)
	assert.Contains(t, cls.Methods, "waitUntilStarted")
	assert.Contains(t, cls.Methods, "waitUntilDone")
}

func mustHandle(t *testing.T, s value.Slot) value.Handle {
	t.Helper()
	h, ok := s.AsHandle()
	require.True(t, ok)
	return h
}
