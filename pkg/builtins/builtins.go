// Package builtins defines the handful of globals every VM starts with and
// the built-in Service class used to represent a detached external call's
// result (spec.md §6: "detached calls return a Service struct").
//
// The built-ins' actual behavior — what print or waitUntilStarted actually
// does at runtime — lives in pkg/vm's call dispatch, since invoking one
// needs the running VM's heap and Executor. This package only owns the
// identifiers and the Service class/instance shape both pkg/vm and
// pkg/executor need to agree on.
package builtins

import "github.com/kristofer/brane/pkg/value"

// ServiceClassName is the class name stamped on every detached-call result.
const ServiceClassName = "Service"

// Globals returns the built-in global bindings a fresh VM registers before
// running any program.
func Globals() map[string]value.Slot {
	return map[string]value.Slot{
		"print": value.BuiltInSlot(value.BuiltInPrint),
	}
}

// NewServiceClass inserts the built-in Service class into heap, with its
// two hard-coded methods reachable the ordinary way through OP_GET_METHOD:
// each method slot is itself a BuiltIn, not a compiled Function.
func NewServiceClass(heap *value.Heap) value.Handle {
	return heap.Insert(&value.ClassObject{
		Name: ServiceClassName,
		Methods: map[string]value.Slot{
			"waitUntilStarted": value.BuiltInSlot(value.BuiltInWaitUntilStarted),
			"waitUntilDone":    value.BuiltInSlot(value.BuiltInWaitUntilDone),
		},
	})
}

// NewServiceInstance builds an Instance of the Service class for a detached
// external call's result: a handle-and-address pair the caller later passes
// to waitUntilStarted/waitUntilDone.
func NewServiceInstance(heap *value.Heap, class value.Handle, identifier, address string) value.Slot {
	return value.Obj(heap.Insert(&value.InstanceObject{
		Class: class,
		Properties: map[string]value.Slot{
			"identifier": heap.InternString(identifier),
			"address":    heap.InternString(address),
		},
	}))
}

// Name returns the canonical identifier for a built-in code, used in error
// messages and the disassembler.
func Name(code value.BuiltInCode) string {
	switch code {
	case value.BuiltInPrint:
		return "print"
	case value.BuiltInWaitUntilStarted:
		return "waitUntilStarted"
	case value.BuiltInWaitUntilDone:
		return "waitUntilDone"
	default:
		return "unknown"
	}
}
