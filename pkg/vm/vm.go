// Package vm implements the stack-based bytecode virtual machine: a
// dispatch loop over pkg/bytecode.Chunk, a heap of boxed objects reached
// through stable handles, call frames windowed onto one shared value
// stack, and a pluggable Executor the VM suspends to on every external
// call, wait_until, and log hook.
//
//	┌─────────────────────────────────────────────┐
//	│ VM                                           │
//	│  stack  []Slot          (shared across frames)│
//	│  frames []*frame        (windows into stack)  │
//	│  globals map[name]Slot                        │
//	│  heap   *value.Heap                           │
//	│  index  *packageindex.Index   (OP_IMPORT)     │
//	│  exec   executor.Executor     (external calls)│
//	└─────────────────────────────────────────────┘
//
// A call frame's base is the stack index its own callee slot occupies;
// locals are never copied out to a side array, they simply stay where
// the caller pushed them (local i lives at stack[frame.base+i]).
package vm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kristofer/brane/pkg/builtins"
	"github.com/kristofer/brane/pkg/bytecode"
	"github.com/kristofer/brane/pkg/executor"
	"github.com/kristofer/brane/pkg/packageindex"
	"github.com/kristofer/brane/pkg/value"
)

const (
	maxStackSlots = 256
	maxFrames     = 64
)

// frame is one active call: a window onto the shared value stack plus an
// instruction pointer into its own chunk.
type frame struct {
	chunk bytecode.Chunk
	ip    int
	base  int
	name  string
}

// VM is one bytecode interpreter. It is not safe for concurrent use by
// multiple goroutines against the same Run call, but an Executor it holds
// MUST be safe for concurrent use since OP_PARALLEL spawns sibling VMs
// that share it (spec.md §5).
type VM struct {
	heap    *value.Heap
	stack   []value.Slot
	frames  []*frame
	globals map[string]value.Slot

	index *packageindex.Index
	exec  executor.Executor

	serviceClass value.Handle
	locations    []string

	// lastPopped mirrors clox's REPL trick: OP_POP truncates the stack but
	// this keeps the value reachable, so Run can hand back a top-level
	// expression statement's value (spec.md §8's "program value") even
	// though the emitter always pops an expression statement's result.
	lastPopped value.Slot

	debugger *Debugger
}

// New builds a VM backed by heap, consulting index for OP_IMPORT and
// dispatching external calls through exec. heap is typically the same
// heap pkg/compiler.Compile populated, so the program's constant-pool
// handles resolve directly.
func New(heap *value.Heap, index *packageindex.Index, exec executor.Executor) *VM {
	vm := &VM{
		heap:    heap,
		globals: make(map[string]value.Slot),
		index:   index,
		exec:    exec,
	}
	for name, slot := range builtins.Globals() {
		vm.globals[name] = slot
	}
	vm.serviceClass = builtins.NewServiceClass(heap)
	vm.globals[builtins.ServiceClassName] = value.Obj(vm.serviceClass)
	return vm
}

// Heap returns the heap this VM allocates into, so a caller hosting a
// multi-chunk session (e.g. a REPL) can rehome a freshly compiled chunk's
// constants into it before running them.
func (vm *VM) Heap() *value.Heap {
	return vm.heap
}

// Run executes chunk as the program's main function and returns its final
// value (Unit if the chunk never pushes one).
func (vm *VM) Run(ctx context.Context, chunk bytecode.Chunk) (value.Slot, error) {
	vm.stack = vm.stack[:0]
	vm.lastPopped = value.Unit()
	vm.frames = []*frame{{chunk: chunk, base: 0, name: "main"}}
	return vm.loop(ctx)
}

func (vm *VM) loop(ctx context.Context) (value.Slot, error) {
	for {
		if len(vm.frames) == 0 {
			return vm.topOrUnit(), nil
		}

		cur := vm.frames[len(vm.frames)-1]
		if cur.ip >= len(cur.chunk.Code) {
			vm.frames = vm.frames[:len(vm.frames)-1]
			continue
		}

		if vm.debugger != nil && vm.debugger.ShouldPause() {
			vm.debugger.ShowCurrentInstruction()
			if !vm.debugger.InteractivePrompt() {
				return value.Slot{}, vm.runtimeErr("execution aborted from debugger")
			}
		}

		op := bytecode.Op(vm.readByte(cur))

		var err error
		switch op {
		case bytecode.OpConstant:
			err = vm.tryPush(cur.chunk.Constants[vm.readByte(cur)])

		case bytecode.OpUnit:
			err = vm.tryPush(value.Unit())
		case bytecode.OpTrue:
			err = vm.tryPush(value.Bool(true))
		case bytecode.OpFalse:
			err = vm.tryPush(value.Bool(false))

		case bytecode.OpPop:
			vm.pop()
		case bytecode.OpPopN:
			vm.popN(int(vm.readByte(cur)))

		case bytecode.OpAdd, bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
			err = vm.execArith(op)

		case bytecode.OpNegate:
			err = vm.execNegate()
		case bytecode.OpNot:
			err = vm.execNot()

		case bytecode.OpAnd, bytecode.OpOr:
			err = vm.execLogical(op)

		case bytecode.OpEqual:
			b, a := vm.pop(), vm.pop()
			err = vm.tryPush(value.Bool(a.Equal(b)))
		case bytecode.OpGreater, bytecode.OpLess:
			err = vm.execCompare(op)

		case bytecode.OpJump:
			off := vm.readShort(cur)
			cur.ip += int(off)
		case bytecode.OpJumpBack:
			off := vm.readShort(cur)
			cur.ip -= int(off)
		case bytecode.OpJumpIfFalse:
			off := vm.readShort(cur)
			top := vm.peek(0)
			b, ok := top.AsBool()
			if !ok {
				err = vm.runtimeErr("OP_JUMP_IF_FALSE condition is not boolean, got %s", top.Kind)
				break
			}
			if !b {
				cur.ip += int(off)
			}

		case bytecode.OpDefineGlobal:
			var name string
			name, err = vm.constantString(cur, vm.readByte(cur))
			if err == nil {
				vm.globals[name] = vm.pop()
			}
		case bytecode.OpGetGlobal:
			var name string
			name, err = vm.constantString(cur, vm.readByte(cur))
			if err == nil {
				v, ok := vm.globals[name]
				if !ok {
					err = vm.runtimeErr("undefined global %q", name)
				} else {
					err = vm.tryPush(v)
				}
			}
		case bytecode.OpSetGlobal:
			var name string
			name, err = vm.constantString(cur, vm.readByte(cur))
			if err == nil {
				if _, ok := vm.globals[name]; !ok {
					err = vm.runtimeErr("assignment to undefined global %q", name)
				} else {
					vm.globals[name] = vm.pop()
				}
			}

		case bytecode.OpGetLocal:
			i := int(vm.readByte(cur))
			err = vm.tryPush(vm.stack[cur.base+i])
		case bytecode.OpSetLocal:
			i := int(vm.readByte(cur))
			vm.stack[cur.base+i] = vm.pop()

		case bytecode.OpCall:
			arity := int(vm.readByte(cur))
			err = vm.call(ctx, arity)

		case bytecode.OpReturn:
			retVal := vm.pop()
			vm.stack = vm.stack[:cur.base]
			vm.push(retVal)
			vm.frames = vm.frames[:len(vm.frames)-1]

		case bytecode.OpImport:
			var name string
			name, err = vm.constantString(cur, vm.readByte(cur))
			if err == nil {
				err = vm.doImport(name)
			}

		case bytecode.OpClass:
			err = vm.tryPush(cur.chunk.Constants[vm.readByte(cur)])

		case bytecode.OpNew:
			err = vm.execNew(int(vm.readByte(cur)))

		case bytecode.OpDot:
			var name string
			name, err = vm.constantString(cur, vm.readByte(cur))
			if err == nil {
				err = vm.execGetProperty(name)
			}

		case bytecode.OpGetMethod:
			var name string
			name, err = vm.constantString(cur, vm.readByte(cur))
			if err == nil {
				err = vm.execGetMethod(name)
			}

		case bytecode.OpArray:
			err = vm.execArray(int(vm.readByte(cur)))

		case bytecode.OpIndex:
			err = vm.execIndex()

		case bytecode.OpParallel:
			err = vm.execParallel(ctx, int(vm.readByte(cur)))

		case bytecode.OpLocPush:
			err = vm.execLocPush()
		case bytecode.OpLocPop:
			if len(vm.locations) > 0 {
				vm.locations = vm.locations[:len(vm.locations)-1]
			}
		case bytecode.OpLoc:
			err = vm.tryPush(vm.heap.InternString(vm.currentLocation()))

		default:
			err = vm.runtimeErr("unknown opcode 0x%02X", byte(op))
		}

		if err != nil {
			if rerr, ok := err.(*RuntimeError); ok && len(rerr.StackTrace) > 0 {
				if innermost := &rerr.StackTrace[len(rerr.StackTrace)-1]; innermost.Op == "" {
					innermost.Op = op.String()
				}
			}
			return value.Slot{}, err
		}
	}
}

func (vm *VM) topOrUnit() value.Slot {
	if len(vm.stack) == 0 {
		return vm.lastPopped
	}
	return vm.stack[len(vm.stack)-1]
}

func (vm *VM) readByte(cur *frame) byte {
	b := cur.chunk.Code[cur.ip]
	cur.ip++
	return b
}

func (vm *VM) readShort(cur *frame) uint16 {
	hi := vm.readByte(cur)
	lo := vm.readByte(cur)
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) push(s value.Slot) {
	vm.stack = append(vm.stack, s)
}

// tryPush enforces the stack bound for opcodes that push unconditionally;
// opcodes that push derived values route through arithmetic/compare
// helpers, which call this too.
func (vm *VM) tryPush(s value.Slot) error {
	if len(vm.stack) >= maxStackSlots {
		return vm.runtimeErr("stack overflow (limit %d)", maxStackSlots)
	}
	vm.push(s)
	return nil
}

func (vm *VM) pop() value.Slot {
	s := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	vm.lastPopped = s
	return s
}

func (vm *VM) popN(n int) {
	vm.stack = vm.stack[:len(vm.stack)-n]
}

func (vm *VM) peek(distance int) value.Slot {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) currentLocation() string {
	if len(vm.locations) == 0 {
		return ""
	}
	return vm.locations[len(vm.locations)-1]
}

func (vm *VM) constantString(cur *frame, idx byte) (string, error) {
	slot := cur.chunk.Constants[idx]
	handle, ok := slot.AsHandle()
	if !ok {
		return "", vm.runtimeErr("constant %d is not a string", idx)
	}
	s, ok := vm.heap.GetString(handle)
	if !ok {
		return "", vm.runtimeErr("constant %d is not a string", idx)
	}
	return s, nil
}

func (vm *VM) stringOf(s value.Slot) (string, bool) {
	handle, ok := s.AsHandle()
	if !ok {
		return "", false
	}
	return vm.heap.GetString(handle)
}

func isNumericSlot(s value.Slot) bool {
	if _, ok := s.AsInteger(); ok {
		return true
	}
	_, ok := s.AsReal()
	return ok
}

// runtimeErr builds a RuntimeError annotated with the call stack active
// right now, outermost frame first (errors.go's Error renders it
// innermost-first by walking the slice backwards).
func (vm *VM) runtimeErr(format string, args ...interface{}) *RuntimeError {
	trace := make([]StackFrame, len(vm.frames))
	for i, f := range vm.frames {
		trace[i] = StackFrame{Name: f.name, IP: f.ip}
	}
	return newRuntimeError(fmt.Sprintf(format, args...), trace)
}

func (vm *VM) execArith(op bytecode.Op) error {
	b, a := vm.pop(), vm.pop()
	result, err := vm.binaryArith(op, a, b)
	if err != nil {
		return err
	}
	return vm.tryPush(result)
}

func (vm *VM) binaryArith(op bytecode.Op, a, b value.Slot) (value.Slot, error) {
	if op == bytecode.OpAdd {
		if aStr, ok := vm.stringOf(a); ok {
			bStr, ok := vm.stringOf(b)
			if !ok {
				return value.Slot{}, vm.runtimeErr("cannot add %s and %s", a.Kind, b.Kind)
			}
			return vm.heap.InternString(aStr + bStr), nil
		}
	}

	ai, aIsInt := a.AsInteger()
	bi, bIsInt := b.AsInteger()
	ar, aIsReal := a.AsReal()
	br, bIsReal := b.AsReal()
	if !(aIsInt || aIsReal) || !(bIsInt || bIsReal) {
		return value.Slot{}, vm.runtimeErr("operands must be numeric, got %s and %s", a.Kind, b.Kind)
	}

	if aIsInt && bIsInt {
		switch op {
		case bytecode.OpAdd:
			return value.Integer(ai + bi), nil
		case bytecode.OpSubtract:
			return value.Integer(ai - bi), nil
		case bytecode.OpMultiply:
			return value.Integer(ai * bi), nil
		case bytecode.OpDivide:
			if bi == 0 {
				return value.Slot{}, vm.runtimeErr("integer division by zero")
			}
			return value.Integer(ai / bi), nil
		}
	}

	af, bf := ar, br
	if aIsInt {
		af = float64(ai)
	}
	if bIsInt {
		bf = float64(bi)
	}
	switch op {
	case bytecode.OpAdd:
		return value.Real(af + bf), nil
	case bytecode.OpSubtract:
		return value.Real(af - bf), nil
	case bytecode.OpMultiply:
		return value.Real(af * bf), nil
	case bytecode.OpDivide:
		return value.Real(af / bf), nil
	}
	return value.Slot{}, vm.runtimeErr("unreachable arithmetic operator %s", op)
}

func (vm *VM) execNegate() error {
	top := vm.pop()
	if i, ok := top.AsInteger(); ok {
		return vm.tryPush(value.Integer(-i))
	}
	if r, ok := top.AsReal(); ok {
		return vm.tryPush(value.Real(-r))
	}
	return vm.runtimeErr("cannot negate %s", top.Kind)
}

func (vm *VM) execNot() error {
	top := vm.pop()
	b, ok := top.AsBool()
	if !ok {
		return vm.runtimeErr("cannot negate non-boolean %s", top.Kind)
	}
	return vm.tryPush(value.Bool(!b))
}

func (vm *VM) execLogical(op bytecode.Op) error {
	b, a := vm.pop(), vm.pop()
	ab, aok := a.AsBool()
	bb, bok := b.AsBool()
	if !aok || !bok {
		return vm.runtimeErr("logical operator requires booleans, got %s and %s", a.Kind, b.Kind)
	}
	var result bool
	if op == bytecode.OpAnd {
		result = ab && bb
	} else {
		result = ab || bb
	}
	return vm.tryPush(value.Bool(result))
}

func (vm *VM) execCompare(op bytecode.Op) error {
	b, a := vm.pop(), vm.pop()
	if !isNumericSlot(a) || !isNumericSlot(b) {
		return vm.runtimeErr("comparison requires numerics, got %s and %s", a.Kind, b.Kind)
	}
	var result bool
	if op == bytecode.OpGreater {
		result = a.Greater(b)
	} else {
		result = a.Less(b)
	}
	return vm.tryPush(value.Bool(result))
}

func (vm *VM) execNew(n int) error {
	classSlot := vm.pop()
	classHandle, ok := classSlot.AsHandle()
	if !ok {
		return vm.runtimeErr("cannot instantiate non-class value")
	}
	if _, ok := vm.heap.Get(classHandle).(*value.ClassObject); !ok {
		return vm.runtimeErr("cannot instantiate non-class value")
	}

	props := make(map[string]value.Slot, n)
	for i := 0; i < n; i++ {
		nameSlot := vm.pop()
		valSlot := vm.pop()
		name, ok := vm.stringOf(nameSlot)
		if !ok {
			return vm.runtimeErr("instance property name is not a string")
		}
		props[name] = valSlot
	}

	return vm.tryPush(value.Obj(vm.heap.Insert(&value.InstanceObject{Class: classHandle, Properties: props})))
}

func (vm *VM) instanceAt(s value.Slot) (*value.InstanceObject, bool) {
	handle, ok := s.AsHandle()
	if !ok {
		return nil, false
	}
	inst, ok := vm.heap.Get(handle).(*value.InstanceObject)
	return inst, ok
}

func (vm *VM) execGetProperty(name string) error {
	recv := vm.pop()
	inst, ok := vm.instanceAt(recv)
	if !ok {
		return vm.runtimeErr("property access on non-instance value")
	}
	v, ok := inst.Properties[name]
	if !ok {
		return vm.runtimeErr("instance has no property %q", name)
	}
	return vm.tryPush(v)
}

func (vm *VM) execGetMethod(name string) error {
	recv := vm.pop()
	inst, ok := vm.instanceAt(recv)
	if !ok {
		return vm.runtimeErr("method call on non-instance value")
	}
	class, ok := vm.heap.Get(inst.Class).(*value.ClassObject)
	if !ok {
		return vm.runtimeErr("instance has no class")
	}
	method, ok := class.Methods[name]
	if !ok {
		return vm.runtimeErr("%s has no method %q", class.Name, name)
	}
	if err := vm.tryPush(method); err != nil {
		return err
	}
	return vm.tryPush(recv)
}

func (vm *VM) execArray(n int) error {
	elems := make([]value.Slot, n)
	for i := 0; i < n; i++ {
		elems[i] = vm.pop()
	}
	return vm.tryPush(value.Obj(vm.heap.Insert(&value.ArrayObject{Elements: elems})))
}

func (vm *VM) execIndex() error {
	idxSlot := vm.pop()
	arrSlot := vm.pop()
	idx, ok := idxSlot.AsInteger()
	if !ok {
		return vm.runtimeErr("array index must be an integer")
	}
	handle, ok := arrSlot.AsHandle()
	if !ok {
		return vm.runtimeErr("cannot index non-array value")
	}
	arr, ok := vm.heap.Get(handle).(*value.ArrayObject)
	if !ok {
		return vm.runtimeErr("cannot index non-array value")
	}
	if idx < 0 || int(idx) >= len(arr.Elements) {
		return vm.runtimeErr("array index %d out of bounds (len %d)", idx, len(arr.Elements))
	}
	return vm.tryPush(arr.Elements[idx])
}

func (vm *VM) execLocPush() error {
	top := vm.pop()
	loc, ok := vm.stringOf(top)
	if !ok {
		return vm.runtimeErr("location expression must be a string")
	}
	vm.locations = append(vm.locations, loc)
	return nil
}

// doImport materializes every function and type the named package
// declares as a global: functions become ExternalFunctionObject slots
// dispatched through the Executor on OP_CALL, types become empty
// ClassObjects usable as `new Type { ... }` targets. Declared parameter
// and property types are not re-validated at runtime (static type
// checking beyond tag inspection is out of scope).
func (vm *VM) doImport(name string) error {
	if vm.index == nil {
		return vm.runtimeErr("no package index configured, cannot import %q", name)
	}
	pkg, ok := vm.index.Lookup(name)
	if !ok {
		return vm.runtimeErr("unknown package %q", name)
	}

	for fnName, fn := range pkg.Functions {
		params := make([]string, len(fn.Parameters))
		for i, p := range fn.Parameters {
			params[i] = p.Name
		}
		handle := vm.heap.Insert(&value.ExternalFunctionObject{
			Name:       fnName,
			Package:    name,
			Version:    pkg.Version,
			Kind:       string(pkg.Kind),
			Detached:   pkg.Detached,
			Parameters: params,
			ReturnType: fn.ReturnType,
		})
		vm.globals[fnName] = value.Obj(handle)
	}

	for typeName := range pkg.Types {
		handle := vm.heap.Insert(&value.ClassObject{Name: typeName, Methods: map[string]value.Slot{}})
		vm.globals[typeName] = value.Obj(handle)
	}

	return nil
}

// call implements OP_CALL's dispatch by the callee slot's kind (§4.6).
func (vm *VM) call(ctx context.Context, arity int) error {
	calleeIdx := len(vm.stack) - (arity + 1)
	if calleeIdx < 0 {
		return vm.runtimeErr("stack underflow: call with arity %d", arity)
	}
	callee := vm.stack[calleeIdx]

	switch callee.Kind {
	case value.KindBuiltIn:
		return vm.callBuiltIn(ctx, callee.BuiltIn, calleeIdx)

	case value.KindObject:
		switch obj := vm.heap.Get(callee.Object).(type) {
		case *value.FunctionObject:
			if len(vm.frames) >= maxFrames {
				return vm.runtimeErr("frame overflow (limit %d)", maxFrames)
			}
			chunk, ok := obj.Chunk.(bytecode.Chunk)
			if !ok {
				return vm.runtimeErr("function %q has an unrecognized chunk type", obj.Name)
			}
			vm.frames = append(vm.frames, &frame{chunk: chunk, base: calleeIdx, name: obj.Name})
			return nil

		case *value.ExternalFunctionObject:
			return vm.callExternal(ctx, obj, calleeIdx, arity)

		default:
			return vm.runtimeErr("value is not callable")
		}

	default:
		return vm.runtimeErr("value is not callable")
	}
}

func (vm *VM) callBuiltIn(ctx context.Context, code value.BuiltInCode, calleeIdx int) error {
	args := append([]value.Slot(nil), vm.stack[calleeIdx+1:]...)
	vm.stack = vm.stack[:calleeIdx]

	result, err := vm.dispatchBuiltIn(ctx, code, args)
	if err != nil {
		return err
	}
	return vm.tryPush(result)
}

func (vm *VM) dispatchBuiltIn(ctx context.Context, code value.BuiltInCode, args []value.Slot) (value.Slot, error) {
	switch code {
	case value.BuiltInPrint:
		if len(args) != 1 {
			return value.Slot{}, vm.runtimeErr("print expects 1 argument, got %d", len(args))
		}
		vm.exec.Stdout(vm.display(args[0]))
		return value.Unit(), nil

	case value.BuiltInWaitUntilStarted, value.BuiltInWaitUntilDone:
		if len(args) != 1 {
			return value.Slot{}, vm.runtimeErr("%s expects a receiver, got %d arguments", builtins.Name(code), len(args))
		}
		inst, ok := vm.instanceAt(args[0])
		if !ok {
			return value.Slot{}, vm.runtimeErr("%s called on non-instance value", builtins.Name(code))
		}
		idSlot, ok := inst.Properties["identifier"]
		if !ok {
			return value.Slot{}, vm.runtimeErr("%s receiver has no identifier property", builtins.Name(code))
		}
		identifier, ok := vm.stringOf(idSlot)
		if !ok {
			return value.Slot{}, vm.runtimeErr("%s receiver identifier is not a string", builtins.Name(code))
		}
		state := executor.StateStarted
		if code == value.BuiltInWaitUntilDone {
			state = executor.StateDone
		}
		if err := vm.exec.WaitUntil(ctx, identifier, state); err != nil {
			return value.Slot{}, vm.runtimeErr("%s: %v", builtins.Name(code), err)
		}
		return value.Unit(), nil

	default:
		return value.Slot{}, vm.runtimeErr("unknown built-in code %d", code)
	}
}

func (vm *VM) callExternal(ctx context.Context, fn *value.ExternalFunctionObject, calleeIdx, arity int) error {
	if len(fn.Parameters) != arity {
		return vm.runtimeErr("external function %s.%s expects %d arguments, got %d",
			fn.Package, fn.Name, len(fn.Parameters), arity)
	}

	argSlots := vm.stack[calleeIdx+1 : calleeIdx+1+arity]
	args := make(map[string]value.Value, arity)
	for i, p := range fn.Parameters {
		args[p] = value.ToValue(vm.heap, argSlots[i])
	}

	meta := executor.FunctionMeta{
		Name:       fn.Name,
		Package:    fn.Package,
		Version:    fn.Version,
		Kind:       fn.Kind,
		Detached:   fn.Detached,
		Parameters: fn.Parameters,
	}

	result, err := vm.exec.Call(ctx, meta, args, vm.currentLocation())
	if err != nil {
		return vm.runtimeErr("external call %s.%s failed: %v", fn.Package, fn.Name, err)
	}

	if !fn.Detached && fn.ReturnType != "" && !returnTypeMatches(fn.ReturnType, result) {
		return vm.runtimeErr("external call %s.%s: type assertion failed, expected %s, got %s",
			fn.Package, fn.Name, fn.ReturnType, result.Kind)
	}

	vm.stack = vm.stack[:calleeIdx]
	return vm.tryPush(vm.valueToSlot(result))
}

// returnTypeMatches checks an Executor result's abstract kind against a
// package function's declared return_type tag. This is the only runtime
// type check the VM performs (static type checking beyond tag inspection
// is out of scope): primitive tags map onto ValueKind directly, any other
// declared name is treated as a struct/class type and must come back as an
// Instance of that same name.
func returnTypeMatches(declared string, v value.Value) bool {
	switch declared {
	case "int", "integer":
		return v.Kind == value.ValueInteger
	case "real", "float":
		return v.Kind == value.ValueReal
	case "bool", "boolean":
		return v.Kind == value.ValueBool
	case "string":
		return v.Kind == value.ValueString
	case "unit":
		return v.Kind == value.ValueUnit
	case "array":
		return v.Kind == value.ValueArray
	default:
		return v.Kind == value.ValueInstance && v.ClassName == declared
	}
}

// valueToSlot re-materializes an abstract Value into this VM's heap.
// Service instances are special-cased onto the singleton serviceClass
// handle: the generic value.FromValue path re-inserts a fresh ClassObject
// with an empty Methods map on every Instance round-trip (an abstract
// Value carries only the class name, not the class's methods), which would
// silently strip waitUntilStarted/waitUntilDone from every detached call's
// result.
func (vm *VM) valueToSlot(v value.Value) value.Slot {
	if v.Kind == value.ValueInstance && v.ClassName == builtins.ServiceClassName {
		identifier := v.Props["identifier"].Str
		address := v.Props["address"].Str
		return builtins.NewServiceInstance(vm.heap, vm.serviceClass, identifier, address)
	}
	return value.FromValue(vm.heap, v)
}

// execParallel implements OP_PARALLEL: fork n nullary functions into
// independent child VMs (own heap, snapshot globals), join them, and push
// their results as an array in submission order (§4.7).
func (vm *VM) execParallel(ctx context.Context, n int) error {
	fnSlots := make([]value.Slot, n)
	for i := 0; i < n; i++ {
		fnSlots[i] = vm.pop()
	}

	results := make([]value.Value, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, slot := range fnSlots {
		i, slot := i, slot
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = vm.runChild(ctx, slot)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return vm.runtimeErr("parallel branch failed: %v", err)
		}
	}

	elems := make([]value.Slot, n)
	for i, v := range results {
		elems[i] = vm.valueToSlot(v)
	}
	return vm.tryPush(value.Obj(vm.heap.Insert(&value.ArrayObject{Elements: elems})))
}

// runChild executes one parallel branch on its own heap, sharing only the
// immutable package index and the (thread-safe) Executor with its parent,
// per spec.md §5/§9.
func (vm *VM) runChild(ctx context.Context, fnSlot value.Slot) (value.Value, error) {
	childHeap := value.NewHeap()

	childGlobals := make(map[string]value.Slot, len(vm.globals))
	for name, slot := range vm.globals {
		childGlobals[name] = value.FromValue(childHeap, value.ToValue(vm.heap, slot))
	}

	childServiceClass := vm.serviceClass
	if slot, ok := childGlobals[builtins.ServiceClassName]; ok {
		if h, ok := slot.AsHandle(); ok {
			childServiceClass = h
		}
	}

	childFn := value.FromValue(childHeap, value.ToValue(vm.heap, fnSlot))
	handle, ok := childFn.AsHandle()
	if !ok {
		return value.Value{}, fmt.Errorf("parallel branch is not a function")
	}
	fnObj, ok := childHeap.Get(handle).(*value.FunctionObject)
	if !ok {
		return value.Value{}, fmt.Errorf("parallel branch is not a function")
	}
	chunk, ok := fnObj.Chunk.(bytecode.Chunk)
	if !ok {
		return value.Value{}, fmt.Errorf("parallel branch has an unrecognized chunk type")
	}

	child := &VM{
		heap:         childHeap,
		globals:      childGlobals,
		index:        vm.index,
		exec:         vm.exec,
		serviceClass: childServiceClass,
		locations:    append([]string(nil), vm.locations...),
	}
	child.stack = append(child.stack, childFn)
	child.frames = []*frame{{chunk: chunk, base: 0, name: fnObj.Name}}

	result, err := child.loop(ctx)
	if err != nil {
		return value.Value{}, err
	}
	return value.ToValue(childHeap, result), nil
}

// display renders a Slot the way print's stdout hook does: strings print
// bare (no quotes), everything else prints its literal form.
func (vm *VM) display(s value.Slot) string {
	switch s.Kind {
	case value.KindUnit:
		return "unit"
	case value.KindBool:
		return strconv.FormatBool(s.Bool)
	case value.KindInteger:
		return strconv.FormatInt(s.Int, 10)
	case value.KindReal:
		return strconv.FormatFloat(s.Real, 'g', -1, 64)
	case value.KindBuiltIn:
		return "<builtin " + builtins.Name(s.BuiltIn) + ">"
	case value.KindObject:
		return vm.displayObject(vm.heap.Get(s.Object))
	default:
		return "?"
	}
}

func (vm *VM) displayObject(o value.Object) string {
	switch obj := o.(type) {
	case *value.StringObject:
		return obj.Text
	case *value.ArrayObject:
		parts := make([]string, len(obj.Elements))
		for i, e := range obj.Elements {
			parts[i] = vm.display(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *value.ClassObject:
		return "<class " + obj.Name + ">"
	case *value.FunctionObject:
		return "<function " + obj.Name + ">"
	case *value.ExternalFunctionObject:
		return "<external " + obj.Package + "." + obj.Name + ">"
	case *value.InstanceObject:
		name := "instance"
		if cls, ok := vm.heap.Get(obj.Class).(*value.ClassObject); ok {
			name = cls.Name
		}
		return "<" + name + " instance>"
	default:
		return "?"
	}
}
