// Package compiler walks a resolved AST (every ast.Pattern already rewritten
// to ast.Call by pkg/resolver) and emits bytecode.Chunk values, allocating
// nested function, class, and string constants into a shared heap as it
// goes.
package compiler

import (
	"fmt"

	"github.com/kristofer/brane/pkg/ast"
	"github.com/kristofer/brane/pkg/bytecode"
	"github.com/kristofer/brane/pkg/value"
)

// Program is a compiled unit ready to hand to pkg/vm: the top-level chunk
// plus the heap its constants (and any runtime-allocated objects) live in.
type Program struct {
	Chunk bytecode.Chunk
	Heap  *value.Heap
}

// local tracks one live binding introduced inside a non-global scope.
// Matching the original generator's free-function signature, depth is the
// block-nesting level the binding was introduced at; a block exit pops
// every local whose depth is >= the block's own depth.
type local struct {
	name  string
	depth int
}

// maxLocals bounds a function body's live local count: OP_GET_LOCAL/
// OP_SET_LOCAL address a slot with a single byte operand, so slots 0..255
// are representable and a 257th local has no index (spec.md §7's "local overflow (>255 locals in
// a function)").
const maxLocals = 256

// emitter holds the mutable state threaded through one function body's
// compilation. The top-level program and every nested function/method body
// each get their own emitter sharing the same heap.
type emitter struct {
	heap    *value.Heap
	builder *bytecode.Builder
	locals  []local
	scope   int
}

// Compile compiles a fully-resolved program into the main chunk executed at
// VM startup.
func Compile(program ast.Program) (*Program, error) {
	heap := value.NewHeap()
	e := &emitter{heap: heap, builder: bytecode.NewBuilder()}

	for _, stmt := range program {
		if err := e.emitStmt(stmt); err != nil {
			return nil, err
		}
	}

	return &Program{Chunk: e.builder.Freeze(), Heap: heap}, nil
}

// constantIndex appends s to the constant pool and returns its byte index,
// failing with a compile error rather than silently wrapping once the pool
// already holds as many entries as a single byte can address (spec.md §7's
// "constant-pool overflow (>255 constants addressable by one byte)").
func (e *emitter) constantIndex(s value.Slot) (byte, error) {
	idx, err := e.builder.AddConstant(s)
	if err != nil {
		return 0, fmt.Errorf("compiler: %w", err)
	}
	return idx, nil
}

func (e *emitter) stringConstant(s string) (byte, error) {
	return e.constantIndex(e.heap.InternString(s))
}

// addLocal records a new binding in the current function body, failing once
// the body already has maxLocals live locals rather than letting a 257th
// local collide with slot 0 under the byte operand's wraparound.
func (e *emitter) addLocal(name string, depth int) error {
	if len(e.locals) >= maxLocals {
		return fmt.Errorf("compiler: too many locals in function (max %d)", maxLocals)
	}
	e.locals = append(e.locals, local{name: name, depth: depth})
	return nil
}

func (e *emitter) resolveLocal(name string) (int, bool) {
	for i, l := range e.locals {
		if l.name == name {
			return i, true
		}
	}
	return -1, false
}

func (e *emitter) emitStmt(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case ast.Import:
		idx, err := e.stringConstant(string(s.Package))
		if err != nil {
			return err
		}
		e.builder.WritePair(bytecode.OpImport, idx)
		return nil

	case ast.DeclareClass:
		return e.emitDeclareClass(s)

	case ast.Assign:
		if err := e.emitExpr(s.Value); err != nil {
			return err
		}
		if idx, ok := e.resolveLocal(string(s.Ident)); ok {
			e.builder.WritePair(bytecode.OpSetLocal, byte(idx))
		} else {
			idx, err := e.stringConstant(string(s.Ident))
			if err != nil {
				return err
			}
			e.builder.WritePair(bytecode.OpSetGlobal, idx)
		}
		return nil

	case ast.LetAssign:
		if err := e.emitExpr(s.Value); err != nil {
			return err
		}
		return e.defineBinding(string(s.Ident))

	case ast.Block:
		return e.emitBlock(s)

	case ast.For:
		return e.emitFor(s)

	case ast.While:
		return e.emitWhile(s)

	case ast.If:
		return e.emitIf(s)

	case ast.ExprStmt:
		if err := e.emitExpr(s.Value); err != nil {
			return err
		}
		e.builder.Write(bytecode.OpPop)
		return nil

	case ast.Property:
		return fmt.Errorf("compiler: Property statement reached the emitter; DeclareClass should have absorbed it")

	case ast.Return:
		if s.Value != nil {
			if err := e.emitExpr(s.Value); err != nil {
				return err
			}
		} else {
			e.builder.Write(bytecode.OpUnit)
		}
		e.builder.Write(bytecode.OpReturn)
		return nil

	case ast.DeclareFunc:
		fnSlot, err := e.compileFunction(s.Body, e.scope+1, s.Params, string(s.Ident))
		if err != nil {
			return err
		}
		fnIdx, err := e.constantIndex(fnSlot)
		if err != nil {
			return err
		}
		e.builder.WritePair(bytecode.OpConstant, fnIdx)
		idx, err := e.stringConstant(string(s.Ident))
		if err != nil {
			return err
		}
		e.builder.WritePair(bytecode.OpDefineGlobal, idx)
		return nil

	case ast.On:
		return e.emitOn(s)

	case ast.Parallel:
		return e.emitParallel(s)

	default:
		return fmt.Errorf("compiler: unhandled statement type %T", stmt)
	}
}

// defineBinding implements the locals-vs-globals split: inside a nested
// scope, a let just records the stack slot the value already occupies;
// at the top level it emits OP_DEFINE_GLOBAL.
func (e *emitter) defineBinding(name string) error {
	if e.scope > 0 {
		return e.addLocal(name, e.scope)
	}
	idx, err := e.stringConstant(name)
	if err != nil {
		return err
	}
	e.builder.WritePair(bytecode.OpDefineGlobal, idx)
	return nil
}

func (e *emitter) emitBlock(block ast.Block) error {
	e.scope++
	for _, stmt := range block {
		if err := e.emitStmt(stmt); err != nil {
			return err
		}
	}
	e.popScope()
	return nil
}

// popScope discards every local introduced at the current depth or deeper,
// emitting a single OP_POP_N (or OP_POP for exactly one) rather than one
// instruction per local, then restores the enclosing scope depth.
func (e *emitter) popScope() {
	n := 0
	for len(e.locals) > 0 && e.locals[len(e.locals)-1].depth >= e.scope {
		e.locals = e.locals[:len(e.locals)-1]
		n++
	}
	switch n {
	case 0:
	case 1:
		e.builder.Write(bytecode.OpPop)
	default:
		e.builder.WritePair(bytecode.OpPopN, byte(n))
	}
	e.scope--
}

func (e *emitter) emitIf(s ast.If) error {
	if err := e.emitExpr(s.Condition); err != nil {
		return err
	}

	e.builder.Write(bytecode.OpJumpIfFalse)
	thenJump := e.builder.Len()
	e.builder.WritePair(0, 0)

	e.builder.Write(bytecode.OpPop)
	if err := e.emitBlock(s.Consequent); err != nil {
		return err
	}

	e.builder.Write(bytecode.OpJump)
	elseJump := e.builder.Len()
	e.builder.WritePair(0, 0)

	e.patchJump(thenJump)

	e.builder.Write(bytecode.OpPop)
	if s.Alternative != nil {
		if err := e.emitBlock(s.Alternative); err != nil {
			return err
		}
	}

	e.patchJump(elseJump)
	return nil
}

func (e *emitter) emitWhile(s ast.While) error {
	loopStart := e.builder.Len()

	if err := e.emitExpr(s.Condition); err != nil {
		return err
	}

	e.builder.Write(bytecode.OpJumpIfFalse)
	exitJump := e.builder.Len()
	e.builder.WritePair(0, 0)

	e.builder.Write(bytecode.OpPop)
	if err := e.emitBlock(s.Consequent); err != nil {
		return err
	}

	e.emitJumpBack(loopStart)
	e.patchJump(exitJump)
	e.builder.Write(bytecode.OpPop)
	return nil
}

func (e *emitter) emitFor(s ast.For) error {
	e.scope++

	if err := e.emitStmt(s.Initializer); err != nil {
		return err
	}

	loopStart := e.builder.Len()

	if err := e.emitExpr(s.Condition); err != nil {
		return err
	}

	e.builder.Write(bytecode.OpJumpIfFalse)
	exitJump := e.builder.Len()
	e.builder.WritePair(0, 0)

	e.builder.Write(bytecode.OpPop)
	if err := e.emitBlock(s.Consequent); err != nil {
		return err
	}

	if err := e.emitStmt(s.Increment); err != nil {
		return err
	}

	e.emitJumpBack(loopStart)
	e.patchJump(exitJump)
	e.builder.Write(bytecode.OpPop)

	e.popScope()
	return nil
}

// emitJumpBack writes OP_JUMP_BACK with the relative offset from the
// instruction immediately after its two-byte operand back to loopStart,
// matching jump_instruction's negative-sign convention in the disassembler.
func (e *emitter) emitJumpBack(loopStart int) {
	e.builder.Write(bytecode.OpJumpBack)
	offset := uint16(e.builder.Len() - loopStart + 2)
	e.builder.WriteByte(byte(offset >> 8))
	e.builder.WriteByte(byte(offset))
}

// patchJump back-patches a previously-reserved two-byte placeholder at
// offset with the distance from just past it to the current write position.
func (e *emitter) patchJump(offset int) {
	jump := uint16(e.builder.Len() - offset - 2)
	e.builder.PatchByte(offset, byte(jump>>8))
	e.builder.PatchByte(offset+1, byte(jump))
}

func (e *emitter) emitOn(s ast.On) error {
	e.scope++

	if err := e.emitExpr(s.Location); err != nil {
		return err
	}
	e.builder.Write(bytecode.OpLocPush)

	for _, stmt := range s.Block {
		if err := e.emitStmt(stmt); err != nil {
			return err
		}
	}

	e.popScope()
	e.builder.Write(bytecode.OpLocPop)
	return nil
}

func (e *emitter) emitParallel(s ast.Parallel) error {
	for i := len(s.Blocks) - 1; i >= 0; i-- {
		block, ok := s.Blocks[i].(ast.Block)
		if !ok {
			// On-wrapped branches compile as the On statement itself,
			// wrapped in a synthetic block so it becomes a nullary body.
			block = ast.Block{s.Blocks[i]}
		}
		fnSlot, err := e.compileFunction(block, e.scope, nil, "")
		if err != nil {
			return err
		}
		fnIdx, err := e.constantIndex(fnSlot)
		if err != nil {
			return err
		}
		e.builder.WritePair(bytecode.OpConstant, fnIdx)
	}

	e.builder.WritePair(bytecode.OpParallel, byte(len(s.Blocks)))

	if s.LetAssign != nil {
		return e.defineBinding(string(*s.LetAssign))
	}
	e.builder.Write(bytecode.OpPop)
	return nil
}

// compileFunction compiles body as a standalone nested chunk sharing this
// emitter's heap. Locals start with a slot-0 "func" placeholder (the
// callee's own slot at the frame's stack_offset), followed by params.
func (e *emitter) compileFunction(body ast.Block, scope int, params []ast.Ident, name string) (value.Slot, error) {
	fe := &emitter{heap: e.heap, builder: bytecode.NewBuilder(), scope: scope}
	if err := fe.addLocal("func", scope); err != nil {
		return value.Slot{}, err
	}
	for _, p := range params {
		if err := fe.addLocal(string(p), scope); err != nil {
			return value.Slot{}, err
		}
	}

	for _, stmt := range body {
		if err := fe.emitStmt(stmt); err != nil {
			return value.Slot{}, err
		}
	}
	fe.builder.Write(bytecode.OpUnit)
	fe.builder.Write(bytecode.OpReturn)

	chunk := fe.builder.Freeze()
	handle := e.heap.Insert(&value.FunctionObject{Name: name, Arity: uint8(len(params)), Chunk: chunk})
	return value.Obj(handle), nil
}

// emitDeclareClass compiles every method as a nested function — with an
// implicit leading "this" parameter occupying the first local slot after
// the reserved "func" placeholder — and attaches the resulting Class
// constant.
func (e *emitter) emitDeclareClass(s ast.DeclareClass) error {
	methods := make(map[string]value.Slot, len(s.Methods))
	for name, fn := range s.Methods {
		params := append([]ast.Ident{"this"}, fn.Params...)
		fnSlot, err := e.compileFunction(fn.Body, 1, params, string(name))
		if err != nil {
			return err
		}
		methods[string(name)] = fnSlot
	}

	handle := e.heap.Insert(&value.ClassObject{Name: string(s.Ident), Methods: methods})
	classIdx, err := e.constantIndex(value.Obj(handle))
	if err != nil {
		return err
	}
	e.builder.WritePair(bytecode.OpClass, classIdx)

	idx, err := e.stringConstant(string(s.Ident))
	if err != nil {
		return err
	}
	e.builder.WritePair(bytecode.OpDefineGlobal, idx)
	return nil
}

func (e *emitter) emitExpr(expr ast.Expr) error {
	switch x := expr.(type) {
	case ast.Literal:
		return e.emitLiteral(x)

	case ast.IdentExpr:
		if idx, ok := e.resolveLocal(string(x.Ident)); ok {
			e.builder.WritePair(bytecode.OpGetLocal, byte(idx))
		} else {
			idx, err := e.stringConstant(string(x.Ident))
			if err != nil {
				return err
			}
			e.builder.WritePair(bytecode.OpGetGlobal, idx)
		}
		return nil

	case ast.Unary:
		if err := e.emitExpr(x.Operand); err != nil {
			return err
		}
		switch x.Operator {
		case ast.UnNeg:
			e.builder.Write(bytecode.OpNegate)
		case ast.UnNot:
			e.builder.Write(bytecode.OpNot)
		default:
			return fmt.Errorf("compiler: unknown unary operator %v", x.Operator)
		}
		return nil

	case ast.Binary:
		return e.emitBinary(x)

	case ast.Call:
		return e.emitCall(x)

	case ast.Instance:
		return e.emitInstance(x)

	case ast.Array:
		for i := len(x) - 1; i >= 0; i-- {
			if err := e.emitExpr(x[i]); err != nil {
				return err
			}
		}
		e.builder.WritePair(bytecode.OpArray, byte(len(x)))
		return nil

	case ast.Index:
		if err := e.emitExpr(x.Array); err != nil {
			return err
		}
		if err := e.emitExpr(x.Index); err != nil {
			return err
		}
		e.builder.Write(bytecode.OpIndex)
		return nil

	case ast.Pattern:
		return fmt.Errorf("compiler: unresolved Pattern reached the emitter — the resolver must run first")

	default:
		return fmt.Errorf("compiler: unhandled expression type %T", expr)
	}
}

func (e *emitter) emitLiteral(lit ast.Literal) error {
	switch lit.Kind {
	case ast.LitBoolean:
		if lit.Boolean {
			e.builder.Write(bytecode.OpTrue)
		} else {
			e.builder.Write(bytecode.OpFalse)
		}
	case ast.LitInteger:
		idx, err := e.constantIndex(value.Integer(lit.Integer))
		if err != nil {
			return err
		}
		e.builder.WritePair(bytecode.OpConstant, idx)
	case ast.LitReal:
		idx, err := e.constantIndex(value.Real(lit.Real))
		if err != nil {
			return err
		}
		e.builder.WritePair(bytecode.OpConstant, idx)
	case ast.LitString:
		idx, err := e.constantIndex(e.heap.InternString(lit.String))
		if err != nil {
			return err
		}
		e.builder.WritePair(bytecode.OpConstant, idx)
	case ast.LitUnit:
		e.builder.Write(bytecode.OpUnit)
	default:
		return fmt.Errorf("compiler: unknown literal kind %v", lit.Kind)
	}
	return nil
}

// emitBinary special-cases '.': a Dot whose RHS is a bare identifier is
// property access (OP_GET_PROPERTY/OP_DOT); a Dot whose RHS is a call is
// method dispatch. Method dispatch treats the receiver as an implicit
// leading argument — obj.m(a, b) pushes the method, re-pushes the
// receiver, then every surface argument, and calls with arity
// len(arguments)+1 — so the receiver lands in the method's first
// non-reserved local slot, the same position an explicit "this" parameter
// would occupy (see emitDeclareClass).
func (e *emitter) emitBinary(x ast.Binary) error {
	if err := e.emitExpr(x.LHS); err != nil {
		return err
	}

	if x.Operator == ast.BinDot {
		switch rhs := x.RHS.(type) {
		case ast.IdentExpr:
			idx, err := e.stringConstant(string(rhs.Ident))
			if err != nil {
				return err
			}
			e.builder.WritePair(bytecode.OpDot, idx)
			return nil
		case ast.Call:
			idx, err := e.stringConstant(string(rhs.Function))
			if err != nil {
				return err
			}
			e.builder.WritePair(bytecode.OpGetMethod, idx)
			for _, arg := range rhs.Arguments {
				if err := e.emitExpr(arg); err != nil {
					return err
				}
			}
			e.builder.WritePair(bytecode.OpCall, byte(len(rhs.Arguments)+1))
			return nil
		default:
			return fmt.Errorf("compiler: right-hand side of '.' must be an identifier or call, got %T", rhs)
		}
	}

	if err := e.emitExpr(x.RHS); err != nil {
		return err
	}

	switch x.Operator {
	case ast.BinAdd:
		e.builder.Write(bytecode.OpAdd)
	case ast.BinSub:
		e.builder.Write(bytecode.OpSubtract)
	case ast.BinMul:
		e.builder.Write(bytecode.OpMultiply)
	case ast.BinDiv:
		e.builder.Write(bytecode.OpDivide)
	case ast.BinEq:
		e.builder.Write(bytecode.OpEqual)
	case ast.BinNe:
		e.builder.Write(bytecode.OpEqual)
		e.builder.Write(bytecode.OpNot)
	case ast.BinLt:
		e.builder.Write(bytecode.OpLess)
	case ast.BinLe:
		e.builder.Write(bytecode.OpGreater)
		e.builder.Write(bytecode.OpNot)
	case ast.BinGt:
		e.builder.Write(bytecode.OpGreater)
	case ast.BinGe:
		e.builder.Write(bytecode.OpLess)
		e.builder.Write(bytecode.OpNot)
	case ast.BinAnd:
		e.builder.Write(bytecode.OpAnd)
	case ast.BinOr:
		e.builder.Write(bytecode.OpOr)
	default:
		return fmt.Errorf("compiler: unknown binary operator %v", x.Operator)
	}
	return nil
}

func (e *emitter) emitCall(x ast.Call) error {
	if idx, ok := e.resolveLocal(string(x.Function)); ok {
		e.builder.WritePair(bytecode.OpGetLocal, byte(idx))
	} else {
		idx, err := e.stringConstant(string(x.Function))
		if err != nil {
			return err
		}
		e.builder.WritePair(bytecode.OpGetGlobal, idx)
	}

	for _, arg := range x.Arguments {
		if err := e.emitExpr(arg); err != nil {
			return err
		}
	}
	e.builder.WritePair(bytecode.OpCall, byte(len(x.Arguments)))
	return nil
}

func (e *emitter) emitInstance(x ast.Instance) error {
	for _, prop := range x.Properties {
		if err := e.emitExpr(prop.Value); err != nil {
			return err
		}
		idx, err := e.constantIndex(e.heap.InternString(string(prop.Ident)))
		if err != nil {
			return err
		}
		e.builder.WritePair(bytecode.OpConstant, idx)
	}

	if idx, ok := e.resolveLocal(string(x.Class)); ok {
		e.builder.WritePair(bytecode.OpGetLocal, byte(idx))
	} else {
		idx, err := e.stringConstant(string(x.Class))
		if err != nil {
			return err
		}
		e.builder.WritePair(bytecode.OpGetGlobal, idx)
	}
	e.builder.WritePair(bytecode.OpNew, byte(len(x.Properties)))
	return nil
}
