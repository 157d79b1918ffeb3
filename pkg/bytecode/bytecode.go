// Package bytecode defines the wire format the compiler emits and the VM
// executes: a flat byte stream of opcodes with packed operands, plus a
// constant pool of Slots.
//
// Architecture:
//
// The bytecode is stack-based:
//  1. Values are pushed onto and popped from a runtime stack.
//  2. Operations consume operands from the stack and push results back.
//  3. Locals live on the shared value stack, addressed by slot number
//     relative to the current frame's base; globals live in a name-keyed
//     map.
//  4. Calls dispatch by Slot kind: user function, built-in, or external.
//
// Instruction format:
//
// Every instruction starts with a one-byte opcode. Most take zero or one
// immediate operand bytes; OP_JUMP/OP_JUMP_BACK/OP_JUMP_IF_FALSE take a
// two-byte big-endian offset. Operand meaning depends on the opcode:
//   - OP_CONSTANT/OP_DOT/OP_DEFINE_GLOBAL/OP_GET_GLOBAL/OP_SET_GLOBAL/
//     OP_CLASS/OP_IMPORT/OP_GET_METHOD: one byte, index into the constant
//     pool.
//   - OP_GET_LOCAL/OP_SET_LOCAL/OP_ARRAY/OP_CALL/OP_PARALLEL/OP_NEW/OP_POP_N:
//     one byte, a count or slot index.
//   - OP_JUMP/OP_JUMP_IF_FALSE/OP_JUMP_BACK: two bytes, a relative offset.
//
// The opcode numbering is fixed (not iota-assigned) so that serialized
// bytecode stays stable across builds.
package bytecode

import (
	"fmt"
	"strings"

	"github.com/kristofer/brane/pkg/value"
)

// Op is a single bytecode operation.
type Op byte

const (
	OpAdd          Op = 0x01
	OpAnd          Op = 0x02
	OpArray        Op = 0x03
	OpCall         Op = 0x04
	OpClass        Op = 0x05
	OpConstant     Op = 0x06
	OpDefineGlobal Op = 0x07
	OpDivide       Op = 0x08
	OpDot          Op = 0x09
	OpEqual        Op = 0x0A
	OpFalse        Op = 0x0B
	OpGetGlobal    Op = 0x0C
	OpGetLocal     Op = 0x0D
	OpGreater      Op = 0x0E
	OpImport       Op = 0x0F
	OpIndex        Op = 0x10
	OpJump         Op = 0x11
	OpJumpBack     Op = 0x12
	OpJumpIfFalse  Op = 0x13
	OpLess         Op = 0x14
	OpLocPop       Op = 0x15
	OpLocPush      Op = 0x16
	OpMultiply     Op = 0x17
	OpNegate       Op = 0x18
	OpNew          Op = 0x19
	OpNot          Op = 0x1A
	OpOr           Op = 0x1B
	OpParallel     Op = 0x1C
	OpPop          Op = 0x1D
	OpPopN         Op = 0x1E
	OpReturn       Op = 0x1F
	OpSetGlobal    Op = 0x20
	OpSetLocal     Op = 0x21
	OpSubtract     Op = 0x22
	OpTrue         Op = 0x23
	OpUnit         Op = 0x24
	OpLoc          Op = 0x25

	// OpGetMethod is not part of the original opcode numbering; it splits
	// property access (OpDot) from method lookup so that `obj.m(a, b)` can
	// push the method slot and re-push the receiver for implicit self
	// without reusing OpDot's single-slot-replace semantics.
	OpGetMethod Op = 0x26
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "OP_ADD"
	case OpAnd:
		return "OP_AND"
	case OpArray:
		return "OP_ARRAY"
	case OpCall:
		return "OP_CALL"
	case OpClass:
		return "OP_CLASS"
	case OpConstant:
		return "OP_CONSTANT"
	case OpDefineGlobal:
		return "OP_DEFINE_GLOBAL"
	case OpDivide:
		return "OP_DIVIDE"
	case OpDot:
		return "OP_DOT"
	case OpEqual:
		return "OP_EQUAL"
	case OpFalse:
		return "OP_FALSE"
	case OpGetGlobal:
		return "OP_GET_GLOBAL"
	case OpGetLocal:
		return "OP_GET_LOCAL"
	case OpGreater:
		return "OP_GREATER"
	case OpImport:
		return "OP_IMPORT"
	case OpIndex:
		return "OP_INDEX"
	case OpJump:
		return "OP_JUMP"
	case OpJumpBack:
		return "OP_JUMP_BACK"
	case OpJumpIfFalse:
		return "OP_JUMP_IF_FALSE"
	case OpLess:
		return "OP_LESS"
	case OpLocPop:
		return "OP_LOC_POP"
	case OpLocPush:
		return "OP_LOC_PUSH"
	case OpMultiply:
		return "OP_MULTIPLY"
	case OpNegate:
		return "OP_NEGATE"
	case OpNew:
		return "OP_NEW"
	case OpNot:
		return "OP_NOT"
	case OpOr:
		return "OP_OR"
	case OpParallel:
		return "OP_PARALLEL"
	case OpPop:
		return "OP_POP"
	case OpPopN:
		return "OP_POP_N"
	case OpReturn:
		return "OP_RETURN"
	case OpSetGlobal:
		return "OP_SET_GLOBAL"
	case OpSetLocal:
		return "OP_SET_LOCAL"
	case OpSubtract:
		return "OP_SUBTRACT"
	case OpTrue:
		return "OP_TRUE"
	case OpUnit:
		return "OP_UNIT"
	case OpLoc:
		return "OP_LOC"
	case OpGetMethod:
		return "OP_GET_METHOD"
	default:
		return "OP_UNKNOWN"
	}
}

// Chunk is a frozen, immutable unit of compiled code: a byte-packed
// instruction stream plus the constant pool its OP_CONSTANT/OP_CLASS/
// OP_IMPORT/OP_DEFINE_GLOBAL/OP_GET_GLOBAL/OP_DOT operands index into.
//
// A Chunk never changes after the Builder that produced it calls Freeze.
// Constants may themselves be Object-kind Slots (nested function bodies,
// string literals) living in the same heap the surrounding program uses.
type Chunk struct {
	Code      []byte
	Constants []value.Slot
}

// Disassemble renders the chunk as a sequence of "offset NAME operand"
// lines, matching the operand widths in this package's "Instruction format"
// documentation. It backs the `brane disasm` command's output and a
// round-trip check in tests.
func (c Chunk) Disassemble() string {
	var b strings.Builder
	offset := 0
	for offset < len(c.Code) {
		offset = disassembleInstruction(&b, c, offset)
	}
	return b.String()
}

func disassembleInstruction(b *strings.Builder, c Chunk, offset int) int {
	op := Op(c.Code[offset])
	fmt.Fprintf(b, "%04d ", offset)

	switch op {
	case OpConstant, OpDot, OpDefineGlobal, OpGetGlobal, OpSetGlobal, OpClass, OpImport, OpGetMethod:
		return constantInstruction(b, op, c, offset)
	case OpArray, OpCall, OpParallel, OpNew, OpGetLocal, OpSetLocal, OpPopN:
		return byteInstruction(b, op, c, offset)
	case OpJump, OpJumpIfFalse:
		return jumpInstruction(b, op, c, offset, 1)
	case OpJumpBack:
		return jumpInstruction(b, op, c, offset, -1)
	default:
		fmt.Fprintln(b, op.String())
		return offset + 1
	}
}

func constantInstruction(b *strings.Builder, op Op, c Chunk, offset int) int {
	idx := c.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d", op.String(), idx)
	if int(idx) < len(c.Constants) {
		fmt.Fprintf(b, " | %s", c.Constants[idx])
	}
	fmt.Fprintln(b)
	return offset + 2
}

func byteInstruction(b *strings.Builder, op Op, c Chunk, offset int) int {
	operand := c.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d\n", op.String(), operand)
	return offset + 2
}

func jumpInstruction(b *strings.Builder, op Op, c Chunk, offset int, sign int) int {
	jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
	target := offset + 3 + sign*jump
	fmt.Fprintf(b, "%-16s %4d -> %d\n", op.String(), offset, target)
	return offset + 3
}

func init() {
	value.ChunkCodec = chunkCodec{}
}

type chunkCodec struct{}

func (chunkCodec) Encode(c value.Chunk) ([]byte, []value.Slot) {
	ch := c.(Chunk)
	return ch.Code, ch.Constants
}

func (chunkCodec) Decode(code []byte, constants []value.Slot) value.Chunk {
	return Chunk{Code: code, Constants: constants}
}
