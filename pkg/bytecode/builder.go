package bytecode

import (
	"fmt"

	"github.com/kristofer/brane/pkg/value"
)

// maxConstants bounds a chunk's constant pool: OP_CONSTANT and its kin
// address an entry with a single byte operand, so a pool already holding
// maxConstants entries has no representable index left for one more.
const maxConstants = 256

// Builder accumulates code and constants for a single function body while
// the compiler emits it. Call Freeze once emission for that body is
// complete to obtain the immutable Chunk.
type Builder struct {
	code      []byte
	constants []value.Slot
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Len returns the number of bytes written so far; callers use it to compute
// jump targets before the jump operand itself is known (back-patching).
func (b *Builder) Len() int {
	return len(b.code)
}

// Write appends a single opcode byte.
func (b *Builder) Write(op Op) {
	b.code = append(b.code, byte(op))
}

// WriteByte appends a raw operand byte following an opcode written earlier.
func (b *Builder) WriteByte(v byte) {
	b.code = append(b.code, v)
}

// WritePair appends an opcode followed by a one-byte operand.
func (b *Builder) WritePair(op Op, operand byte) {
	b.Write(op)
	b.WriteByte(operand)
}

// PatchByte overwrites a single previously-written byte, used for
// short-jump backpatching and other forward-reference fixups.
func (b *Builder) PatchByte(offset int, v byte) {
	b.code[offset] = v
}

// AddConstant appends a value to the constant pool and returns its index,
// failing once the pool already holds as many entries as a single byte can
// address rather than silently wrapping the index around.
func (b *Builder) AddConstant(v value.Slot) (byte, error) {
	if len(b.constants) >= maxConstants {
		return 0, fmt.Errorf("constant pool overflow (>%d constants addressable by one byte)", maxConstants-1)
	}
	b.constants = append(b.constants, v)
	return byte(len(b.constants) - 1), nil
}

// Freeze finalizes the builder into an immutable Chunk.
func (b *Builder) Freeze() Chunk {
	return Chunk{Code: b.code, Constants: b.constants}
}
