package compiler_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/brane/pkg/compiler"
	"github.com/kristofer/brane/pkg/parser"
)

func compileSource(t *testing.T, src string) *compiler.Program {
	t.Helper()
	program, err := parser.ParseBraneScript(src)
	require.NoError(t, err)
	compiled, err := compiler.Compile(program)
	require.NoError(t, err)
	return compiled
}

func TestCompileArithmeticPrecedence(t *testing.T) {
	prog := compileSource(t, "1 + 2 * 3;")
	disasm := prog.Chunk.Disassemble()
	assert.True(t, strings.Contains(disasm, "OP_MULTIPLY"))
	assert.True(t, strings.Contains(disasm, "OP_ADD"))
	assert.True(t, strings.Contains(disasm, "OP_POP"))
}

func TestCompileLetDefinesGlobal(t *testing.T) {
	prog := compileSource(t, "let x := 1;")
	disasm := prog.Chunk.Disassemble()
	assert.True(t, strings.Contains(disasm, "OP_DEFINE_GLOBAL"))
}

func TestCompileIfElseEmitsBackpatchedJumps(t *testing.T) {
	prog := compileSource(t, `if (1 == 1) { 1; } else { 2; }`)
	disasm := prog.Chunk.Disassemble()
	assert.True(t, strings.Contains(disasm, "OP_JUMP_IF_FALSE"))
	assert.True(t, strings.Contains(disasm, "OP_JUMP "))
	assert.False(t, strings.Contains(disasm, "-> 0\n"))
}

func TestCompileForLoopEmitsJumpBack(t *testing.T) {
	prog := compileSource(t, `for (let i := 0; i < 3; i := i + 1) { i; }`)
	disasm := prog.Chunk.Disassemble()
	assert.True(t, strings.Contains(disasm, "OP_JUMP_BACK"))
}

func TestCompileFunctionDeclarationAttachesConstant(t *testing.T) {
	prog := compileSource(t, `func add(a, b) { return a + b; } add(1, 2);`)
	disasm := prog.Chunk.Disassemble()
	assert.True(t, strings.Contains(disasm, "OP_CONSTANT"))
	assert.True(t, strings.Contains(disasm, "OP_CALL"))
	assert.True(t, strings.Contains(disasm, "OP_DEFINE_GLOBAL"))
}

func TestCompileClassAttachesClassConstant(t *testing.T) {
	prog := compileSource(t, `
		class Point {
			x: integer;
			y: integer;
			func norm2() { return this.x * this.x + this.y * this.y; }
		}
		let p := new Point { x: 3, y: 4 };
		p.norm2();
	`)
	disasm := prog.Chunk.Disassemble()
	assert.True(t, strings.Contains(disasm, "OP_CLASS"))
	assert.True(t, strings.Contains(disasm, "OP_NEW"))
	assert.True(t, strings.Contains(disasm, "OP_GET_METHOD"))
}

func TestCompileParallelEmitsNullaryFunctionsAndJoin(t *testing.T) {
	prog := compileSource(t, `
		let r := parallel [{ return 1; }, { return 2; }, { return 3; }];
	`)
	disasm := prog.Chunk.Disassemble()
	assert.True(t, strings.Contains(disasm, "OP_PARALLEL"))
	assert.True(t, strings.Contains(disasm, "OP_DEFINE_GLOBAL"))
}

func TestCompileImportEmitsOpImport(t *testing.T) {
	prog := compileSource(t, `import math;`)
	disasm := prog.Chunk.Disassemble()
	assert.True(t, strings.Contains(disasm, "OP_IMPORT"))
}

func TestCompileArrayLiteralAndIndex(t *testing.T) {
	prog := compileSource(t, `let a := [1, 2, 3]; a[0];`)
	disasm := prog.Chunk.Disassemble()
	assert.True(t, strings.Contains(disasm, "OP_ARRAY"))
	assert.True(t, strings.Contains(disasm, "OP_INDEX"))
}

// A constant-pool entry is addressed by a single byte operand, so a 257th
// distinct literal has no representable index; the compiler must abort
// rather than silently wrap the index back into already-used territory.
func TestCompileConstantPoolOverflowIsCompileError(t *testing.T) {
	var src strings.Builder
	for i := 0; i < 257; i++ {
		fmt.Fprintf(&src, "%d.%d;\n", i, i)
	}
	program, err := parser.ParseBraneScript(src.String())
	require.NoError(t, err)

	_, err = compiler.Compile(program)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constant pool overflow")
}

// A local is addressed by a single byte slot index, so a function body
// with 257 live locals (the "func" placeholder plus 256 lets) overflows
// what OP_GET_LOCAL/OP_SET_LOCAL can address.
func TestCompileLocalOverflowIsCompileError(t *testing.T) {
	var body strings.Builder
	body.WriteString("func f() {\n")
	for i := 0; i < 256; i++ {
		fmt.Fprintf(&body, "let v%d := %d;\n", i, i)
	}
	body.WriteString("return 0;\n}\n")

	program, err := parser.ParseBraneScript(body.String())
	require.NoError(t, err)

	_, err = compiler.Compile(program)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many locals")
}
