package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/brane/pkg/ast"
	"github.com/kristofer/brane/pkg/parser"
)

func TestParseBraneScriptLetAndExprStmt(t *testing.T) {
	program, err := parser.ParseBraneScript(`let x := 1 + 2 * 3;`)
	require.NoError(t, err)
	require.Len(t, program, 1)

	let, ok := program[0].(ast.LetAssign)
	require.True(t, ok)
	assert.Equal(t, ast.Ident("x"), let.Ident)

	bin, ok := let.Value.(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.BinAdd, bin.Operator)

	rhs, ok := bin.RHS.(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.BinMul, rhs.Operator)
}

func TestParseBraneScriptIfElse(t *testing.T) {
	program, err := parser.ParseBraneScript(`
		if (x == 1) {
			print("one");
		} else {
			print("other");
		}
	`)
	require.NoError(t, err)
	require.Len(t, program, 1)

	ifStmt, ok := program[0].(ast.If)
	require.True(t, ok)
	assert.Len(t, ifStmt.Consequent, 1)
	assert.Len(t, ifStmt.Alternative, 1)
}

func TestParseBraneScriptWhileAndFor(t *testing.T) {
	program, err := parser.ParseBraneScript(`
		let i := 0;
		while (i < 10) {
			i := i + 1;
		}
		for (let j := 0; j < 10; j := j + 1) {
			print(j);
		}
	`)
	require.NoError(t, err)
	require.Len(t, program, 3)

	_, ok := program[1].(ast.While)
	require.True(t, ok)

	forStmt, ok := program[2].(ast.For)
	require.True(t, ok)
	assert.NotNil(t, forStmt.Initializer)
	assert.NotNil(t, forStmt.Increment)
}

func TestParseBraneScriptFuncDeclAndCall(t *testing.T) {
	program, err := parser.ParseBraneScript(`
		func add(a, b) {
			return a + b;
		}
		add(1, 2);
	`)
	require.NoError(t, err)
	require.Len(t, program, 2)

	fn, ok := program[0].(ast.DeclareFunc)
	require.True(t, ok)
	assert.Equal(t, []ast.Ident{"a", "b"}, fn.Params)

	exprStmt, ok := program[1].(ast.ExprStmt)
	require.True(t, ok)
	call, ok := exprStmt.Value.(ast.Call)
	require.True(t, ok)
	assert.Equal(t, ast.Ident("add"), call.Function)
	assert.Len(t, call.Arguments, 2)
}

func TestParseBraneScriptClassAndInstance(t *testing.T) {
	program, err := parser.ParseBraneScript(`
		class Point {
			x: integer;
			y: integer;

			func sum() {
				return this.x + this.y;
			}
		}
		let p := new Point { x: 1, y: 2 };
	`)
	require.NoError(t, err)
	require.Len(t, program, 2)

	class, ok := program[0].(ast.DeclareClass)
	require.True(t, ok)
	assert.Len(t, class.Properties, 2)
	assert.Contains(t, class.Methods, ast.Ident("sum"))

	let, ok := program[1].(ast.LetAssign)
	require.True(t, ok)
	inst, ok := let.Value.(ast.Instance)
	require.True(t, ok)
	assert.Equal(t, ast.Ident("Point"), inst.Class)
	assert.Len(t, inst.Properties, 2)
}

func TestParseBraneScriptDotMethodCall(t *testing.T) {
	program, err := parser.ParseBraneScript(`p.sum();`)
	require.NoError(t, err)
	require.Len(t, program, 1)

	exprStmt := program[0].(ast.ExprStmt)
	bin, ok := exprStmt.Value.(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.BinDot, bin.Operator)
}

func TestParseBraneScriptParallelWithOn(t *testing.T) {
	program, err := parser.ParseBraneScript(`
		let results := parallel [
			on "amsterdam" { print("a"); },
			{ print("b"); }
		];
	`)
	require.NoError(t, err)
	require.Len(t, program, 1)

	par, ok := program[0].(ast.Parallel)
	require.True(t, ok)
	require.NotNil(t, par.LetAssign)
	assert.Equal(t, ast.Ident("results"), *par.LetAssign)
	assert.Len(t, par.Blocks, 2)
	_, ok = par.Blocks[0].(ast.On)
	assert.True(t, ok)
}

func TestParseBraneScriptArrayAndIndex(t *testing.T) {
	program, err := parser.ParseBraneScript(`let a := [1, 2, 3]; let b := a[0];`)
	require.NoError(t, err)
	require.Len(t, program, 2)

	let2 := program[1].(ast.LetAssign)
	idx, ok := let2.Value.(ast.Index)
	require.True(t, ok)
	_, ok = idx.Array.(ast.IdentExpr)
	require.True(t, ok)
}

func TestParseBakeryPatternAccumulation(t *testing.T) {
	program, err := parser.ParseBakery(`Create a directory at "tmp";`)
	require.NoError(t, err)
	require.Len(t, program, 1)

	exprStmt, ok := program[0].(ast.ExprStmt)
	require.True(t, ok)
	pattern, ok := exprStmt.Value.(ast.Pattern)
	require.True(t, ok)
	assert.True(t, len(pattern.Terms) >= 4)
}

func TestParseBakeryImportAndReturn(t *testing.T) {
	program, err := parser.ParseBakery(`import fs; return "done";`)
	require.NoError(t, err)
	require.Len(t, program, 2)

	_, ok := program[0].(ast.Import)
	require.True(t, ok)
	ret, ok := program[1].(ast.Return)
	require.True(t, ok)
	lit, ok := ret.Value.(ast.Literal)
	require.True(t, ok)
	assert.Equal(t, "done", lit.String)
}
