// Package test holds end-to-end scenario tests that drive the full
// parse -> resolve -> compile -> execute pipeline, the way the teacher's
// top-level test package exercised its own interpreter as a black box
// rather than poking any one package's internals.
package test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/brane/pkg/compiler"
	"github.com/kristofer/brane/pkg/executor"
	"github.com/kristofer/brane/pkg/packageindex"
	"github.com/kristofer/brane/pkg/parser"
	"github.com/kristofer/brane/pkg/resolver"
	"github.com/kristofer/brane/pkg/value"
	"github.com/kristofer/brane/pkg/vm"
)

func runBraneScript(t *testing.T, src string, idx *packageindex.Index) (*vm.VM, value.Slot) {
	t.Helper()
	if idx == nil {
		idx = packageindex.NewIndex()
	}
	program, err := parser.ParseBraneScript(src)
	require.NoError(t, err)
	resolved, err := resolver.Resolve(program, idx)
	require.NoError(t, err)
	compiled, err := compiler.Compile(resolved)
	require.NoError(t, err)

	exec := executor.NewLocalExecutor(zerolog.Nop())
	machine := vm.New(compiled.Heap, idx, exec)
	result, err := machine.Run(context.Background(), compiled.Chunk)
	require.NoError(t, err)
	return machine, result
}

// Scenario 1: arithmetic expression, spec.md's "program value" case.
func TestScenarioArithmeticExpression(t *testing.T) {
	_, result := runBraneScript(t, "1 + 2 * 3;", nil)
	i, ok := result.AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 7, i)
}

// Scenario 2: mixed numerics promote to Real.
func TestScenarioMixedNumerics(t *testing.T) {
	_, result := runBraneScript(t, "let x := 1; let y := 2.5; y + x;", nil)
	r, ok := result.AsReal()
	require.True(t, ok)
	assert.Equal(t, 3.5, r)
}

// Scenario 3: string concatenation produces a heap string.
func TestScenarioStringConcatenation(t *testing.T) {
	machine, result := runBraneScript(t, `"foo" + "bar";`, nil)
	handle, ok := result.AsHandle()
	require.True(t, ok)
	s, ok := machine.Heap().GetString(handle)
	require.True(t, ok)
	assert.Equal(t, "foobar", s)
}

// Scenario 4: control flow, a for loop accumulating a running sum.
func TestScenarioControlFlow(t *testing.T) {
	_, result := runBraneScript(t, `
		let n := 5; let s := 0;
		for (let i := 1; i <= n; i := i + 1) { s := s + i; }
		s;
	`, nil)
	i, ok := result.AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 15, i)
}

// Scenario 5: a user-defined function.
func TestScenarioUserFunction(t *testing.T) {
	_, result := runBraneScript(t, `func add(a,b){ return a+b; } add(3,4);`, nil)
	i, ok := result.AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 7, i)
}

// Scenario 6: a class with a method referencing this.
func TestScenarioClassAndMethod(t *testing.T) {
	_, result := runBraneScript(t, `
		class Point { x: integer; y: integer; func norm2(){ return this.x*this.x + this.y*this.y; } }
		let p := new Point { x: 3, y: 4 };
		p.norm2();
	`, nil)
	i, ok := result.AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 25, i)
}

// Scenario 7: parallel join against a registered Executor handler,
// asserting submission order is preserved in the result array.
func TestScenarioParallelJoin(t *testing.T) {
	idx := packageindex.NewIndex().WithPackage("math", packageindex.Package{
		Version: "1.0.0",
		Kind:    packageindex.KindECU,
		Functions: map[string]packageindex.Function{
			"dbl": {
				Parameters: []packageindex.Parameter{{Name: "n", Type: "int"}},
				ReturnType: "int",
			},
		},
	})

	program, err := parser.ParseBraneScript(`
		import math;
		let r := parallel [{ return dbl(1); }, { return dbl(2); }, { return dbl(3); }];
		r;
	`)
	require.NoError(t, err)
	resolved, err := resolver.Resolve(program, idx)
	require.NoError(t, err)
	compiled, err := compiler.Compile(resolved)
	require.NoError(t, err)

	exec := executor.NewLocalExecutor(zerolog.Nop())
	exec.Register("math", "dbl", func(ctx context.Context, args map[string]value.Value) (value.Value, error) {
		return value.IntegerValue(args["n"].Int * 2), nil
	})

	machine := vm.New(compiled.Heap, idx, exec)
	result, err := machine.Run(context.Background(), compiled.Chunk)
	require.NoError(t, err)

	handle, ok := result.AsHandle()
	require.True(t, ok)
	arr, ok := machine.Heap().Get(handle).(*value.ArrayObject)
	require.True(t, ok)
	require.Len(t, arr.Elements, 3)

	got := make([]int64, 3)
	for i, e := range arr.Elements {
		got[i], ok = e.AsInteger()
		require.True(t, ok)
	}
	assert.Equal(t, []int64{2, 4, 6}, got)
}

// Bakery source resolves its pattern-call notation down to the same
// ordinary call form BraneScript compiles, exercising the pattern
// resolver end to end rather than just the parser's AST shape.
func TestScenarioBakeryPatternResolvesToPackageCall(t *testing.T) {
	idx := packageindex.NewIndex().WithPackage("fs", packageindex.Package{
		Version: "1.0.0",
		Kind:    packageindex.KindECU,
		Functions: map[string]packageindex.Function{
			"createDirectory": {
				Parameters: []packageindex.Parameter{{Name: "path", Type: "string"}},
				ReturnType: "string",
				Pattern: &packageindex.CallPattern{
					Prefix: "Create a directory at",
				},
			},
		},
	})

	program, err := parser.ParseBakery(`import fs; Create a directory at "tmp";`)
	require.NoError(t, err)
	resolved, err := resolver.Resolve(program, idx)
	require.NoError(t, err)
	compiled, err := compiler.Compile(resolved)
	require.NoError(t, err)

	exec := executor.NewLocalExecutor(zerolog.Nop())
	var gotPath string
	exec.Register("fs", "createDirectory", func(ctx context.Context, args map[string]value.Value) (value.Value, error) {
		gotPath = args["path"].Str
		return value.StringValue("ok"), nil
	})

	machine := vm.New(compiled.Heap, idx, exec)
	_, err = machine.Run(context.Background(), compiled.Chunk)
	require.NoError(t, err)
	assert.Equal(t, "tmp", gotPath)
}

// Universal invariant: resolving an already-resolved AST is a no-op, so
// running resolution twice produces the same observable result as once.
func TestInvariantPatternResolverIsIdempotent(t *testing.T) {
	idx := packageindex.NewIndex().WithPackage("fs", packageindex.Package{
		Version: "1.0.0",
		Kind:    packageindex.KindECU,
		Functions: map[string]packageindex.Function{
			"createDirectory": {
				Parameters: []packageindex.Parameter{{Name: "path", Type: "string"}},
				ReturnType: "string",
				Pattern:    &packageindex.CallPattern{Prefix: "Create a directory at"},
			},
		},
	})

	program, err := parser.ParseBakery(`import fs; Create a directory at "tmp";`)
	require.NoError(t, err)

	once, err := resolver.Resolve(program, idx)
	require.NoError(t, err)
	twice, err := resolver.Resolve(once, idx)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

// Universal invariant: disassembling a well-formed chunk consumes every
// byte of its code exactly once (no panic, no short read) regardless of
// how many call sites, jumps, or constants the source produces.
func TestInvariantDisassemblyConsumesWholeChunk(t *testing.T) {
	program, err := parser.ParseBraneScript(`
		func add(a,b){ return a+b; }
		let total := 0;
		for (let i := 0; i <= 3; i := i + 1) {
			if (i > 1) { total := total + add(i, i); } else { total := total - 1; }
		}
		let xs := [1, 2, 3];
		xs[0];
	`)
	require.NoError(t, err)
	compiled, err := compiler.Compile(program)
	require.NoError(t, err)

	var out string
	require.NotPanics(t, func() {
		out = compiled.Chunk.Disassemble()
	})
	assert.NotEmpty(t, out)
}
