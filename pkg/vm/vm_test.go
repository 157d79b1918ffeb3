package vm_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/brane/pkg/bytecode"
	"github.com/kristofer/brane/pkg/compiler"
	"github.com/kristofer/brane/pkg/executor"
	"github.com/kristofer/brane/pkg/packageindex"
	"github.com/kristofer/brane/pkg/parser"
	"github.com/kristofer/brane/pkg/value"
	"github.com/kristofer/brane/pkg/vm"
)

// compileAndRun wires the full parse -> compile -> execute pipeline, the
// shape every scenario in this file drives end to end rather than poking
// the VM's internals directly.
func compileAndRun(t *testing.T, src string, idx *packageindex.Index) (*vm.VM, value.Slot) {
	t.Helper()
	program, err := parser.ParseBraneScript(src)
	require.NoError(t, err)
	compiled, err := compiler.Compile(program)
	require.NoError(t, err)

	exec := executor.NewLocalExecutor(zerolog.Nop())
	machine := vm.New(compiled.Heap, idx, exec)
	result, err := machine.Run(context.Background(), compiled.Chunk)
	require.NoError(t, err)
	return machine, result
}

func runSource(t *testing.T, src string) value.Slot {
	t.Helper()
	_, result := compileAndRun(t, src, packageindex.NewIndex())
	return result
}

// compileOnly builds a chunk without running it, for tests that need to
// assert on a runtime error or need the live VM/heap for inspection.
func compileOnly(t *testing.T, src string) (*vm.VM, bytecode.Chunk) {
	t.Helper()
	program, err := parser.ParseBraneScript(src)
	require.NoError(t, err)
	compiled, err := compiler.Compile(program)
	require.NoError(t, err)
	exec := executor.NewLocalExecutor(zerolog.Nop())
	machine := vm.New(compiled.Heap, packageindex.NewIndex(), exec)
	return machine, compiled.Chunk
}

func TestArithmeticPrecedence(t *testing.T) {
	result := runSource(t, "1 + 2 * 3;")
	i, ok := result.AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 7, i)
}

func TestMixedIntegerAndRealPromotesToReal(t *testing.T) {
	result := runSource(t, "let x := 1; let y := 2.5; y + x;")
	r, ok := result.AsReal()
	require.True(t, ok)
	assert.Equal(t, 3.5, r)
}

func TestStringConcatenation(t *testing.T) {
	machine, result := compileAndRun(t, `"foo" + "bar";`, packageindex.NewIndex())
	handle, ok := result.AsHandle()
	require.True(t, ok)
	s, ok := machine.Heap().GetString(handle)
	require.True(t, ok)
	assert.Equal(t, "foobar", s)
}

func TestForLoopSum(t *testing.T) {
	result := runSource(t, `
		let sum := 0;
		for (let i := 1; i <= 5; i := i + 1) {
			sum := sum + i;
		}
		sum;
	`)
	i, ok := result.AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 15, i)
}

func TestUserFunctionCall(t *testing.T) {
	result := runSource(t, `
		func add(a, b) { return a + b; }
		add(3, 4);
	`)
	i, ok := result.AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 7, i)
}

func TestClassMethodCall(t *testing.T) {
	result := runSource(t, `
		class Point {
			x: integer;
			y: integer;
			func norm2() { return this.x * this.x + this.y * this.y; }
		}
		let p := new Point { x: 3, y: 4 };
		p.norm2();
	`)
	i, ok := result.AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 25, i)
}

func TestParallelJoinPreservesSubmissionOrder(t *testing.T) {
	machine, result := compileAndRun(t, `
		func dbl(n) { return n * 2; }
		let r := parallel [{ return dbl(1); }, { return dbl(2); }, { return dbl(3); }];
		r;
	`, packageindex.NewIndex())

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

func TestIntegerDivisionTruncates(t *testing.T) {
	result := runSource(t, "7 / 2;")
	i, ok := result.AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 3, i)
}

func TestIntegerDivisionByZeroIsRuntimeError(t *testing.T) {
	machine, chunk := compileOnly(t, "1 / 0;")
	_, err := machine.Run(context.Background(), chunk)
	require.Error(t, err)
	var rerr *vm.RuntimeError
	require.ErrorAs(t, err, &rerr)
}

func TestComparisonOnNonNumericIsRuntimeErrorNotPanic(t *testing.T) {
	machine, chunk := compileOnly(t, `"a" < "b";`)

	var err error
	require.NotPanics(t, func() {
		_, err = machine.Run(context.Background(), chunk)
	})
	require.Error(t, err)
}

func TestArrayLiteralPreservesOrderAndIndexes(t *testing.T) {
	result := runSource(t, `let a := [10, 20, 30]; a[1];`)
	i, ok := result.AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 20, i)
}

func TestArrayIndexOutOfBoundsIsRuntimeError(t *testing.T) {
	machine, chunk := compileOnly(t, `let a := [1, 2]; a[5];`)
	_, err := machine.Run(context.Background(), chunk)
	require.Error(t, err)
}

func TestReturnTruncatesStackToFrameBase(t *testing.T) {
	// After calling and returning from a function, the shared stack must
	// be exactly one slot deep (the call's own result) regardless of how
	// many locals the callee pushed along the way.
	result := runSource(t, `
		func sumTo(n) {
			let total := 0;
			for (let i := 1; i <= n; i := i + 1) {
				total := total + i;
			}
			return total;
		}
		sumTo(10);
	`)
	i, ok := result.AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 55, i)
}

func TestExternalCallDispatchesToRegisteredHandler(t *testing.T) {
	idx := packageindex.NewIndex().WithPackage("math", packageindex.Package{
		Version: "1.0.0",
		Kind:    packageindex.KindECU,
		Functions: map[string]packageindex.Function{
			"square": {
				Parameters: []packageindex.Parameter{{Name: "n", Type: "int"}},
				ReturnType: "int",
			},
		},
	})

	program, err := parser.ParseBraneScript(`import math; square(6);`)
	require.NoError(t, err)
	compiled, err := compiler.Compile(program)
	require.NoError(t, err)

	exec := executor.NewLocalExecutor(zerolog.Nop())
	exec.Register("math", "square", func(ctx context.Context, args map[string]value.Value) (value.Value, error) {
		n := args["n"].Int
		return value.IntegerValue(n * n), nil
	})

	machine := vm.New(compiled.Heap, idx, exec)
	result, err := machine.Run(context.Background(), compiled.Chunk)
	require.NoError(t, err)
	i, ok := result.AsInteger()
	require.True(t, ok)
	assert.EqualValues(t, 36, i)
}

func TestExternalCallReturnTypeMismatchIsFatal(t *testing.T) {
	idx := packageindex.NewIndex().WithPackage("math", packageindex.Package{
		Version: "1.0.0",
		Kind:    packageindex.KindECU,
		Functions: map[string]packageindex.Function{
			"square": {
				Parameters: []packageindex.Parameter{{Name: "n", Type: "int"}},
				ReturnType: "int",
			},
		},
	})

	program, err := parser.ParseBraneScript(`import math; square(6);`)
	require.NoError(t, err)
	compiled, err := compiler.Compile(program)
	require.NoError(t, err)

	exec := executor.NewLocalExecutor(zerolog.Nop())
	exec.Register("math", "square", func(ctx context.Context, args map[string]value.Value) (value.Value, error) {
		return value.StringValue("not an int"), nil
	})

	machine := vm.New(compiled.Heap, idx, exec)
	_, err = machine.Run(context.Background(), compiled.Chunk)
	require.Error(t, err)
}

func TestDetachedCallReturnsServiceAndWaitUntilBlocksUntilResolved(t *testing.T) {
	idx := packageindex.NewIndex().WithPackage("jobs", packageindex.Package{
		Version:  "1.0.0",
		Kind:     packageindex.KindECU,
		Detached: true,
		Functions: map[string]packageindex.Function{
			"run": {ReturnType: "unit"},
		},
	})

	program, err := parser.ParseBraneScript(`
		import jobs;
		let svc := run();
		svc.waitUntilDone();
		svc;
	`)
	require.NoError(t, err)
	compiled, err := compiler.Compile(program)
	require.NoError(t, err)

	exec := executor.NewLocalExecutor(zerolog.Nop())
	exec.Register("jobs", "run", func(ctx context.Context, args map[string]value.Value) (value.Value, error) {
		return value.UnitValue(), nil
	})

	machine := vm.New(compiled.Heap, idx, exec)
	result, err := machine.Run(context.Background(), compiled.Chunk)
	require.NoError(t, err)

	handle, ok := result.AsHandle()
	require.True(t, ok)
	inst, ok := machine.Heap().Get(handle).(*value.InstanceObject)
	require.True(t, ok)
	_, hasIdentifier := inst.Properties["identifier"]
	assert.True(t, hasIdentifier)
}
