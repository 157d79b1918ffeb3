package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/brane/pkg/ast"
	"github.com/kristofer/brane/pkg/packageindex"
	"github.com/kristofer/brane/pkg/parser"
	"github.com/kristofer/brane/pkg/resolver"
)

func indexWithCreateDirectory() *packageindex.Index {
	return packageindex.NewIndex().WithPackage("fs", packageindex.Package{
		Version: "1.0.0",
		Kind:    packageindex.KindECU,
		Functions: map[string]packageindex.Function{
			"createDirectory": {
				ReturnType: "unit",
				Parameters: []packageindex.Parameter{{Name: "path", Type: "string"}},
				Pattern:    &packageindex.CallPattern{Prefix: "Create a directory at"},
			},
		},
	})
}

func TestResolveRewritesPatternToCall(t *testing.T) {
	program, err := parser.ParseBakery(`Create a directory at "tmp";`)
	require.NoError(t, err)

	resolved, err := resolver.Resolve(program, indexWithCreateDirectory())
	require.NoError(t, err)
	require.Len(t, resolved, 1)

	exprStmt, ok := resolved[0].(ast.ExprStmt)
	require.True(t, ok)
	call, ok := exprStmt.Value.(ast.Call)
	require.True(t, ok)
	assert.Equal(t, ast.Ident("createDirectory"), call.Function)
	require.Len(t, call.Arguments, 1)

	lit, ok := call.Arguments[0].(ast.Literal)
	require.True(t, ok)
	assert.Equal(t, "tmp", lit.String)
}

func TestResolveIsIdempotent(t *testing.T) {
	program, err := parser.ParseBakery(`Create a directory at "tmp";`)
	require.NoError(t, err)

	once, err := resolver.Resolve(program, indexWithCreateDirectory())
	require.NoError(t, err)

	twice, err := resolver.Resolve(once, indexWithCreateDirectory())
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestResolveUnmatchedPatternFails(t *testing.T) {
	program, err := parser.ParseBakery(`Delete a directory at "tmp";`)
	require.NoError(t, err)

	_, err = resolver.Resolve(program, indexWithCreateDirectory())
	assert.Error(t, err)
}

func TestResolveInfixPattern(t *testing.T) {
	index := packageindex.NewIndex().WithPackage("math", packageindex.Package{
		Version: "1.0.0",
		Kind:    packageindex.KindDSL,
		Functions: map[string]packageindex.Function{
			"add": {
				ReturnType: "integer",
				Parameters: []packageindex.Parameter{
					{Name: "a", Type: "integer"},
					{Name: "b", Type: "integer"},
				},
				Pattern: &packageindex.CallPattern{Infix: []string{"plus"}},
			},
		},
	})

	program, err := parser.ParseBakery(`1 plus 2;`)
	require.NoError(t, err)

	resolved, err := resolver.Resolve(program, index)
	require.NoError(t, err)

	exprStmt := resolved[0].(ast.ExprStmt)
	call, ok := exprStmt.Value.(ast.Call)
	require.True(t, ok)
	assert.Equal(t, ast.Ident("add"), call.Function)
	assert.Len(t, call.Arguments, 2)
}
