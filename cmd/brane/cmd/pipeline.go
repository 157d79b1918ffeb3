package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/kristofer/brane/pkg/ast"
	"github.com/kristofer/brane/pkg/compiler"
	"github.com/kristofer/brane/pkg/packageindex"
	"github.com/kristofer/brane/pkg/parser"
	"github.com/kristofer/brane/pkg/resolver"
)

// loadIndex reads the package index at path, or returns an empty index if
// path is blank: a source file with no import statements and no Bakery
// patterns to resolve needs nothing from it, so the flag is optional.
func loadIndex(path string) (*packageindex.Index, error) {
	if path == "" {
		return packageindex.NewIndex(), nil
	}
	return packageindex.LoadIndex(path)
}

// parseSource dispatches to the BraneScript or Bakery front end by file
// extension: ".bakery" sources are sentence-oriented and need the
// resolver to rewrite their ast.Pattern nodes; everything else is parsed
// as BraneScript's C-like grammar.
func parseSource(filename, src string) (ast.Program, error) {
	if filepath.Ext(filename) == ".bakery" {
		return parser.ParseBakery(src)
	}
	return parser.ParseBraneScript(src)
}

// compileProgram runs the full parse -> resolve -> compile pipeline for
// filename's contents against idx.
func compileProgram(filename, src string, idx *packageindex.Index) (*compiler.Program, error) {
	program, err := parseSource(filename, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	resolved, err := resolver.Resolve(program, idx)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	prog, err := compiler.Compile(resolved)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return prog, nil
}
