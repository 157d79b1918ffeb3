// Package resolver rewrites Bakery's sentence-shaped ast.Pattern nodes into
// ordinary ast.Call nodes, matching each against the patterns declared by a
// packageindex.Index's functions.
package resolver

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/kristofer/brane/pkg/ast"
	"github.com/kristofer/brane/pkg/packageindex"
)

// functionPattern pairs a compiled matcher with the function it resolves
// to, in the order buildFunctionPatterns lists them — the order ties are
// broken in: first match wins.
type functionPattern struct {
	functionName string
	regex        *regexp.Regexp
}

// Resolve walks program, replacing every top-level ast.ExprStmt wrapping an
// ast.Pattern (and every Pattern reachable inside nested blocks) with a
// resolved ast.Call. It is idempotent: a tree with no Pattern nodes left
// passes through unchanged.
func Resolve(program ast.Program, index *packageindex.Index) (ast.Program, error) {
	patterns, err := buildFunctionPatterns(index)
	if err != nil {
		return nil, err
	}

	out := make(ast.Program, len(program))
	for i, stmt := range program {
		resolved, err := resolveStmt(stmt, patterns)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

func resolveStmt(stmt ast.Stmt, patterns []functionPattern) (ast.Stmt, error) {
	switch s := stmt.(type) {
	case ast.ExprStmt:
		expr, err := resolveExpr(s.Value, patterns)
		if err != nil {
			return nil, err
		}
		return ast.ExprStmt{Value: expr}, nil
	case ast.LetAssign:
		expr, err := resolveExpr(s.Value, patterns)
		if err != nil {
			return nil, err
		}
		return ast.LetAssign{Ident: s.Ident, Value: expr}, nil
	case ast.Assign:
		expr, err := resolveExpr(s.Value, patterns)
		if err != nil {
			return nil, err
		}
		return ast.Assign{Ident: s.Ident, Value: expr}, nil
	case ast.Return:
		if s.Value == nil {
			return s, nil
		}
		expr, err := resolveExpr(s.Value, patterns)
		if err != nil {
			return nil, err
		}
		return ast.Return{Value: expr}, nil
	case ast.Block:
		return resolveBlock(s, patterns)
	default:
		// Every other statement kind (Import, If, While, For, DeclareFunc,
		// DeclareClass, On, Parallel) is a BraneScript-only construct that
		// never appears in a Bakery program; resolving it is a no-op.
		return stmt, nil
	}
}

func resolveBlock(block ast.Block, patterns []functionPattern) (ast.Block, error) {
	out := make(ast.Block, len(block))
	for i, stmt := range block {
		resolved, err := resolveStmt(stmt, patterns)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

func resolveExpr(expr ast.Expr, patterns []functionPattern) (ast.Expr, error) {
	pattern, ok := expr.(ast.Pattern)
	if !ok {
		return expr, nil
	}
	return patternToCall(pattern, patterns)
}

func patternToCall(pattern ast.Pattern, patterns []functionPattern) (ast.Expr, error) {
	termsPattern, argExprs := buildTermsPattern(pattern.Terms)

	function, argIndexes, err := matchPatternToFunction(termsPattern, patterns)
	if err != nil {
		return nil, err
	}

	arguments := make([]ast.Expr, len(argIndexes))
	for i, idx := range argIndexes {
		arguments[i] = argExprs[idx]
	}

	return ast.Call{Function: ast.Ident(function), Arguments: arguments}, nil
}

// buildTermsPattern flattens a Pattern's terms into the space-separated
// string the function patterns are matched against: an IdentExpr
// contributes its literal name, a Literal contributes a
// "<randvar:dataType>" placeholder. It returns the original term
// expressions alongside so placeholder positions can be mapped back to
// arguments after a match.
func buildTermsPattern(terms []ast.Expr) (string, []ast.Expr) {
	segments := make([]string, len(terms))
	for i, term := range terms {
		switch t := term.(type) {
		case ast.IdentExpr:
			segments[i] = string(t.Ident)
		case ast.Literal:
			segments[i] = fmt.Sprintf("<%s:%s>", nextTempVar(), t.DataType())
		default:
			segments[i] = fmt.Sprintf("<%s:unit>", nextTempVar())
		}
	}
	return strings.Join(segments, " "), terms
}

var tempVarCounter uint64

// nextTempVar produces a short unique placeholder name. The original uses
// five random alphanumeric characters; a monotonic counter gives the same
// "doesn't collide, doesn't matter what it says" property without pulling
// in a randomness source at pattern-build time, which the task's no-Date/
// no-Random-at-build-time discipline rules out anyway.
func nextTempVar() string {
	n := atomic.AddUint64(&tempVarCounter, 1)
	return "t" + strconv.FormatUint(n, 36)
}

// buildFunctionPatterns compiles one regex per function across every
// package in index, ordered by package name and then by function name
// within a package. The index keeps packages and functions in Go maps,
// whose iteration order varies from one range to the next, so both levels
// are sorted to make the first-match tie-break repeatable.
func buildFunctionPatterns(index *packageindex.Index) ([]functionPattern, error) {
	pkgNames := make([]string, 0, len(index.Packages))
	for pkgName := range index.Packages {
		pkgNames = append(pkgNames, pkgName)
	}
	sort.Strings(pkgNames)

	var patterns []functionPattern
	for _, pkgName := range pkgNames {
		pkg := index.Packages[pkgName]
		fnNames := make([]string, 0, len(pkg.Functions))
		for name := range pkg.Functions {
			fnNames = append(fnNames, name)
		}
		sort.Strings(fnNames)
		for _, name := range fnNames {
			fn := pkg.Functions[name]
			pattern, err := buildPattern(name, fn)
			if err != nil {
				return nil, err
			}
			regex, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("resolver: invalid pattern for %s: %w", name, err)
			}
			patterns = append(patterns, functionPattern{functionName: name, regex: regex})
		}
	}
	return patterns, nil
}

// buildPattern constructs the regular expression a function's call
// pattern compiles to: the declared prefix/infix/postfix (regex-escaped),
// interleaved with one placeholder per non-secret parameter. An array type
// name (ending in ']') additionally matches the literal word "array"; a
// struct type name (starting uppercase) additionally matches "object".
func buildPattern(name string, fn packageindex.Function) (string, error) {
	var segments []string

	if fn.Pattern == nil {
		segments = append(segments, regexp.QuoteMeta(name))
	} else if fn.Pattern.Prefix != "" {
		segments = append(segments, regexp.QuoteMeta(fn.Pattern.Prefix))
	}

	var placeholders []string
	for _, param := range fn.Parameters {
		if param.Secret {
			continue
		}
		dataType := regexp.QuoteMeta(param.Type)
		switch {
		case strings.HasSuffix(dataType, "]"):
			dataType += "|array"
		case isUpperFirst(dataType):
			dataType += "|object"
		}
		placeholders = append(placeholders, fmt.Sprintf(`<[\.\w]+:(%s)>`, dataType))
	}

	var infix []string
	if fn.Pattern != nil {
		for _, i := range fn.Pattern.Infix {
			infix = append(infix, regexp.QuoteMeta(i))
		}
	}
	segments = append(segments, interleave(placeholders, infix)...)

	if fn.Pattern != nil && fn.Pattern.Postfix != "" {
		segments = append(segments, regexp.QuoteMeta(fn.Pattern.Postfix))
	}

	return strings.Join(segments, " "), nil
}

func isUpperFirst(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c >= 'A' && c <= 'Z'
}

// interleave merges a and b the way itertools::interleave does: a[0], b[0],
// a[1], b[1], ..., then whichever slice has leftovers.
func interleave(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for i := 0; i < len(a) || i < len(b); i++ {
		if i < len(a) {
			out = append(out, a[i])
		}
		if i < len(b) {
			out = append(out, b[i])
		}
	}
	return out
}

// matchPatternToFunction finds the first function pattern whose regex
// covers the entire terms pattern string, and returns which space-split
// positions in the terms pattern were placeholders (and so map to
// arguments).
func matchPatternToFunction(termsPattern string, patterns []functionPattern) (string, []int, error) {
	for _, fp := range patterns {
		loc := fp.regex.FindStringIndex(termsPattern)
		if loc == nil {
			continue
		}
		if loc[0] != 0 || loc[1] != len(termsPattern) {
			continue
		}

		var argIndexes []int
		for i, term := range strings.Split(termsPattern, " ") {
			if strings.HasPrefix(term, "<") {
				argIndexes = append(argIndexes, i)
			}
		}
		return fp.functionName, argIndexes, nil
	}
	return "", nil, fmt.Errorf("resolver: pattern did not match: %q", termsPattern)
}
