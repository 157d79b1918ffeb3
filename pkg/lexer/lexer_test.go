package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/brane/pkg/lexer"
)

func typesOf(t *testing.T, src string) []lexer.TokenType {
	t.Helper()
	toks, err := lexer.New(src).Tokenize()
	require.NoError(t, err)
	types := make([]lexer.TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func TestKeywordsAndPunctuation(t *testing.T) {
	types := typesOf(t, "let x := 1 + 2;")
	assert.Equal(t, []lexer.TokenType{
		lexer.TokenLet, lexer.TokenIdent, lexer.TokenAssign, lexer.TokenInteger,
		lexer.TokenPlus, lexer.TokenInteger, lexer.TokenSemicolon, lexer.TokenEOF,
	}, types)
}

func TestRealAndSemVerLiterals(t *testing.T) {
	toks, err := lexer.New("1.5 import numpy[1.2.3];").Tokenize()
	require.NoError(t, err)
	assert.Equal(t, lexer.TokenReal, toks[0].Type)
	assert.Equal(t, "1.5", toks[0].Literal)

	var semver lexer.Token
	for _, tok := range toks {
		if tok.Type == lexer.TokenSemVer {
			semver = tok
		}
	}
	assert.Equal(t, "1.2.3", semver.Literal)
}

func TestLineComment(t *testing.T) {
	types := typesOf(t, "let x := 1; // trailing comment\nlet y := 2;")
	require.Len(t, types, 11)
	assert.Equal(t, lexer.TokenLet, types[5])
}

func TestStringLiteral(t *testing.T) {
	toks, err := lexer.New(`"hello world"`).Tokenize()
	require.NoError(t, err)
	assert.Equal(t, lexer.TokenString, toks[0].Type)
	assert.Equal(t, "hello world", toks[0].Literal)
}

func TestSingleQuotedStringLiteral(t *testing.T) {
	toks, err := lexer.New(`'hello world'`).Tokenize()
	require.NoError(t, err)
	assert.Equal(t, lexer.TokenString, toks[0].Type)
	assert.Equal(t, "hello world", toks[0].Literal)
}

func TestBooleanKeywordsAndComparisonOperators(t *testing.T) {
	types := typesOf(t, "true != false & 1 <= 2 >= 3 == 4")
	assert.Contains(t, types, lexer.TokenBoolean)
	assert.Contains(t, types, lexer.TokenNotEqual)
	assert.Contains(t, types, lexer.TokenLessEq)
	assert.Contains(t, types, lexer.TokenGreaterEq)
	assert.Contains(t, types, lexer.TokenEqual)
}

func TestIllegalCharacterReportsPosition(t *testing.T) {
	_, err := lexer.New("let x := @;").Tokenize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1, column 10")
}
