// Package parser implements both BraneScript and Bakery front ends.
//
// Both dialects share a single Pratt (precedence-climbing) expression
// grammar; they differ only in which statement forms they recognize and
// which atoms their expression grammar accepts. BraneScript accepts the
// full atom set (literals, identifiers, calls, instance creation, array
// literals); Bakery restricts atoms to literals and identifiers, and a run
// of adjacent atoms with no operator between them collapses into an
// ast.Pattern node for the resolver to rewrite later.
//
// Parser Architecture:
//
// Recursive descent over a two-token lookahead window (curTok/peekTok),
// matching the scanner's single-pass, char-at-a-time design: each grammar
// production corresponds to one parsing method, and the parser decides
// which production applies by inspecting curTok (and, where ambiguous,
// peekTok) before committing to a branch.
package parser

import (
	"fmt"
	"strconv"

	"github.com/kristofer/brane/pkg/ast"
	"github.com/kristofer/brane/pkg/lexer"
)

// Parser holds the state for a single parse of one dialect.
type Parser struct {
	l       *lexer.Lexer
	curTok  lexer.Token
	peekTok lexer.Token
	errors  []string
	bakery  bool
}

func newParser(src string, bakery bool) *Parser {
	p := &Parser{l: lexer.New(src), bakery: bakery}
	p.nextToken()
	p.nextToken()
	return p
}

// ParseBraneScript parses BraneScript source into a Program.
func ParseBraneScript(src string) (ast.Program, error) {
	return newParser(src, false).parseProgram()
}

// ParseBakery parses Bakery source into a Program. The returned tree still
// contains unresolved ast.Pattern nodes; callers must run it through
// pkg/resolver before compiling.
func ParseBakery(src string) (ast.Program, error) {
	return newParser(src, true).parseProgram()
}

func (p *Parser) nextToken() {
	p.curTok = p.peekTok
	p.peekTok = p.l.NextToken()
}

func (p *Parser) addErrorf(format string, args ...interface{}) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *Parser) expect(tt lexer.TokenType) bool {
	if p.curTok.Type != tt {
		p.addErrorf("line %d: expected %s, got %s %q", p.curTok.Line, tt, p.curTok.Type, p.curTok.Literal)
		return false
	}
	p.nextToken()
	return true
}

func (p *Parser) parseProgram() (ast.Program, error) {
	var program ast.Program
	for p.curTok.Type != lexer.TokenEOF {
		stmt := p.parseStmt()
		if stmt != nil {
			program = append(program, stmt)
		} else {
			// Parsing this statement failed; skip to the next semicolon or
			// brace boundary so one bad statement doesn't cascade.
			p.recover()
		}
	}
	if len(p.errors) > 0 {
		return program, fmt.Errorf("parse errors: %v", p.errors)
	}
	return program, nil
}

func (p *Parser) recover() {
	for p.curTok.Type != lexer.TokenEOF && p.curTok.Type != lexer.TokenSemicolon {
		p.nextToken()
	}
	if p.curTok.Type == lexer.TokenSemicolon {
		p.nextToken()
	}
}

func (p *Parser) parseStmt() ast.Stmt {
	if p.bakery {
		return p.parseBakeryStmt()
	}
	return p.parseBraneScriptStmt()
}

func (p *Parser) parseBraneScriptStmt() ast.Stmt {
	switch p.curTok.Type {
	case lexer.TokenFor:
		return p.parseFor()
	case lexer.TokenOn:
		return p.parseOn()
	case lexer.TokenLeftBrace:
		return p.parseBlock()
	case lexer.TokenParallel:
		return p.parseParallel(nil)
	case lexer.TokenClass:
		return p.parseDeclareClass()
	case lexer.TokenFunc:
		return p.parseDeclareFunc()
	case lexer.TokenIf:
		return p.parseIf()
	case lexer.TokenImport:
		return p.parseImport()
	case lexer.TokenLet:
		return p.parseLetOrParallelLet()
	case lexer.TokenReturn:
		return p.parseReturn()
	case lexer.TokenWhile:
		return p.parseWhile()
	case lexer.TokenIdent:
		if p.peekTok.Type == lexer.TokenAssign {
			return p.parseAssign()
		}
		return p.parseExprStmt()
	default:
		return p.parseExprStmt()
	}
}

func (p *Parser) parseBakeryStmt() ast.Stmt {
	switch p.curTok.Type {
	case lexer.TokenImport:
		return p.parseImport()
	case lexer.TokenReturn:
		return p.parseReturn()
	case lexer.TokenIdent:
		if p.peekTok.Type == lexer.TokenAssign {
			return p.parseAssign()
		}
		return p.parseExprStmt()
	default:
		return p.parseExprStmt()
	}
}

func (p *Parser) parseImport() ast.Stmt {
	p.nextToken() // consume 'import'
	pkg := ast.Ident(p.curTok.Literal)
	if !p.expect(lexer.TokenIdent) {
		return nil
	}

	version := ""
	if p.curTok.Type == lexer.TokenLeftBracket {
		p.nextToken()
		version = p.curTok.Literal
		if !p.expect(lexer.TokenSemVer) {
			return nil
		}
		if !p.expect(lexer.TokenRightBracket) {
			return nil
		}
	}
	if !p.expect(lexer.TokenSemicolon) {
		return nil
	}
	return ast.Import{Package: pkg, Version: version}
}

// parseLetOrParallelLet parses the common `let IDENT := ...` prefix once,
// then branches on what follows ':=': a bare `parallel [...]` yields an
// ast.Parallel carrying its own LetAssign field; anything else is a plain
// ast.LetAssign. Branching after consuming the shared prefix (rather than
// speculatively peeking ahead and backtracking) avoids having to rewind the
// underlying lexer, which — unlike the Parser's token fields — can't be
// restored by copying the Parser struct.
func (p *Parser) parseLetOrParallelLet() ast.Stmt {
	p.nextToken() // consume 'let'
	ident := ast.Ident(p.curTok.Literal)
	if !p.expect(lexer.TokenIdent) {
		return nil
	}
	if !p.expect(lexer.TokenAssign) {
		return nil
	}
	if p.curTok.Type == lexer.TokenParallel {
		return p.parseParallel(&ident)
	}

	value := p.parseExpr(0)
	if !p.expect(lexer.TokenSemicolon) {
		return nil
	}
	return ast.LetAssign{Ident: ident, Value: value}
}

func (p *Parser) parseLet() ast.Stmt {
	p.nextToken() // consume 'let'
	ident := ast.Ident(p.curTok.Literal)
	if !p.expect(lexer.TokenIdent) {
		return nil
	}
	if !p.expect(lexer.TokenAssign) {
		return nil
	}
	value := p.parseExpr(0)
	if !p.expect(lexer.TokenSemicolon) {
		return nil
	}
	return ast.LetAssign{Ident: ident, Value: value}
}

func (p *Parser) parseAssign() ast.Stmt {
	ident := ast.Ident(p.curTok.Literal)
	p.nextToken() // ident
	p.nextToken() // :=
	value := p.parseExpr(0)
	if !p.expect(lexer.TokenSemicolon) {
		return nil
	}
	return ast.Assign{Ident: ident, Value: value}
}

func (p *Parser) parseReturn() ast.Stmt {
	p.nextToken() // consume 'return'
	if p.curTok.Type == lexer.TokenSemicolon {
		p.nextToken()
		return ast.Return{}
	}
	value := p.parseExpr(0)
	if !p.expect(lexer.TokenSemicolon) {
		return nil
	}
	return ast.Return{Value: value}
}

func (p *Parser) parseExprStmt() ast.Stmt {
	value := p.parseExpr(0)
	if value == nil {
		return nil
	}
	if !p.expect(lexer.TokenSemicolon) {
		return nil
	}
	return ast.ExprStmt{Value: value}
}

func (p *Parser) parseBlock() ast.Block {
	if !p.expect(lexer.TokenLeftBrace) {
		return nil
	}
	var block ast.Block
	for p.curTok.Type != lexer.TokenRightBrace && p.curTok.Type != lexer.TokenEOF {
		stmt := p.parseStmt()
		if stmt == nil {
			p.recover()
			continue
		}
		block = append(block, stmt)
	}
	p.expect(lexer.TokenRightBrace)
	return block
}

// parseBlockStmt wraps parseBlock for contexts (like parseStmt dispatch)
// that need an ast.Stmt rather than a bare ast.Block.
func (p *Parser) parseBlockStmt() ast.Stmt {
	return p.parseBlock()
}

func (p *Parser) parseIf() ast.Stmt {
	p.nextToken() // consume 'if'
	if !p.expect(lexer.TokenLeftParen) {
		return nil
	}
	cond := p.parseExpr(0)
	if !p.expect(lexer.TokenRightParen) {
		return nil
	}
	consequent := p.parseBlock()

	var alternative ast.Block
	if p.curTok.Type == lexer.TokenElse {
		p.nextToken()
		alternative = p.parseBlock()
	}
	return ast.If{Condition: cond, Consequent: consequent, Alternative: alternative}
}

func (p *Parser) parseWhile() ast.Stmt {
	p.nextToken() // consume 'while'
	if !p.expect(lexer.TokenLeftParen) {
		return nil
	}
	cond := p.parseExpr(0)
	if !p.expect(lexer.TokenRightParen) {
		return nil
	}
	consequent := p.parseBlock()
	return ast.While{Condition: cond, Consequent: consequent}
}

func (p *Parser) parseFor() ast.Stmt {
	p.nextToken() // consume 'for'
	if !p.expect(lexer.TokenLeftParen) {
		return nil
	}
	init := p.parseStmtNoSemiConsumeOwn()
	cond := p.parseExpr(0)
	if !p.expect(lexer.TokenSemicolon) {
		return nil
	}
	incr := p.parseAssignNoSemi()
	if !p.expect(lexer.TokenRightParen) {
		return nil
	}
	consequent := p.parseBlock()
	return ast.For{Initializer: init, Condition: cond, Increment: incr, Consequent: consequent}
}

// parseStmtNoSemiConsumeOwn parses a let/assign initializer clause, which
// owns its trailing semicolon the way a normal statement would.
func (p *Parser) parseStmtNoSemiConsumeOwn() ast.Stmt {
	if p.curTok.Type == lexer.TokenLet {
		return p.parseLet()
	}
	return p.parseAssign()
}

// parseAssignNoSemi parses the for-loop increment clause, which has no
// trailing semicolon of its own (the loop's closing paren follows).
func (p *Parser) parseAssignNoSemi() ast.Stmt {
	ident := ast.Ident(p.curTok.Literal)
	p.nextToken() // ident
	p.nextToken() // :=
	value := p.parseExpr(0)
	return ast.Assign{Ident: ident, Value: value}
}

func (p *Parser) parseOn() ast.Stmt {
	p.nextToken() // consume 'on'
	location := p.parseExpr(0)
	block := p.parseBlock()
	return ast.On{Location: location, Block: block}
}

func (p *Parser) parseParallel(letAssign *ast.Ident) ast.Stmt {
	p.nextToken() // consume 'parallel'
	if !p.expect(lexer.TokenLeftBracket) {
		return nil
	}

	var blocks []ast.Stmt
	for p.curTok.Type != lexer.TokenRightBracket && p.curTok.Type != lexer.TokenEOF {
		if p.curTok.Type == lexer.TokenOn {
			blocks = append(blocks, p.parseOn())
		} else {
			blocks = append(blocks, p.parseBlockStmt())
		}
		if p.curTok.Type == lexer.TokenComma {
			p.nextToken()
		}
	}
	if !p.expect(lexer.TokenRightBracket) {
		return nil
	}
	if !p.expect(lexer.TokenSemicolon) {
		return nil
	}
	return ast.Parallel{LetAssign: letAssign, Blocks: blocks}
}

func (p *Parser) parseDeclareClass() ast.Stmt {
	p.nextToken() // consume 'class'
	ident := ast.Ident(p.curTok.Literal)
	if !p.expect(lexer.TokenIdent) {
		return nil
	}
	if !p.expect(lexer.TokenLeftBrace) {
		return nil
	}

	properties := map[ast.Ident]ast.Ident{}
	methods := map[ast.Ident]ast.DeclareFunc{}

	for p.curTok.Type != lexer.TokenRightBrace && p.curTok.Type != lexer.TokenEOF {
		if p.curTok.Type == lexer.TokenFunc {
			fn := p.parseDeclareFunc()
			if decl, ok := fn.(ast.DeclareFunc); ok {
				methods[decl.Ident] = decl
			}
			continue
		}

		name := ast.Ident(p.curTok.Literal)
		if !p.expect(lexer.TokenIdent) {
			return nil
		}
		if !p.expect(lexer.TokenColon) {
			return nil
		}
		class := ast.Ident(p.curTok.Literal)
		if !p.expect(lexer.TokenIdent) {
			return nil
		}
		if !p.expect(lexer.TokenSemicolon) {
			return nil
		}
		properties[name] = class
	}
	p.expect(lexer.TokenRightBrace)

	return ast.DeclareClass{Ident: ident, Properties: properties, Methods: methods}
}

func (p *Parser) parseDeclareFunc() ast.Stmt {
	p.nextToken() // consume 'func'
	ident := ast.Ident(p.curTok.Literal)
	if !p.expect(lexer.TokenIdent) {
		return nil
	}
	if !p.expect(lexer.TokenLeftParen) {
		return nil
	}

	var params []ast.Ident
	for p.curTok.Type != lexer.TokenRightParen && p.curTok.Type != lexer.TokenEOF {
		params = append(params, ast.Ident(p.curTok.Literal))
		if !p.expect(lexer.TokenIdent) {
			return nil
		}
		if p.curTok.Type == lexer.TokenComma {
			p.nextToken()
		}
	}
	if !p.expect(lexer.TokenRightParen) {
		return nil
	}

	body := p.parseBlock()
	return ast.DeclareFunc{Ident: ident, Params: params, Body: body}
}

// --- Expressions ---

// binding powers: higher binds tighter. Each entry is (left, right); right
// is what the RHS recursion uses, left is compared against the caller's
// min_bp to decide whether this operator continues the current expression.
var binPower = map[ast.BinOp][2]int{
	ast.BinOr:  {10, 11},
	ast.BinAnd: {20, 21},
	ast.BinEq:  {30, 31},
	ast.BinNe:  {30, 31},
	ast.BinLt:  {40, 41},
	ast.BinLe:  {40, 41},
	ast.BinGt:  {40, 41},
	ast.BinGe:  {40, 41},
	ast.BinAdd: {50, 51},
	ast.BinSub: {50, 51},
	ast.BinMul: {60, 61},
	ast.BinDiv: {60, 61},
	ast.BinDot: {80, 81},
}

const unaryBindingPower = 70
const indexBindingPower = 90

func (p *Parser) peekBinOp() (ast.BinOp, bool) {
	switch p.curTok.Type {
	case lexer.TokenOr:
		return ast.BinOr, true
	case lexer.TokenAnd:
		return ast.BinAnd, true
	case lexer.TokenEqual:
		return ast.BinEq, true
	case lexer.TokenNotEqual:
		return ast.BinNe, true
	case lexer.TokenLess:
		return ast.BinLt, true
	case lexer.TokenLessEq:
		return ast.BinLe, true
	case lexer.TokenGreater:
		return ast.BinGt, true
	case lexer.TokenGreaterEq:
		return ast.BinGe, true
	case lexer.TokenPlus:
		return ast.BinAdd, true
	case lexer.TokenMinus:
		return ast.BinSub, true
	case lexer.TokenStar:
		return ast.BinMul, true
	case lexer.TokenSlash:
		return ast.BinDiv, true
	case lexer.TokenDot:
		return ast.BinDot, true
	default:
		return 0, false
	}
}

// parseExpr implements precedence-climbing shared by both dialects.
// Bakery additionally folds any run of adjacent atoms with no intervening
// operator into an ast.Pattern.
func (p *Parser) parseExpr(minBP int) ast.Expr {
	lhs := p.parsePrefix()
	if lhs == nil {
		return nil
	}

	for {
		if p.bakery {
			if atom, ok := p.tryBakeryAtom(); ok {
				if pat, isPat := lhs.(ast.Pattern); isPat {
					pat.Terms = append(pat.Terms, atom)
					lhs = pat
				} else {
					lhs = ast.Pattern{Terms: []ast.Expr{lhs, atom}}
				}
				continue
			}
		}

		if p.curTok.Type == lexer.TokenLeftBracket {
			if indexBindingPower < minBP {
				break
			}
			p.nextToken()
			idx := p.parseExpr(0)
			if !p.expect(lexer.TokenRightBracket) {
				return nil
			}
			lhs = ast.Index{Array: lhs, Index: idx}
			continue
		}

		op, ok := p.peekBinOp()
		if !ok {
			break
		}
		bp := binPower[op]
		if bp[0] < minBP {
			break
		}
		p.nextToken()
		rhs := p.parseExpr(bp[1])
		lhs = ast.Binary{Operator: op, LHS: lhs, RHS: rhs}
	}

	return lhs
}

// tryBakeryAtom parses a bare literal/identifier atom for pattern
// accumulation; if the current token can't start one it consumes nothing
// and reports false (rather than treating that as a hard error).
func (p *Parser) tryBakeryAtom() (ast.Expr, bool) {
	switch p.curTok.Type {
	case lexer.TokenIdent, lexer.TokenInteger, lexer.TokenReal, lexer.TokenString, lexer.TokenBoolean:
		return p.parseBakeryAtom(), true
	default:
		return nil, false
	}
}

func (p *Parser) parseBakeryAtom() ast.Expr {
	switch p.curTok.Type {
	case lexer.TokenIdent:
		ident := ast.IdentExpr{Ident: ast.Ident(p.curTok.Literal)}
		p.nextToken()
		return ident
	default:
		return p.parseLiteral()
	}
}

func (p *Parser) parsePrefix() ast.Expr {
	switch p.curTok.Type {
	case lexer.TokenMinus:
		p.nextToken()
		operand := p.parseExpr(unaryBindingPower)
		return ast.Unary{Operator: ast.UnNeg, Operand: operand}
	case lexer.TokenNot:
		p.nextToken()
		operand := p.parseExpr(unaryBindingPower)
		return ast.Unary{Operator: ast.UnNot, Operand: operand}
	case lexer.TokenLeftParen:
		p.nextToken()
		inner := p.parseExpr(0)
		p.expect(lexer.TokenRightParen)
		return inner
	case lexer.TokenLeftBracket:
		if p.bakery {
			p.addErrorf("line %d: array literals are not available in Bakery", p.curTok.Line)
			return nil
		}
		return p.parseArrayLiteral()
	default:
		return p.parseAtom()
	}
}

func (p *Parser) parseArrayLiteral() ast.Expr {
	p.nextToken() // consume '['
	var elements ast.Array
	for p.curTok.Type != lexer.TokenRightBracket && p.curTok.Type != lexer.TokenEOF {
		elements = append(elements, p.parseExpr(0))
		if p.curTok.Type == lexer.TokenComma {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRightBracket)
	return elements
}

func (p *Parser) parseAtom() ast.Expr {
	if p.bakery {
		switch p.curTok.Type {
		case lexer.TokenIdent, lexer.TokenInteger, lexer.TokenReal, lexer.TokenString, lexer.TokenBoolean:
			return p.parseBakeryAtom()
		default:
			p.addErrorf("line %d: unexpected token %s %q", p.curTok.Line, p.curTok.Type, p.curTok.Literal)
			return nil
		}
	}

	switch p.curTok.Type {
	case lexer.TokenNew:
		return p.parseInstance()
	case lexer.TokenIdent:
		return p.parseIdentOrCall()
	case lexer.TokenInteger, lexer.TokenReal, lexer.TokenString, lexer.TokenBoolean, lexer.TokenUnit:
		return p.parseLiteral()
	default:
		p.addErrorf("line %d: unexpected token %s %q", p.curTok.Line, p.curTok.Type, p.curTok.Literal)
		return nil
	}
}

func (p *Parser) parseIdentOrCall() ast.Expr {
	ident := ast.Ident(p.curTok.Literal)
	p.nextToken()

	if p.curTok.Type != lexer.TokenLeftParen {
		return ast.IdentExpr{Ident: ident}
	}

	p.nextToken() // consume '('
	var args []ast.Expr
	for p.curTok.Type != lexer.TokenRightParen && p.curTok.Type != lexer.TokenEOF {
		args = append(args, p.parseExpr(0))
		if p.curTok.Type == lexer.TokenComma {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRightParen)
	return ast.Call{Function: ident, Arguments: args}
}

func (p *Parser) parseInstance() ast.Expr {
	p.nextToken() // consume 'new'
	class := ast.Ident(p.curTok.Literal)
	if !p.expect(lexer.TokenIdent) {
		return nil
	}
	if !p.expect(lexer.TokenLeftBrace) {
		return nil
	}

	var properties []ast.Assign
	for p.curTok.Type != lexer.TokenRightBrace && p.curTok.Type != lexer.TokenEOF {
		name := ast.Ident(p.curTok.Literal)
		if !p.expect(lexer.TokenIdent) {
			return nil
		}
		if !p.expect(lexer.TokenColon) {
			return nil
		}
		value := p.parseExpr(0)
		properties = append(properties, ast.Assign{Ident: name, Value: value})
		if p.curTok.Type == lexer.TokenComma {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRightBrace)
	return ast.Instance{Class: class, Properties: properties}
}

func (p *Parser) parseLiteral() ast.Expr {
	tok := p.curTok
	defer p.nextToken()

	switch tok.Type {
	case lexer.TokenInteger:
		v, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.addErrorf("line %d: invalid integer literal %q", tok.Line, tok.Literal)
		}
		return ast.Literal{Kind: ast.LitInteger, Integer: v}
	case lexer.TokenReal:
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.addErrorf("line %d: invalid real literal %q", tok.Line, tok.Literal)
		}
		return ast.Literal{Kind: ast.LitReal, Real: v}
	case lexer.TokenString:
		return ast.Literal{Kind: ast.LitString, String: tok.Literal}
	case lexer.TokenBoolean:
		return ast.Literal{Kind: ast.LitBoolean, Boolean: tok.Literal == "true"}
	case lexer.TokenUnit:
		return ast.Literal{Kind: ast.LitUnit}
	default:
		p.addErrorf("line %d: expected literal, got %s", tok.Line, tok.Type)
		return nil
	}
}
