// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package parser implements a recursive-descent, precedence-climbing parser
// for the XL language. Unlike typical error-recovering parsers, XL parsing
// is fatal on the first error: ParseError aborts compilation immediately,
// per the spec's error-handling design.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xlatticelabs/xlvm/lang/ast"
	"github.com/xlatticelabs/xlvm/lang/lexer"
	"github.com/xlatticelabs/xlvm/lang/token"
)

// ParseError carries the offending token and what was expected. Parsing
// never recovers from a ParseError.
type ParseError struct {
	Pos      token.Position
	Found    token.Type
	Expected string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: expected %s, found %s", e.Pos, e.Expected, e.Found)
}

// Parser holds state for parsing a single token stream into a Unit.
type Parser struct {
	toks []token.Token
	pos  int

	cur  token.Token
	peek token.Token
}

// New tokenizes input via the lexer and returns a Parser ready to Parse it.
func New(filename, src string) (*Parser, error) {
	l := lexer.New(filename, src)
	toks, err := l.Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	p.cur = p.at(0)
	p.peek = p.at(1)
	return p, nil
}

func (p *Parser) at(i int) token.Token {
	if p.pos+i < len(p.toks) {
		return p.toks[p.pos+i]
	}
	return token.Token{Type: token.EOF}
}

func (p *Parser) advance() {
	p.pos++
	p.cur = p.peek
	p.peek = p.at(1)
}

// expect verifies cur is of type t, advances past it, and returns a
// *ParseError otherwise.
func (p *Parser) expect(t token.Type) (token.Token, error) {
	if p.cur.Type != t {
		return token.Token{}, &ParseError{Pos: p.cur.Pos, Found: p.cur.Type, Expected: t.String()}
	}
	tok := p.cur
	p.advance()
	return tok, nil
}

func (p *Parser) curIs(t token.Type) bool  { return p.cur.Type == t }
func (p *Parser) peekIs(t token.Type) bool { return p.peek.Type == t }

// skipSemis consumes any number of optional trailing semicolons.
func (p *Parser) skipSemis() {
	for p.curIs(token.SEMICOLON) {
		p.advance()
	}
}

// Parse consumes the whole token stream, returning (imports, globals,
// functions) in source order.
func (p *Parser) Parse() (*ast.Unit, error) {
	u := &ast.Unit{}
	for !p.curIs(token.EOF) {
		switch p.cur.Type {
		case token.IMPORT:
			imp, err := p.parseImport()
			if err != nil {
				return nil, err
			}
			u.Imports = append(u.Imports, imp)
		case token.VAR:
			v, err := p.parseVarDecl()
			if err != nil {
				return nil, err
			}
			u.Globals = append(u.Globals, v)
		case token.FUNC:
			f, err := p.parseFunc()
			if err != nil {
				return nil, err
			}
			u.Funcs = append(u.Funcs, f)
		default:
			return nil, &ParseError{Pos: p.cur.Pos, Found: p.cur.Type, Expected: "import, var, or func"}
		}
	}
	return u, nil
}

func (p *Parser) parseImport() (*ast.Import, error) {
	tok := p.cur
	p.advance() // "import"
	s, err := p.expect(token.STRING)
	if err != nil {
		return nil, err
	}
	return &ast.Import{Token: tok, Path: s.Literal}, nil
}

func (p *Parser) parseVarDecl() (*ast.VarDecl, error) {
	tok := p.cur
	p.advance() // "var"
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.ASSIGN); err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSemis()
	return &ast.VarDecl{Token: tok, Name: name.Literal, Value: val}, nil
}

func (p *Parser) parseFunc() (*ast.Func, error) {
	tok := p.cur
	p.advance() // "func"
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var params []string
	if !p.curIs(token.RPAREN) {
		for {
			id, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			params = append(params, id.Literal)
			if p.curIs(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.Func{Token: tok, Name: name.Literal, Params: params, Body: body}, nil
}

// parseBlock parses "{" stmt* "}".
func (p *Parser) parseBlock() ([]ast.Stmt, error) {
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	for !p.curIs(token.RBRACE) {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	var s ast.Stmt
	var err error

	switch p.cur.Type {
	case token.VAR:
		s, err = p.parseVarDecl()
	case token.IF:
		s, err = p.parseIf()
	case token.WHILE:
		s, err = p.parseWhile()
	case token.FOR:
		s, err = p.parseFor()
	case token.RETURN:
		s, err = p.parseReturn()
	case token.IDENT:
		s, err = p.parseIdentLedStmt()
	default:
		s, err = p.parseExprStmt()
	}
	if err != nil {
		return nil, err
	}
	p.skipSemis()
	return s, nil
}

// parseIdentLedStmt disambiguates ArrayAssign / Assign / bare expression
// statements that begin with an identifier by looking one token ahead.
func (p *Parser) parseIdentLedStmt() (ast.Stmt, error) {
	tok := p.cur
	name := p.cur.Literal

	if p.peekIs(token.LBRACKET) {
		p.advance() // name
		p.advance() // "["
		idx, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RBRACKET); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.ASSIGN); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.ArrayAssign{Token: tok, Name: name, Index: idx, Value: val}, nil
	}

	if p.peekIs(token.ASSIGN) {
		p.advance() // name
		p.advance() // "="
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Assign{Token: tok, Name: name, Expr: val}, nil
	}

	return p.parseExprStmt()
}

func (p *Parser) parseExprStmt() (ast.Stmt, error) {
	tok := p.cur
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.ExprStmt{Token: tok, X: e}, nil
}

func (p *Parser) parseIf() (*ast.If, error) {
	tok := p.cur
	p.advance() // "if"
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	thenBody, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	node := &ast.If{Token: tok, Cond: cond, Then: thenBody}
	if p.curIs(token.ELSE) {
		p.advance()
		elseBody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		node.Else = elseBody
	}
	return node, nil
}

func (p *Parser) parseWhile() (*ast.While, error) {
	tok := p.cur
	p.advance() // "while"
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.While{Token: tok, Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (*ast.For, error) {
	tok := p.cur
	p.advance() // "for"
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	init, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.curIs(token.SEMICOLON) {
		p.advance()
	}
	step, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.For{Token: tok, Init: init, Cond: cond, Step: step, Body: body}, nil
}

func (p *Parser) parseReturn() (*ast.Return, error) {
	tok := p.cur
	p.advance() // "return"
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.Return{Token: tok, Expr: e}, nil
}

// ---------------------------------------------------------------------------
// Expression precedence climb — 8 levels, lowest to highest, per §4.2.
// ---------------------------------------------------------------------------

func (p *Parser) parseExpr() (ast.Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parseAnd, token.OR)
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parseEquality, token.AND)
}

func (p *Parser) parseEquality() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parseRelational, token.EQ, token.NEQ)
}

func (p *Parser) parseRelational() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parseBitwise, token.LT, token.GT, token.LTE, token.GTE)
}

func (p *Parser) parseBitwise() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parseAdditive, token.AMP, token.PIPE, token.CARET, token.LSHIFT, token.RSHIFT, token.URSHIFT)
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parseMultiplicative, token.PLUS, token.MINUS)
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	return p.parseBinaryLevel(p.parsePrimary, token.STAR, token.SLASH)
}

// parseBinaryLevel implements one left-associative precedence level: parse a
// sub-expression via next, then fold in any number of operators from ops.
func (p *Parser) parseBinaryLevel(next func() (ast.Expr, error), ops ...token.Type) (ast.Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for matchesAny(p.cur.Type, ops) {
		opTok := p.cur
		p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Token: opTok, Left: left, Op: opTok.Literal, Right: right}
	}
	return left, nil
}

func matchesAny(t token.Type, ops []token.Type) bool {
	for _, o := range ops {
		if t == o {
			return true
		}
	}
	return false
}

// parsePrimary implements grammar level 8: integer literal, string literal,
// Int(±N) sugar, identifier with optional call/index, new(expr), or a
// parenthesized expression.
func (p *Parser) parsePrimary() (ast.Expr, error) {
	tok := p.cur

	switch tok.Type {
	case token.NUMBER:
		p.advance()
		v, err := parseIntLiteral(tok.Literal)
		if err != nil {
			return nil, &ParseError{Pos: tok.Pos, Found: tok.Type, Expected: "valid integer literal"}
		}
		return &ast.Number{Token: tok, Value: v}, nil

	case token.STRING:
		p.advance()
		return &ast.StringLiteral{Token: tok, Value: tok.Literal}, nil

	case token.NEW:
		p.advance()
		if _, err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		size, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return &ast.ArrayAlloc{Token: tok, Size: size}, nil

	case token.IDENT:
		if tok.Literal == "Int" {
			return p.parseIntSugar(tok)
		}
		return p.parseIdentPrimary(tok)

	case token.LPAREN:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return e, nil
	}

	return nil, &ParseError{Pos: tok.Pos, Found: tok.Type, Expected: "expression"}
}

// parseIntSugar handles Int(±N), the explicit signed integer literal since
// the primary grammar has no unary minus.
func (p *Parser) parseIntSugar(tok token.Token) (ast.Expr, error) {
	p.advance() // "Int"
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	sign := int64(1)
	if p.curIs(token.MINUS) {
		p.advance()
		sign = -1
	}
	numTok, err := p.expect(token.NUMBER)
	if err != nil {
		return nil, err
	}
	v, err := parseIntLiteral(numTok.Literal)
	if err != nil {
		return nil, &ParseError{Pos: numTok.Pos, Found: numTok.Type, Expected: "valid integer literal"}
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.Number{Token: tok, Value: sign * v}, nil
}

// parseIdentPrimary handles an identifier used as a call, an array access,
// or a bare variable reference.
func (p *Parser) parseIdentPrimary(tok token.Token) (ast.Expr, error) {
	p.advance() // name

	if p.curIs(token.LPAREN) {
		p.advance()
		var args []ast.Expr
		if !p.curIs(token.RPAREN) {
			for {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.curIs(token.COMMA) {
					p.advance()
					continue
				}
				break
			}
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return &ast.Call{Token: tok, Name: tok.Literal, Args: args}, nil
	}

	if p.curIs(token.LBRACKET) {
		p.advance()
		idx, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RBRACKET); err != nil {
			return nil, err
		}
		return &ast.ArrayAccess{Token: tok, Name: tok.Literal, Index: idx}, nil
	}

	return &ast.Var{Token: tok, Name: tok.Literal}, nil
}

// parseIntLiteral parses a lexer NUMBER lexeme (decimal or 0x-hex) to int64.
func parseIntLiteral(lit string) (int64, error) {
	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		v, err := strconv.ParseUint(lit[2:], 16, 64)
		return int64(v), err
	}
	v, err := strconv.ParseUint(lit, 10, 64)
	return int64(v), err
}
