// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package lexer_test

import (
	"testing"

	"github.com/xlatticelabs/xlvm/lang/lexer"
	"github.com/xlatticelabs/xlvm/lang/token"
)

// tokenCase is a single expected token in a table-driven test.
type tokenCase struct {
	typ     token.Type
	literal string
}

// runTokenize lexes input and checks that it produces exactly the expected
// sequence (plus a final EOF).
func runTokenize(t *testing.T, name, input string, want []tokenCase) {
	t.Helper()
	t.Run(name, func(t *testing.T) {
		t.Helper()
		l := lexer.New("test.xl", input)
		toks, err := l.Tokenize()
		if err != nil {
			t.Fatalf("Tokenize failed: %v", err)
		}

		if len(toks) == 0 {
			t.Fatal("Tokenize returned empty slice")
		}
		last := toks[len(toks)-1]
		if last.Type != token.EOF {
			t.Errorf("last token is %s, want EOF", last.Type)
		}
		body := toks[:len(toks)-1]

		if len(body) != len(want) {
			t.Errorf("got %d tokens (excl. EOF), want %d", len(body), len(want))
			for i, tok := range body {
				t.Logf("  [%d] %s %q", i, tok.Type, tok.Literal)
			}
			return
		}
		for i, w := range want {
			got := body[i]
			if got.Type != w.typ {
				t.Errorf("token[%d]: type = %s, want %s (literal %q)", i, got.Type, w.typ, got.Literal)
			}
			if got.Literal != w.literal {
				t.Errorf("token[%d]: literal = %q, want %q", i, got.Literal, w.literal)
			}
		}
	})
}

func TestSingleCharTokens(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantTyp token.Type
		wantLit string
	}{
		{"plus", "+", token.PLUS, "+"},
		{"minus", "-", token.MINUS, "-"},
		{"star", "*", token.STAR, "*"},
		{"slash", "/", token.SLASH, "/"},
		{"amp", "&", token.AMP, "&"},
		{"pipe", "|", token.PIPE, "|"},
		{"caret", "^", token.CARET, "^"},
		{"lt", "<", token.LT, "<"},
		{"gt", ">", token.GT, ">"},
		{"assign", "=", token.ASSIGN, "="},
		{"lparen", "(", token.LPAREN, "("},
		{"rparen", ")", token.RPAREN, ")"},
		{"lbracket", "[", token.LBRACKET, "["},
		{"rbracket", "]", token.RBRACKET, "]"},
		{"lbrace", "{", token.LBRACE, "{"},
		{"rbrace", "}", token.RBRACE, "}"},
		{"comma", ",", token.COMMA, ","},
		{"semicolon", ";", token.SEMICOLON, ";"},
	}
	for _, c := range cases {
		runTokenize(t, c.name, c.input, []tokenCase{{c.wantTyp, c.wantLit}})
	}
}

func TestMultiCharOperators(t *testing.T) {
	runTokenize(t, "EQ", "==", []tokenCase{{token.EQ, "=="}})
	runTokenize(t, "NEQ", "!=", []tokenCase{{token.NEQ, "!="}})
	runTokenize(t, "LTE", "<=", []tokenCase{{token.LTE, "<="}})
	runTokenize(t, "GTE", ">=", []tokenCase{{token.GTE, ">="}})
	runTokenize(t, "AND", "&&", []tokenCase{{token.AND, "&&"}})
	runTokenize(t, "OR", "||", []tokenCase{{token.OR, "||"}})
	runTokenize(t, "LSHIFT", "<<", []tokenCase{{token.LSHIFT, "<<"}})
	runTokenize(t, "RSHIFT", ">>", []tokenCase{{token.RSHIFT, ">>"}})
	runTokenize(t, "URSHIFT", ">>>", []tokenCase{{token.URSHIFT, ">>>"}})
}

func TestNumberLiterals(t *testing.T) {
	runTokenize(t, "zero", "0", []tokenCase{{token.NUMBER, "0"}})
	runTokenize(t, "multi", "42", []tokenCase{{token.NUMBER, "42"}})
	runTokenize(t, "large", "1000000", []tokenCase{{token.NUMBER, "1000000"}})
	runTokenize(t, "hex_lower", "0xff", []tokenCase{{token.NUMBER, "0xff"}})
	runTokenize(t, "hex_upper", "0XFF", []tokenCase{{token.NUMBER, "0XFF"}})
	runTokenize(t, "hex_deadbeef", "0xdeadbeef", []tokenCase{{token.NUMBER, "0xdeadbeef"}})
}

func TestStringLiterals(t *testing.T) {
	runTokenize(t, "empty", `""`, []tokenCase{{token.STRING, ""}})
	runTokenize(t, "hello", `"hello"`, []tokenCase{{token.STRING, "hello"}})
	runTokenize(t, "escape_n", `"line\nfeed"`, []tokenCase{{token.STRING, "line\nfeed"}})
	runTokenize(t, "escape_t", `"tab\there"`, []tokenCase{{token.STRING, "tab\there"}})
	runTokenize(t, "escape_backslash", `"back\\slash"`, []tokenCase{{token.STRING, `back\slash`}})
	runTokenize(t, "escape_quote", `"say\"hi\""`, []tokenCase{{token.STRING, `say"hi"`}})
}

func TestIdentifiers(t *testing.T) {
	runTokenize(t, "simple", "foo", []tokenCase{{token.IDENT, "foo"}})
	runTokenize(t, "underscore_prefix", "_bar", []tokenCase{{token.IDENT, "_bar"}})
	runTokenize(t, "mixed_case", "MyVar", []tokenCase{{token.IDENT, "MyVar"}})
	runTokenize(t, "with_digits", "x1y2z3", []tokenCase{{token.IDENT, "x1y2z3"}})
}

func TestKeywords(t *testing.T) {
	cases := []struct {
		kw  string
		typ token.Type
	}{
		{"var", token.VAR},
		{"func", token.FUNC},
		{"if", token.IF},
		{"else", token.ELSE},
		{"while", token.WHILE},
		{"for", token.FOR},
		{"return", token.RETURN},
		{"new", token.NEW},
		{"import", token.IMPORT},
	}
	for _, c := range cases {
		runTokenize(t, c.kw, c.kw, []tokenCase{{c.typ, c.kw}})
	}
}

func TestKeywordPrefixIsIdent(t *testing.T) {
	runTokenize(t, "func_prefix", "funcs", []tokenCase{{token.IDENT, "funcs"}})
	runTokenize(t, "if_prefix", "iff", []tokenCase{{token.IDENT, "iff"}})
}

func TestLineComment(t *testing.T) {
	runTokenize(t, "line_comment_then_code", "// comment\nfoo", []tokenCase{
		{token.IDENT, "foo"},
	})
	runTokenize(t, "line_comment_alone", "// hello world", nil)
}

func TestWhitespaceSkipping(t *testing.T) {
	runTokenize(t, "spaces", "   foo   ", []tokenCase{{token.IDENT, "foo"}})
	runTokenize(t, "tabs", "\t\tfoo\t\t", []tokenCase{{token.IDENT, "foo"}})
	runTokenize(t, "newlines", "\n\nfoo\n\n", []tokenCase{{token.IDENT, "foo"}})
}

func TestFunctionDeclaration(t *testing.T) {
	input := `func add(x, y) { return x + y; }`
	runTokenize(t, "func_decl", input, []tokenCase{
		{token.FUNC, "func"},
		{token.IDENT, "add"},
		{token.LPAREN, "("},
		{token.IDENT, "x"},
		{token.COMMA, ","},
		{token.IDENT, "y"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.RETURN, "return"},
		{token.IDENT, "x"},
		{token.PLUS, "+"},
		{token.IDENT, "y"},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},
	})
}

func TestVarDecl(t *testing.T) {
	input := `var x = 42;`
	runTokenize(t, "var_decl", input, []tokenCase{
		{token.VAR, "var"},
		{token.IDENT, "x"},
		{token.ASSIGN, "="},
		{token.NUMBER, "42"},
		{token.SEMICOLON, ";"},
	})
}

func TestComparisonChain(t *testing.T) {
	input := `a == b != c < d > e <= f >= g`
	runTokenize(t, "comparison_chain", input, []tokenCase{
		{token.IDENT, "a"},
		{token.EQ, "=="},
		{token.IDENT, "b"},
		{token.NEQ, "!="},
		{token.IDENT, "c"},
		{token.LT, "<"},
		{token.IDENT, "d"},
		{token.GT, ">"},
		{token.IDENT, "e"},
		{token.LTE, "<="},
		{token.IDENT, "f"},
		{token.GTE, ">="},
		{token.IDENT, "g"},
	})
}

func TestNegativeNumberIsMinusThenNumber(t *testing.T) {
	// The lexer does not produce negative literals; '-' is always a MINUS
	// token. Negative literals are sugar (Int(-N)) handled by the parser.
	runTokenize(t, "negative", "-42", []tokenCase{
		{token.MINUS, "-"},
		{token.NUMBER, "42"},
	})
}

func TestEmptyInput(t *testing.T) {
	t.Run("empty_input", func(t *testing.T) {
		l := lexer.New("test.xl", "")
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.Type != token.EOF {
			t.Errorf("expected EOF for empty input, got %s", tok.Type)
		}
	})
}

func TestIllegalCharacter(t *testing.T) {
	t.Run("illegal_char", func(t *testing.T) {
		l := lexer.New("test.xl", "`")
		_, err := l.NextToken()
		var lexErr *lexer.LexError
		if err == nil {
			t.Fatal("expected LexError for backtick")
		}
		if !isLexError(err, &lexErr) {
			t.Errorf("expected *lexer.LexError, got %T (%v)", err, err)
		}
	})
}

func isLexError(err error, target **lexer.LexError) bool {
	if le, ok := err.(*lexer.LexError); ok {
		*target = le
		return true
	}
	return false
}

func TestUnterminatedString(t *testing.T) {
	t.Run("unterminated_string", func(t *testing.T) {
		l := lexer.New("test.xl", `"no closing`)
		_, err := l.NextToken()
		if _, ok := err.(*lexer.UnterminatedError); !ok {
			t.Errorf("expected *lexer.UnterminatedError, got %T (%v)", err, err)
		}
	})
}

func TestMultipleCallsAfterEOF(t *testing.T) {
	t.Run("eof_idempotent", func(t *testing.T) {
		l := lexer.New("test.xl", "")
		for i := 0; i < 5; i++ {
			tok, err := l.NextToken()
			if err != nil {
				t.Fatalf("call %d: unexpected error: %v", i, err)
			}
			if tok.Type != token.EOF {
				t.Errorf("call %d: expected EOF, got %s", i, tok.Type)
			}
		}
	})
}

func TestZeroHexPrefix(t *testing.T) {
	runTokenize(t, "zero_x_empty", "0x", []tokenCase{{token.NUMBER, "0x"}})
}

func TestPositionTracking(t *testing.T) {
	t.Run("line_and_column", func(t *testing.T) {
		l := lexer.New("src.xl", "foo\nbar")
		toks, err := l.Tokenize()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(toks) < 2 {
			t.Fatal("expected at least 2 tokens")
		}
		foo := toks[0]
		bar := toks[1]
		if foo.Pos.Line != 1 || foo.Pos.Column != 1 {
			t.Errorf("foo: line/col = %d/%d, want 1/1", foo.Pos.Line, foo.Pos.Column)
		}
		if bar.Pos.Line != 2 || bar.Pos.Column != 1 {
			t.Errorf("bar: line/col = %d/%d, want 2/1", bar.Pos.Line, bar.Pos.Column)
		}
	})
}

func TestArrayAccessTokens(t *testing.T) {
	input := `a[0] = a[1] + 1;`
	runTokenize(t, "array_access", input, []tokenCase{
		{token.IDENT, "a"},
		{token.LBRACKET, "["},
		{token.NUMBER, "0"},
		{token.RBRACKET, "]"},
		{token.ASSIGN, "="},
		{token.IDENT, "a"},
		{token.LBRACKET, "["},
		{token.NUMBER, "1"},
		{token.RBRACKET, "]"},
		{token.PLUS, "+"},
		{token.NUMBER, "1"},
		{token.SEMICOLON, ";"},
	})
}

func TestImportStatement(t *testing.T) {
	input := `import "ledger.xl"`
	runTokenize(t, "import_stmt", input, []tokenCase{
		{token.IMPORT, "import"},
		{token.STRING, "ledger.xl"},
	})
}
