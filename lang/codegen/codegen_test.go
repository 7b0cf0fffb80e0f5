// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package codegen

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xlatticelabs/xlvm/lang/parser"
	"github.com/xlatticelabs/xlvm/lang/vm"
)

// compile parses src as a single compilation unit (no imports) and
// generates a Program from it.
func compile(t *testing.T, src string) *Program {
	t.Helper()
	p, err := parser.New("test.xl", src)
	if err != nil {
		t.Fatalf("parser.New: %v", err)
	}
	unit, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	prog, err := Generate(unit)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return prog
}

// run loads prog into a fresh VM per the §6 host contract (string pool
// preloaded, hp set past it) and invokes the named function. A nullary
// "main" is entered by executing from address 0, so the global initializer
// prologue runs before its JMP reaches main; any other function is entered
// directly and sees uninitialized (zero) globals.
func run(t *testing.T, prog *Program, fn string, args ...int64) (int64, string) {
	t.Helper()
	mem := vm.NewMemory(256, 4096)
	for addr, s := range prog.StringPool {
		if err := mem.ReserveString(addr, s); err != nil {
			t.Fatalf("ReserveString: %v", err)
		}
	}
	mem.SetHP(prog.NextStringAddr)

	var out bytes.Buffer
	m := vm.New(prog.Code, mem, &out)
	addr, ok := prog.FuncAddresses[fn]
	if !ok {
		t.Fatalf("function %q not found", fn)
	}
	var result int64
	var err error
	if fn == "main" && len(args) == 0 {
		result, err = m.Run()
	} else {
		result, err = m.ExecuteFunction(addr, args)
	}
	if err != nil {
		t.Fatalf("executing %s: %v", fn, err)
	}
	return result, out.String()
}

func TestArithmeticAndReturn(t *testing.T) {
	prog := compile(t, `func main() { return 2 + 3 * 4; }`)
	if got, _ := run(t, prog, "main"); got != 14 {
		t.Errorf("got %d, want 14", got)
	}
}

func TestParameterOrder(t *testing.T) {
	prog := compile(t, `
		func sub(a,b) { return a - b; }
		func main() { return sub(10, 3); }
	`)
	if got, _ := run(t, prog, "main"); got != 7 {
		t.Errorf("got %d, want 7 (LOADL 0 must be the first parameter)", got)
	}
}

func TestArrayRoundTrip(t *testing.T) {
	prog := compile(t, `
		func main() {
			var a = new(3);
			a[0] = 11;
			a[1] = 22;
			a[2] = 33;
			return a[0] + a[1] + a[2];
		}
	`)
	if got, _ := run(t, prog, "main"); got != 66 {
		t.Errorf("got %d, want 66", got)
	}
}

func TestStringPrint(t *testing.T) {
	prog := compile(t, `func main() { prints("hi"); return 0; }`)
	_, out := run(t, prog, "main")
	if out != "hi" {
		t.Errorf("stdout = %q, want %q", out, "hi")
	}
}

func TestIfElse(t *testing.T) {
	prog := compile(t, `func main() { if (1 == 2) { return 7; } else { return 9; } }`)
	if got, _ := run(t, prog, "main"); got != 9 {
		t.Errorf("got %d, want 9", got)
	}
}

func TestForLoopSum(t *testing.T) {
	prog := compile(t, `
		func main() {
			var s = 0;
			for (var i = 0; i < 5; i = i + 1) { s = s + i; }
			return s;
		}
	`)
	if got, _ := run(t, prog, "main"); got != 10 {
		t.Errorf("got %d, want 10", got)
	}
}

func TestWhileLoop(t *testing.T) {
	prog := compile(t, `
		func main() {
			var s = 0;
			var i = 0;
			while (i < 4) { s = s + i; i = i + 1; }
			return s;
		}
	`)
	if got, _ := run(t, prog, "main"); got != 6 {
		t.Errorf("got %d, want 6", got)
	}
}

func TestComparisonSugar(t *testing.T) {
	// <= and >= have no dedicated opcode and must be lowered correctly.
	prog := compile(t, `
		func main() {
			if (3 <= 3) {
				if (4 >= 5) { return 0; } else { return 1; }
			}
			return 2;
		}
	`)
	if got, _ := run(t, prog, "main"); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}

func TestStringPoolDeduplication(t *testing.T) {
	prog := compile(t, `
		func main() {
			prints("dup");
			prints("dup");
			return 0;
		}
	`)
	if len(prog.StringPool) != 1 {
		t.Errorf("expected 1 pooled string, got %d", len(prog.StringPool))
	}
}

func TestGlobalsVisibleAcrossFunctions(t *testing.T) {
	prog := compile(t, `
		var counter = 41;
		func bump() { counter = counter + 1; return counter; }
		func main() { return bump(); }
	`)
	if got, _ := run(t, prog, "main"); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestMangledLocalsDoNotCollideAcrossFunctions(t *testing.T) {
	prog := compile(t, `
		func f() { var x = 1; return x; }
		func g() { var x = 2; return x; }
		func main() { return f() + g(); }
	`)
	if got, _ := run(t, prog, "main"); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
	if prog.Globals["f_x"] == prog.Globals["g_x"] {
		t.Errorf("f_x and g_x must not share a cell")
	}
}

func TestLinkErrorCase(t *testing.T) {
	p, err := parser.New("test.xl", `func main() { return ghost(); }`)
	if err != nil {
		t.Fatalf("parser.New: %v", err)
	}
	unit, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = Generate(unit)
	if err == nil {
		t.Fatal("expected a LinkError for an undefined callee")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error = %v, want it to name the undefined callee", err)
	}
	var linkErr *LinkError
	if !errors.As(err, &linkErr) {
		t.Errorf("expected *LinkError, got %T", err)
	}
}

func TestVerifyAcceptsGeneratedProgram(t *testing.T) {
	prog := compile(t, `
		func sub(a,b) { return a - b; }
		func main() { return sub(10, 3); }
	`)
	if errs := Verify(prog); len(errs) > 0 {
		for _, e := range errs {
			t.Errorf("unexpected verify error: %v", e)
		}
	}
}

func TestVerifyRejectsBadCallTarget(t *testing.T) {
	prog := &Program{
		Code:          []int64{int64(vm.CALL), 999, int64(vm.RET), 0},
		FuncAddresses: map[string]int64{"main": 0},
	}
	errs := Verify(prog)
	if len(errs) == 0 {
		t.Error("expected a verify error for an unresolved CALL target")
	}
}

func TestVerifyRejectsOddLength(t *testing.T) {
	prog := &Program{Code: []int64{int64(vm.PUSH), 1, int64(vm.RET)}}
	errs := Verify(prog)
	if len(errs) == 0 {
		t.Error("expected a verify error for odd-length bytecode")
	}
}
