// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package codegen translates a loaded XL compilation unit (ordered globals
// and functions from the loader) into the flat (opcode, argument) bytecode
// image executed by lang/vm, in a single pass with forward-reference
// back-patching for calls and the entry jump to main.
package codegen

import (
	"fmt"

	"github.com/xlatticelabs/xlvm/lang/ast"
	"github.com/xlatticelabs/xlvm/lang/vm"
)

// LinkError is raised when back-patching finds a CALL whose callee was
// never defined. Per §7 this is fatal; there is no recovery.
type LinkError struct {
	Callee string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("codegen: undefined function %q", e.Callee)
}

// UndefinedVarError is raised when an identifier resolves to neither a
// parameter, a mangled local, nor a global.
type UndefinedVarError struct {
	Name string
}

func (e *UndefinedVarError) Error() string {
	return fmt.Sprintf("codegen: undefined variable %q", e.Name)
}

// Program is the output of code generation: a self-contained bytecode
// image plus the tables the host needs to load and run it, per §6's entry
// point contract.
type Program struct {
	Code []int64

	// StringPool maps the heap address a literal was reserved at to its
	// bytes, without the NUL terminator (its cell is reserved but not
	// stored here). The host preloads these into the VM heap, terminator
	// included, before execution and then sets hp = NextStringAddr.
	StringPool map[int64]string

	// FuncAddresses maps a function name to its bytecode offset.
	FuncAddresses map[string]int64

	// Globals maps a qualified name (bare global, or "<func>_<var>" for a
	// lifted function-local) to its memory cell index.
	Globals map[string]int64

	// NextStringAddr is the first heap address not reserved by the string
	// pool; the host sets the VM's heap pointer to this value before run.
	NextStringAddr int64
}

// intrinsicOps is the capability-set lookup table from source-level
// identifier to the dedicated opcode it lowers to, per §4.4/§4.7. Calls to
// any other name are lowered through the ordinary CALL path. Unknown names
// never receive a guessed opcode — failing closed, per §9.
var intrinsicOps = map[string]vm.Op{
	"prints":        vm.PRINTS,
	"printhex":      vm.PRINTHEX,
	"fwrite":        vm.FWRITE,
	"fappend":       vm.FAPPEND,
	"fread":         vm.FREAD,
	"fappend_int":   vm.FAPPEND_INT,
	"rand":          vm.RAND,
	"json_get_hash": vm.JSON_GET,
	"sha512":        vm.SHA512,
	"keygen":        vm.KEYGEN,
}

// patch records a forward reference to a callee name at a CALL argument
// slot, resolved once every function's address is known.
type patch struct {
	argOffset int // index into code of the CALL's argument word
	callee    string
}

// Generator holds the single-pass code generation state for one
// compilation unit. Use New for each Generate call; a Generator is not
// reusable across runs.
type Generator struct {
	code []int64

	globals     map[string]int64
	nextCell    int64
	funcAddrs   map[string]int64
	callPatches []patch

	stringAddrs map[string]int64 // literal value -> reserved address
	stringPool  map[int64]string
	nextStrAddr int64

	// Per-function state, reset by generateFunction.
	fn     *ast.Func
	params map[string]int64
}

// New returns a fresh Generator ready to Generate one compilation unit.
func New() *Generator {
	return &Generator{
		globals:     make(map[string]int64),
		funcAddrs:   make(map[string]int64),
		stringAddrs: make(map[string]int64),
		stringPool:  make(map[int64]string),
	}
}

// Generate compiles unit's globals and functions into a Program, per the
// image layout in §4.4: initializer prologue, a JMP to main, then each
// function's body in declaration order.
func Generate(unit *ast.Unit) (*Program, error) {
	return New().Generate(unit)
}

// Generate is the instance form; see the package-level Generate.
func (g *Generator) Generate(unit *ast.Unit) (*Program, error) {
	for _, gl := range unit.Globals {
		g.globals[gl.Name] = g.allocCell()
	}
	for _, gl := range unit.Globals {
		if err := g.genExpr(gl.Value); err != nil {
			return nil, err
		}
		g.emit(vm.STOREG, g.globals[gl.Name])
	}

	jmpArgOffset := len(g.code) + 1
	g.emit(vm.JMP, 0) // patched to main's address below

	for _, fn := range unit.Funcs {
		if err := g.generateFunction(fn); err != nil {
			return nil, err
		}
	}

	if mainAddr, ok := g.funcAddrs["main"]; ok {
		g.code[jmpArgOffset] = mainAddr
	} else {
		g.code[jmpArgOffset] = int64(len(g.code))
	}

	for _, p := range g.callPatches {
		addr, ok := g.funcAddrs[p.callee]
		if !ok {
			return nil, &LinkError{Callee: p.callee}
		}
		g.code[p.argOffset] = addr
	}

	return &Program{
		Code:           g.code,
		StringPool:     g.stringPool,
		FuncAddresses:  g.funcAddrs,
		Globals:        g.globals,
		NextStringAddr: g.nextStrAddr,
	}, nil
}

func (g *Generator) allocCell() int64 {
	c := g.nextCell
	g.nextCell++
	return c
}

// emit appends one (opcode, argument) pair and returns the code offset it
// was written at.
func (g *Generator) emit(op vm.Op, arg int64) int {
	off := len(g.code)
	g.code = append(g.code, int64(op), arg)
	return off
}

func (g *Generator) generateFunction(fn *ast.Func) error {
	g.fn = fn
	g.params = make(map[string]int64, len(fn.Params))
	for i, p := range fn.Params {
		g.params[p] = int64(i)
	}
	g.funcAddrs[fn.Name] = int64(len(g.code))

	for _, stmt := range fn.Body {
		if err := g.genStmt(stmt); err != nil {
			return err
		}
	}

	// Every function falls through to an implicit `return 0` if no
	// explicit Return was hit, per §4.4.
	g.emit(vm.PUSH, 0)
	g.emit(vm.RET, 0)

	g.fn = nil
	g.params = nil
	return nil
}

// mangledName returns the lifted-global name for a function-local var, per
// the <func>_<var> convention in §3/§4.4.
func (g *Generator) mangledName(name string) string {
	return g.fn.Name + "_" + name
}

// varRef is a resolved identifier: exactly one of isParam or the global
// cell is meaningful.
type varRef struct {
	isParam bool
	index   int64 // parameter index, or global cell
}

// resolve implements the three-tier name-resolution rule from §4.4: a
// parameter first, then the mangled local, then the bare global.
func (g *Generator) resolve(name string) (varRef, error) {
	if g.fn != nil {
		if idx, ok := g.params[name]; ok {
			return varRef{isParam: true, index: idx}, nil
		}
		if cell, ok := g.globals[g.mangledName(name)]; ok {
			return varRef{index: cell}, nil
		}
	}
	if cell, ok := g.globals[name]; ok {
		return varRef{index: cell}, nil
	}
	return varRef{}, &UndefinedVarError{Name: name}
}

// declareLocal registers a function-local VarDecl's lifted global cell,
// allocating it on first sight. VarDecl inside a function always mangles,
// even if a same-named bare global already exists (per §4.4's shadowing by
// resolution order: the mangled entry is checked before the bare one).
func (g *Generator) declareLocal(name string) int64 {
	key := g.mangledName(name)
	if cell, ok := g.globals[key]; ok {
		return cell
	}
	cell := g.allocCell()
	g.globals[key] = cell
	return cell
}

func (g *Generator) genStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.VarDecl:
		if g.fn == nil {
			// Handled by the global initializer prologue.
			return nil
		}
		if err := g.genExpr(n.Value); err != nil {
			return err
		}
		g.emit(vm.STOREG, g.declareLocal(n.Name))
		return nil

	case *ast.Assign:
		if err := g.genExpr(n.Expr); err != nil {
			return err
		}
		ref, err := g.resolve(n.Name)
		if err != nil {
			return err
		}
		if ref.isParam {
			g.emit(vm.STOREL, ref.index)
		} else {
			g.emit(vm.STOREG, ref.index)
		}
		return nil

	case *ast.ArrayAssign:
		if err := g.genVarLoad(n.Name); err != nil {
			return err
		}
		if err := g.genExpr(n.Index); err != nil {
			return err
		}
		if err := g.genExpr(n.Value); err != nil {
			return err
		}
		g.emit(vm.HSTORE, 0)
		return nil

	case *ast.If:
		return g.genIf(n)

	case *ast.While:
		return g.genWhile(n)

	case *ast.For:
		return g.genFor(n)

	case *ast.Return:
		if err := g.genExpr(n.Expr); err != nil {
			return err
		}
		g.emit(vm.RET, 0)
		return nil

	case *ast.ExprStmt:
		if err := g.genExpr(n.X); err != nil {
			return err
		}
		g.emit(vm.POP, 0)
		return nil

	default:
		return fmt.Errorf("codegen: unhandled statement %T", s)
	}
}

// genVarLoad pushes the current value of a bare variable reference (used
// to fetch an array's base pointer for HLOAD/HSTORE).
func (g *Generator) genVarLoad(name string) error {
	ref, err := g.resolve(name)
	if err != nil {
		return err
	}
	if ref.isParam {
		g.emit(vm.LOADL, ref.index)
	} else {
		g.emit(vm.LOADG, ref.index)
	}
	return nil
}

func (g *Generator) genIf(n *ast.If) error {
	if err := g.genExpr(n.Cond); err != nil {
		return err
	}
	jzOff := g.emit(vm.JZ, 0) + 1
	for _, s := range n.Then {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	if n.Else == nil {
		g.code[jzOff] = int64(len(g.code))
		return nil
	}
	jmpOff := g.emit(vm.JMP, 0) + 1
	g.code[jzOff] = int64(len(g.code))
	for _, s := range n.Else {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	g.code[jmpOff] = int64(len(g.code))
	return nil
}

func (g *Generator) genWhile(n *ast.While) error {
	loopStart := int64(len(g.code))
	if err := g.genExpr(n.Cond); err != nil {
		return err
	}
	jzOff := g.emit(vm.JZ, 0) + 1
	for _, s := range n.Body {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	g.emit(vm.JMP, loopStart)
	g.code[jzOff] = int64(len(g.code))
	return nil
}

func (g *Generator) genFor(n *ast.For) error {
	if n.Init != nil {
		if err := g.genStmt(n.Init); err != nil {
			return err
		}
	}
	loopStart := int64(len(g.code))
	if err := g.genExpr(n.Cond); err != nil {
		return err
	}
	jzOff := g.emit(vm.JZ, 0) + 1
	for _, s := range n.Body {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	if n.Step != nil {
		if err := g.genStmt(n.Step); err != nil {
			return err
		}
	}
	g.emit(vm.JMP, loopStart)
	g.code[jzOff] = int64(len(g.code))
	return nil
}

// binOps maps operator lexemes directly onto an opcode, for the operators
// the VM has a dedicated instruction for.
var binOps = map[string]vm.Op{
	"&": vm.AND, "|": vm.OR, "^": vm.XOR,
	"+": vm.ADD, "-": vm.SUB, "*": vm.MUL, "/": vm.DIV,
	"==": vm.EQ, "!=": vm.NEQ, "<": vm.LT, ">": vm.GT,
	"&&": vm.LAND, "||": vm.LOR,
	"<<": vm.SHL,
	// The canonical opcode table has a single logical right shift; both
	// ">>" and ">>>" lower to it (§4.5 defines no separate arithmetic
	// right shift).
	">>":  vm.SHR,
	">>>": vm.SHR,
}

func (g *Generator) genExpr(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.Number:
		g.emit(vm.PUSH, n.Value)
		return nil

	case *ast.StringLiteral:
		g.emit(vm.PUSH, g.internString(n.Value))
		return nil

	case *ast.Var:
		return g.genVarLoad(n.Name)

	case *ast.BinOp:
		return g.genBinOp(n)

	case *ast.Call:
		return g.genCall(n)

	case *ast.ArrayAlloc:
		if err := g.genExpr(n.Size); err != nil {
			return err
		}
		g.emit(vm.NEW, 0)
		return nil

	case *ast.ArrayAccess:
		if err := g.genVarLoad(n.Name); err != nil {
			return err
		}
		if err := g.genExpr(n.Index); err != nil {
			return err
		}
		g.emit(vm.HLOAD, 0)
		return nil

	default:
		return fmt.Errorf("codegen: unhandled expression %T", e)
	}
}

// genBinOp lowers the grammar's <= and >= — which the canonical opcode
// table has no dedicated instruction for — to `1 - (swapped GT/LT)`, the
// two comparisons the VM does provide.
func (g *Generator) genBinOp(n *ast.BinOp) error {
	switch n.Op {
	case "<=":
		g.emit(vm.PUSH, 1)
		if err := g.genExpr(n.Left); err != nil {
			return err
		}
		if err := g.genExpr(n.Right); err != nil {
			return err
		}
		g.emit(vm.GT, 0)
		g.emit(vm.SUB, 0)
		return nil
	case ">=":
		g.emit(vm.PUSH, 1)
		if err := g.genExpr(n.Left); err != nil {
			return err
		}
		if err := g.genExpr(n.Right); err != nil {
			return err
		}
		g.emit(vm.LT, 0)
		g.emit(vm.SUB, 0)
		return nil
	}

	op, ok := binOps[n.Op]
	if !ok {
		return fmt.Errorf("codegen: unknown operator %q", n.Op)
	}
	if err := g.genExpr(n.Left); err != nil {
		return err
	}
	if err := g.genExpr(n.Right); err != nil {
		return err
	}
	g.emit(op, 0)
	return nil
}

// genCall lowers a call to either a dedicated intrinsic opcode (arguments
// pushed in source order, per §4.4) or an ordinary CALL (arguments pushed
// in reverse source order, back-patched to the callee's address once every
// function has been emitted).
func (g *Generator) genCall(n *ast.Call) error {
	if op, ok := intrinsicOps[n.Name]; ok {
		for _, a := range n.Args {
			if err := g.genExpr(a); err != nil {
				return err
			}
		}
		g.emit(op, 0)
		return nil
	}

	for i := len(n.Args) - 1; i >= 0; i-- {
		if err := g.genExpr(n.Args[i]); err != nil {
			return err
		}
	}
	argOff := g.emit(vm.CALL, 0) + 1
	g.callPatches = append(g.callPatches, patch{argOffset: argOff, callee: n.Name})
	return nil
}

// internString reserves the literal's bytes in the string pool on first
// occurrence and returns its heap address; later occurrences of the same
// literal reuse it, per §3's string_pool rule.
func (g *Generator) internString(s string) int64 {
	if addr, ok := g.stringAddrs[s]; ok {
		return addr
	}
	addr := g.nextStrAddr
	g.stringAddrs[s] = addr
	g.stringPool[addr] = s
	g.nextStrAddr += int64(len(s)) + 1 // +1 for the NUL terminator
	return addr
}
