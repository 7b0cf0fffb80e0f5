// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package integration is the thin host described in §6 of the language
// core: it compiles an XL entry point, preloads its string pool into a VM,
// and exposes named-function invocation over a small HTTP/JSON facade.
// It knows nothing about what the compiled program does — ledgers,
// wallets, NFTs, or anything else are entirely the business of the XL
// source, never of this package.
package integration

import (
	"fmt"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/xlatticelabs/xlvm/lang/codegen"
	"github.com/xlatticelabs/xlvm/lang/vm"
	"github.com/xlatticelabs/xlvm/loader"
)

// BootSteps bounds the instruction count a boot-phase initializer is
// allowed to run before the watchdog aborts it (§5). Untrusted or buggy
// initializer code gets a bounded number of instructions rather than the
// ability to hang the host.
const BootSteps = 50000

// Engine owns exactly one compiled program and one VM instance. Every call
// is serialized on mu because pc, hp, the stack, and memory are global
// mutable state with no re-entrancy guarantee (§5).
type Engine struct {
	mu   sync.Mutex
	prog *codegen.Program
	m    *vm.VM

	progCache *lru.Cache // entry path -> *codegen.Program
}

// NewEngine loads and compiles the program rooted at entryPath, then, if
// bootFunc names a function present in the program, runs it under the
// boot-step watchdog before returning. bootFunc is typically a state
// restorer or initializer; the engine does not interpret its result.
func NewEngine(entryPath, bootFunc string) (*Engine, error) {
	cache, err := lru.New(8)
	if err != nil {
		return nil, fmt.Errorf("integration: new program cache: %w", err)
	}
	e := &Engine{progCache: cache}
	if err := e.Load(entryPath); err != nil {
		return nil, err
	}
	if bootFunc != "" {
		if _, ok := e.prog.FuncAddresses[bootFunc]; ok {
			if _, err := e.callLocked(bootFunc, nil, BootSteps); err != nil {
				return nil, fmt.Errorf("integration: boot %s: %w", bootFunc, err)
			}
		}
	}
	return e, nil
}

// Load compiles entryPath (via the transitive import loader and the code
// generator) and swaps it in as the engine's active program, discarding
// any prior VM state. Compiled programs are cached by entry path so a
// repeated Load of the same source skips lexing, parsing, and codegen.
func (e *Engine) Load(entryPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var prog *codegen.Program
	if cached, ok := e.progCache.Get(entryPath); ok {
		prog = cached.(*codegen.Program)
	} else {
		unit, err := loader.Load(entryPath)
		if err != nil {
			return fmt.Errorf("integration: load %s: %w", entryPath, err)
		}
		p, err := codegen.Generate(unit)
		if err != nil {
			return fmt.Errorf("integration: compile %s: %w", entryPath, err)
		}
		if errs := codegen.Verify(p); len(errs) > 0 {
			return fmt.Errorf("integration: %s failed verification: %s", entryPath, errs[0].Error())
		}
		prog = p
		e.progCache.Add(entryPath, prog)
	}

	mem := vm.NewMemory(0, 0)
	for addr, s := range prog.StringPool {
		if err := mem.ReserveString(addr, s); err != nil {
			return fmt.Errorf("integration: reserve string: %w", err)
		}
	}
	mem.SetHP(prog.NextStringAddr)

	e.prog = prog
	e.m = vm.New(prog.Code, mem, io.Discard)
	return nil
}

// Call invokes a named function in the active program with the given
// integer arguments and returns its single result word.
func (e *Engine) Call(name string, args []int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callLocked(name, args, 0)
}

// Functions lists every function address known to the active program, for
// a host that wants to validate a route before dispatching to it.
func (e *Engine) Functions() map[string]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int64, len(e.prog.FuncAddresses))
	for k, v := range e.prog.FuncAddresses {
		out[k] = v
	}
	return out
}

// callLocked assumes e.mu is already held. maxSteps of 0 means unbounded,
// appropriate for steady-state calls once boot has completed.
func (e *Engine) callLocked(name string, args []int64, maxSteps int64) (int64, error) {
	addr, ok := e.prog.FuncAddresses[name]
	if !ok {
		return 0, fmt.Errorf("integration: no such function %q", name)
	}
	e.m.MaxSteps = maxSteps
	return e.m.ExecuteFunction(addr, args)
}
