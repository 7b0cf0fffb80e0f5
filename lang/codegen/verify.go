// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package codegen

import (
	"fmt"

	"github.com/xlatticelabs/xlvm/lang/vm"
)

// VerifyError describes a bytecode verification failure.
type VerifyError struct {
	Offset  int
	Message string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify error at offset %d: %s", e.Offset, e.Message)
}

// Verify checks a generated Program against the universal invariants of
// §8: even code length, valid opcodes throughout, every CALL argument
// resolved to a known function address, and every jump target landing on
// an instruction boundary within the code vector or exactly at its end (the
// entry JMP's target when the program has no main).
func Verify(p *Program) []VerifyError {
	var errs []VerifyError

	if len(p.Code)%2 != 0 {
		errs = append(errs, VerifyError{
			Offset:  len(p.Code) - 1,
			Message: "bytecode length is not a multiple of 2 (opcode/argument pairs)",
		})
	}

	funcAddrSet := make(map[int64]bool, len(p.FuncAddresses))
	for _, addr := range p.FuncAddresses {
		funcAddrSet[addr] = true
	}

	for off := 0; off+1 < len(p.Code); off += 2 {
		op := vm.Op(p.Code[off])
		arg := p.Code[off+1]

		if !op.Valid() {
			errs = append(errs, VerifyError{Offset: off, Message: fmt.Sprintf("unknown opcode %d", int64(op))})
			continue
		}

		switch op {
		case vm.CALL:
			if !funcAddrSet[arg] {
				errs = append(errs, VerifyError{
					Offset:  off,
					Message: fmt.Sprintf("CALL target %d is not a known function address", arg),
				})
			}
		case vm.JMP, vm.JZ:
			if arg < 0 || arg%2 != 0 || int(arg) > len(p.Code) {
				errs = append(errs, VerifyError{
					Offset:  off,
					Message: fmt.Sprintf("jump target %d is not a valid instruction boundary", arg),
				})
			}
		}
	}

	return errs
}
