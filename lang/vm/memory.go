// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

package vm

import (
	"errors"
	"fmt"
)

const (
	// DefaultGlobalCells is the default size of memory[N], the global cell
	// array (thousands of 64-bit cells, per the spec's sizing guidance).
	DefaultGlobalCells = 4096

	// DefaultHeapCells is the default size of heap[M], the bump-allocated
	// heap (hundreds of thousands of 64-bit cells).
	DefaultHeapCells = 1 << 20
)

// ErrOutOfMemory is returned when a NEW allocation would run the heap
// pointer past the end of the heap.
var ErrOutOfMemory = errors.New("vm: out of heap memory")

// ErrInvalidAddress is returned when a read or write targets a cell outside
// the bounds of memory[N] or heap[M].
var ErrInvalidAddress = errors.New("vm: invalid memory address")

// Memory is the linear cell store backing one VM instance: a fixed-size
// global array addressed by STOREG/LOADG and a monotonically bump-allocated
// heap addressed by NEW/HLOAD/HSTORE. There is no free: per the
// specification, heap cells allocated by NEW or reserved by the string pool
// live for the lifetime of the run.
//
// The zero value is not usable; use NewMemory.
type Memory struct {
	globals []int64 // memory[N]
	heap    []int64 // heap[M]
	hp      int     // next free heap cell
}

// NewMemory allocates a Memory with the given global and heap cell counts.
// A zero count selects the corresponding default.
func NewMemory(globalCells, heapCells int) *Memory {
	if globalCells <= 0 {
		globalCells = DefaultGlobalCells
	}
	if heapCells <= 0 {
		heapCells = DefaultHeapCells
	}
	return &Memory{
		globals: make([]int64, globalCells),
		heap:    make([]int64, heapCells),
	}
}

// LoadGlobal returns memory[addr].
func (m *Memory) LoadGlobal(addr int64) (int64, error) {
	if addr < 0 || int(addr) >= len(m.globals) {
		return 0, fmt.Errorf("%w: global %d", ErrInvalidAddress, addr)
	}
	return m.globals[addr], nil
}

// StoreGlobal sets memory[addr] = v.
func (m *Memory) StoreGlobal(addr, v int64) error {
	if addr < 0 || int(addr) >= len(m.globals) {
		return fmt.Errorf("%w: global %d", ErrInvalidAddress, addr)
	}
	m.globals[addr] = v
	return nil
}

// New implements the NEW opcode: reserve n consecutive heap cells starting
// at the current heap pointer, advance the pointer past them, and return the
// base address of the reservation. The spec requires no implicit cap on n;
// callers that need one (e.g. a watchdog) enforce it externally.
func (m *Memory) New(n int64) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: NEW with negative size %d", ErrInvalidAddress, n)
	}
	base := m.hp
	end := base + int(n)
	if end > len(m.heap) {
		return 0, ErrOutOfMemory
	}
	m.hp = end
	return int64(base), nil
}

// HLoad returns heap[addr].
func (m *Memory) HLoad(addr int64) (int64, error) {
	if addr < 0 || int(addr) >= len(m.heap) {
		return 0, fmt.Errorf("%w: heap %d", ErrInvalidAddress, addr)
	}
	return m.heap[addr], nil
}

// HStore sets heap[addr] = v.
func (m *Memory) HStore(addr, v int64) error {
	if addr < 0 || int(addr) >= len(m.heap) {
		return fmt.Errorf("%w: heap %d", ErrInvalidAddress, addr)
	}
	m.heap[addr] = v
	return nil
}

// HP returns the current heap pointer (next free cell).
func (m *Memory) HP() int64 { return int64(m.hp) }

// SetHP sets the heap pointer directly. Used by the host once the string
// pool has been preloaded, to set hp = next_string_addr before execution.
func (m *Memory) SetHP(hp int64) { m.hp = int(hp) }

// ReserveString writes the NUL-terminated bytes of s into the heap starting
// at addr, one byte per cell, without moving the bump pointer. Used by the
// host to preload the string pool before execution begins.
func (m *Memory) ReserveString(addr int64, s string) error {
	b := append([]byte(s), 0)
	for i, c := range b {
		if err := m.HStore(addr+int64(i), int64(c)); err != nil {
			return err
		}
	}
	return nil
}

// ReadCString reads a NUL-terminated string starting at heap address addr,
// masking each cell to its low 8 bits as the spec's string intrinsics do.
func (m *Memory) ReadCString(addr int64) (string, error) {
	var b []byte
	for {
		v, err := m.HLoad(addr)
		if err != nil {
			return "", err
		}
		c := byte(v & 0xff)
		if c == 0 {
			break
		}
		b = append(b, c)
		addr++
	}
	return string(b), nil
}

// WriteCString writes s followed by a NUL terminator starting at the current
// heap pointer, advances the pointer past it, and returns the base address.
func (m *Memory) WriteCString(s string) (int64, error) {
	base, err := m.New(int64(len(s) + 1))
	if err != nil {
		return 0, err
	}
	for i := 0; i < len(s); i++ {
		if err := m.HStore(base+int64(i), int64(s[i])); err != nil {
			return 0, err
		}
	}
	if err := m.HStore(base+int64(len(s)), 0); err != nil {
		return 0, err
	}
	return base, nil
}

// WriteWords writes words as consecutive heap cells starting at the current
// heap pointer, advances the pointer past them, and returns the base
// address. Used by SHA512/KEYGEN to publish big-endian word results.
func (m *Memory) WriteWords(words []int64) (int64, error) {
	base, err := m.New(int64(len(words)))
	if err != nil {
		return 0, err
	}
	for i, w := range words {
		if err := m.HStore(base+int64(i), w); err != nil {
			return 0, err
		}
	}
	return base, nil
}
