// Package emu provides functional ARM32 emulation.
package emu

import (
	"fmt"
	"strings"
)

// PipelineOffset is added to the PC when r15 is read as a register-form
// data-processing operand.
const PipelineOffset = 4

// RegFile represents the ARM32 register file.
// It contains 15 general-purpose registers (r0-r14), the program counter
// (r15) and the current and saved program status registers.
type RegFile struct {
	// R holds general-purpose registers r0-r14.
	// r13 (SP) and r14 (LR) are ordinary registers here.
	R [15]uint32

	// PC is r15, the address of the instruction being executed.
	PC uint32

	// CPSR holds the current status flags.
	CPSR PSR

	// SPSR is the saved copy restored by flag-setting writes to r15.
	SPSR PSR
}

// PSR represents the program status flags.
type PSR struct {
	// N is the negative flag.
	N bool
	// Z is the zero flag.
	Z bool
	// C is the carry flag.
	C bool
	// V is the overflow flag.
	V bool
	// T selects the halfword-instruction (Thumb) state.
	T bool
}

// String renders the flags as "NZCVT", upper case for set flags and lower
// case for clear ones.
func (p PSR) String() string {
	flags := []struct {
		set  bool
		name byte
	}{{p.N, 'N'}, {p.Z, 'Z'}, {p.C, 'C'}, {p.V, 'V'}, {p.T, 'T'}}

	var b strings.Builder
	for _, f := range flags {
		if f.set {
			b.WriteByte(f.name)
		} else {
			b.WriteByte(f.name + ('a' - 'A'))
		}
	}
	return b.String()
}

// ParsePSR parses a flag string. Upper-case letters from "NZCVT" set the
// flag, lower-case letters leave it clear, so both "NC" and "NzCvt" are
// accepted.
func ParsePSR(s string) (PSR, error) {
	var p PSR
	for _, r := range s {
		switch r {
		case 'N':
			p.N = true
		case 'Z':
			p.Z = true
		case 'C':
			p.C = true
		case 'V':
			p.V = true
		case 'T':
			p.T = true
		case 'n', 'z', 'c', 'v', 't':
		default:
			return PSR{}, fmt.Errorf("invalid flag %q in %q", r, s)
		}
	}
	return p, nil
}

// ReadReg reads the architectural value of a register. r15 returns the
// address of the instruction being executed.
func (r *RegFile) ReadReg(reg uint8) uint32 {
	switch {
	case reg == 15:
		return r.PC
	case reg > 15:
		return 0
	}
	return r.R[reg]
}

// ReadOperandReg reads a register the way register-form data-processing
// operands see it: r15 returns PC + PipelineOffset.
func (r *RegFile) ReadOperandReg(reg uint8) uint32 {
	if reg == 15 {
		return r.PC + PipelineOffset
	}
	return r.ReadReg(reg)
}

// WriteReg writes a value to a register. Writing r15 sets the PC without
// alignment; instruction results go through the emulator's write paths.
// Writes to registers above 15 are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint32) {
	switch {
	case reg == 15:
		r.PC = value
	case reg < 15:
		r.R[reg] = value
	}
}

// RestoreCPSR copies the saved status register into the current one.
func (r *RegFile) RestoreCPSR() {
	r.CPSR = r.SPSR
}
