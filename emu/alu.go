// Package emu provides functional ARM32 emulation.
package emu

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/armcore/insts"
)

// ALU implements the 16 ARM data-processing operations and their flag
// updates.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

// Execute performs op on the two operands. shifterCarry is the carry-out of
// operand 2; flag-setting logical operations copy it into C. The write
// result is false for TST, TEQ, CMP and CMN, which never produce a value for
// Rd. Without setFlags those four opcodes do nothing at all.
func (a *ALU) Execute(op insts.Op, op1, op2 uint32, setFlags, shifterCarry bool) (uint32, bool) {
	if setFlags {
		return a.executeS(op, op1, op2, shifterCarry)
	}

	carry := a.carryBit()

	switch op {
	case insts.OpAND:
		return op1 & op2, true
	case insts.OpEOR:
		return op1 ^ op2, true
	case insts.OpSUB:
		return op1 - op2, true
	case insts.OpRSB:
		return op2 - op1, true
	case insts.OpADD:
		return op1 + op2, true
	case insts.OpADC:
		return op1 + op2 + carry, true
	case insts.OpSBC:
		return op1 - op2 - (1 - carry), true
	case insts.OpRSC:
		return op2 - op1 - (1 - carry), true
	case insts.OpTST, insts.OpTEQ, insts.OpCMP, insts.OpCMN:
		return 0, false
	case insts.OpORR:
		return op1 | op2, true
	case insts.OpMOV:
		return op2, true
	case insts.OpBIC:
		return op1 &^ op2, true
	case insts.OpMVN:
		return ^op2, true
	}

	panic(fmt.Sprintf("emu: invalid data-processing opcode %d", op))
}

func (a *ALU) executeS(op insts.Op, op1, op2 uint32, shifterCarry bool) (uint32, bool) {
	switch op {
	case insts.OpAND:
		return a.setLogicFlags(op1&op2, shifterCarry), true
	case insts.OpEOR:
		return a.setLogicFlags(op1^op2, shifterCarry), true
	case insts.OpSUB:
		return a.SubFlags(op1, op2), true
	case insts.OpRSB:
		return a.SubFlags(op2, op1), true
	case insts.OpADD:
		return a.AddFlags(op1, op2), true
	case insts.OpADC:
		return a.AddCarryFlags(op1, op2), true
	case insts.OpSBC:
		return a.SubCarryFlags(op1, op2), true
	case insts.OpRSC:
		return a.SubCarryFlags(op2, op1), true
	case insts.OpTST:
		a.setLogicFlags(op1&op2, shifterCarry)
		return 0, false
	case insts.OpTEQ:
		a.setLogicFlags(op1^op2, shifterCarry)
		return 0, false
	case insts.OpCMP:
		a.SubFlags(op1, op2)
		return 0, false
	case insts.OpCMN:
		a.AddFlags(op1, op2)
		return 0, false
	case insts.OpORR:
		return a.setLogicFlags(op1|op2, shifterCarry), true
	case insts.OpMOV:
		return a.setLogicFlags(op2, shifterCarry), true
	case insts.OpBIC:
		return a.setLogicFlags(op1&^op2, shifterCarry), true
	case insts.OpMVN:
		return a.setLogicFlags(^op2, shifterCarry), true
	}

	panic(fmt.Sprintf("emu: invalid data-processing opcode %d", op))
}

// AddFlags returns op1 + op2 and sets N, Z, C and V.
func (a *ALU) AddFlags(op1, op2 uint32) uint32 {
	return a.addWithCarry(op1, op2, 0)
}

// AddCarryFlags returns op1 + op2 + C and sets N, Z, C and V.
func (a *ALU) AddCarryFlags(op1, op2 uint32) uint32 {
	return a.addWithCarry(op1, op2, a.carryBit())
}

// SubFlags returns op1 - op2 and sets N, Z, C and V. C is set when no borrow
// occurs.
func (a *ALU) SubFlags(op1, op2 uint32) uint32 {
	return a.addWithCarry(op1, ^op2, 1)
}

// SubCarryFlags returns op1 - op2 - NOT C and sets N, Z, C and V.
func (a *ALU) SubCarryFlags(op1, op2 uint32) uint32 {
	return a.addWithCarry(op1, ^op2, a.carryBit())
}

// addWithCarry computes x + y + c. Subtraction is x + NOT y + 1.
func (a *ALU) addWithCarry(x, y, c uint32) uint32 {
	result, carryOut := bits.Add32(x, y, c)

	psr := &a.regFile.CPSR
	psr.N = result>>31 == 1
	psr.Z = result == 0
	psr.C = carryOut == 1
	// Overflow: both operands differ in sign from the result
	psr.V = ((x^result)&(y^result))>>31 == 1

	return result
}

// setLogicFlags sets N and Z from the result and C from the shifter.
// V is left unchanged.
func (a *ALU) setLogicFlags(result uint32, shifterCarry bool) uint32 {
	psr := &a.regFile.CPSR
	psr.N = result>>31 == 1
	psr.Z = result == 0
	psr.C = shifterCarry
	return result
}

func (a *ALU) carryBit() uint32 {
	if a.regFile.CPSR.C {
		return 1
	}
	return 0
}
