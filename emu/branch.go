// Package emu provides functional ARM32 emulation.
package emu

import "github.com/sarchlab/armcore/insts"

// BranchUnit owns every change of control flow: condition checks, PC
// redirects and the BX state switch.
type BranchUnit struct {
	regFile *RegFile
	taken   bool
}

// NewBranchUnit creates a new BranchUnit connected to the given register file.
func NewBranchUnit(regFile *RegFile) *BranchUnit {
	return &BranchUnit{regFile: regFile}
}

// Branch redirects execution to target. The caller applies any alignment.
func (b *BranchUnit) Branch(target uint32) {
	b.regFile.PC = target
	b.taken = true
}

// Taken reports whether the current instruction redirected the PC.
func (b *BranchUnit) Taken() bool {
	return b.taken
}

func (b *BranchUnit) clearTaken() {
	b.taken = false
}

// BX branches to the address in Rn. An odd target enters the halfword
// (Thumb) state and is halfword aligned. An even target is word aligned and
// leaves T as it was.
func (b *BranchUnit) BX(rn uint8) {
	addr := b.regFile.ReadReg(rn)

	if addr&0x1 == 0x1 {
		b.regFile.CPSR.T = true
		b.Branch(addr &^ 0x1)
		return
	}

	b.Branch(addr &^ 0x3)
}

// CheckCondition evaluates a condition code against the current CPSR flags.
func (b *BranchUnit) CheckCondition(cond insts.Cond) bool {
	return ConditionPassed(cond, b.regFile.CPSR)
}

// ConditionPassed evaluates an ARM condition code against a set of flags.
func ConditionPassed(cond insts.Cond, psr PSR) bool {
	switch cond {
	case insts.CondEQ:
		// Equal: Z == 1
		return psr.Z
	case insts.CondNE:
		// Not Equal: Z == 0
		return !psr.Z
	case insts.CondCS:
		// Carry Set / Unsigned higher or same: C == 1
		return psr.C
	case insts.CondCC:
		// Carry Clear / Unsigned lower: C == 0
		return !psr.C
	case insts.CondMI:
		return psr.N
	case insts.CondPL:
		return !psr.N
	case insts.CondVS:
		return psr.V
	case insts.CondVC:
		return !psr.V
	case insts.CondHI:
		// Unsigned higher: C == 1 && Z == 0
		return psr.C && !psr.Z
	case insts.CondLS:
		// Unsigned lower or same: C == 0 || Z == 1
		return !psr.C || psr.Z
	case insts.CondGE:
		return psr.N == psr.V
	case insts.CondLT:
		return psr.N != psr.V
	case insts.CondGT:
		// Signed greater than: Z == 0 && N == V
		return !psr.Z && (psr.N == psr.V)
	case insts.CondLE:
		// Signed less than or equal: Z == 1 || N != V
		return psr.Z || (psr.N != psr.V)
	case insts.CondAL:
		return true
	default:
		// NV: never, as in ARMv4.
		return false
	}
}
