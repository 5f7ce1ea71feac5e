package benchmarks

import (
	"github.com/sarchlab/armcore/emu"
	"github.com/sarchlab/armcore/insts"
)

// GetPrograms returns the standard program suite. Each program targets one
// part of the core: ALU, flags, condition gate, shifter, PC reads or
// control flow.
func GetPrograms() []Benchmark {
	return []Benchmark{
		arithmeticChain(),
		add64WithCarry(),
		conditionalMax(),
		shifterMix(),
		pcRelative(),
		exceptionReturn(),
		branchExchange(),
		bicMvnLogic(),
	}
}

// GetCorePrograms returns a minimal set for quick validation.
func GetCorePrograms() []Benchmark {
	return []Benchmark{
		arithmeticChain(),
		conditionalMax(),
		exceptionReturn(),
	}
}

// Shorthands used by the programs below.
const al = insts.CondAL

func psr(p emu.PSR) *emu.PSR {
	return &p
}

// 1. Arithmetic Chain - dependent immediate ALU operations
func arithmeticChain() Benchmark {
	words := make([]uint32, 0, 13)
	for i := 0; i < 10; i++ {
		words = append(words, insts.EncodeDPImm(al, insts.OpADD, false, 0, 0, 1, 0))
	}
	words = append(words,
		insts.EncodeDPImm(al, insts.OpSUB, false, 0, 0, 3, 0),   // SUB r0, r0, #3
		insts.EncodeDPImm(al, insts.OpRSB, false, 1, 0, 100, 0), // RSB r1, r0, #100
		insts.EncodeDPReg(al, insts.OpADD, false, 2, 0, 1, insts.ShiftLSL, 0),
	)

	return Benchmark{
		Name:        "arithmetic_chain",
		Description: "10 dependent ADDs, then SUB, RSB and a register ADD",
		Program:     insts.BuildProgram(words...),
		Expected: Expectation{
			Registers:    map[uint8]uint32{0: 7, 1: 93, 2: 100},
			Flags:        psr(emu.PSR{}),
			Instructions: 13,
		},
	}
}

// 2. 64-bit Add - ADDS low words, ADC high words
func add64WithCarry() Benchmark {
	return Benchmark{
		Name:        "add64_with_carry",
		Description: "r1:r0 + r3:r2 through ADDS/ADC carry propagation",
		Setup: func(regFile *emu.RegFile) {
			regFile.WriteReg(0, 0xFFFFFFFF) // low word a
			regFile.WriteReg(1, 1)          // high word a
			regFile.WriteReg(2, 1)          // low word b
			regFile.WriteReg(3, 2)          // high word b
		},
		Program: insts.BuildProgram(
			insts.EncodeDPReg(al, insts.OpADD, true, 4, 0, 2, insts.ShiftLSL, 0),  // ADDS r4, r0, r2
			insts.EncodeDPReg(al, insts.OpADC, false, 5, 1, 3, insts.ShiftLSL, 0), // ADC r5, r1, r3
		),
		Expected: Expectation{
			Registers:    map[uint8]uint32{4: 0, 5: 4},
			Flags:        psr(emu.PSR{Z: true, C: true}),
			Instructions: 2,
		},
	}
}

// 3. Conditional Max - CMP then conditional moves
func conditionalMax() Benchmark {
	return Benchmark{
		Name:        "conditional_max",
		Description: "r0 = max(r0, r1) with CMP and MOVLT; MOVGE is skipped",
		Setup: func(regFile *emu.RegFile) {
			regFile.WriteReg(0, 7)
			regFile.WriteReg(1, 12)
		},
		Program: insts.BuildProgram(
			insts.EncodeDPReg(al, insts.OpCMP, true, 0, 0, 1, insts.ShiftLSL, 0),
			insts.EncodeDPReg(insts.CondLT, insts.OpMOV, false, 0, 0, 1, insts.ShiftLSL, 0),
			insts.EncodeDPImm(insts.CondGE, insts.OpMOV, false, 2, 0, 1, 0),
		),
		Expected: Expectation{
			Registers:    map[uint8]uint32{0: 12, 1: 12, 2: 0},
			Flags:        psr(emu.PSR{N: true}),
			Instructions: 3,
		},
	}
}

// 4. Shifter Mix - every shift type, by immediate and by register
func shifterMix() Benchmark {
	return Benchmark{
		Name:        "shifter_mix",
		Description: "LSL, LSR, ASR, ROR, register LSL and a flag-setting RRX",
		Setup: func(regFile *emu.RegFile) {
			regFile.WriteReg(0, 0x80000001)
			regFile.WriteReg(6, 4)
		},
		Program: insts.BuildProgram(
			insts.EncodeDPReg(al, insts.OpMOV, false, 1, 0, 0, insts.ShiftLSL, 1),
			insts.EncodeDPReg(al, insts.OpMOV, false, 2, 0, 0, insts.ShiftLSR, 1),
			insts.EncodeDPReg(al, insts.OpMOV, false, 3, 0, 0, insts.ShiftASR, 1),
			insts.EncodeDPReg(al, insts.OpMOV, false, 4, 0, 0, insts.ShiftROR, 4),
			insts.EncodeDPRegShift(al, insts.OpMOV, false, 7, 0, 0, insts.ShiftLSL, 6),
			insts.EncodeDPReg(al, insts.OpMOV, true, 5, 0, 0, insts.ShiftROR, 0), // MOVS r5, r0, RRX
		),
		Expected: Expectation{
			Registers: map[uint8]uint32{
				1: 0x00000002,
				2: 0x40000000,
				3: 0xC0000000,
				4: 0x18000000,
				5: 0x40000000,
				7: 0x00000010,
			},
			Flags:        psr(emu.PSR{C: true}),
			Instructions: 6,
		},
	}
}

// 5. PC Relative - r15 as an operand in each operand form
func pcRelative() Benchmark {
	return Benchmark{
		Name:        "pc_relative",
		Description: "reads of r15 through immediate, shifted and register-shifted operands",
		Program: insts.BuildProgram(
			insts.EncodeDPImm(al, insts.OpADD, false, 0, 15, 4, 0),                      // ADD r0, pc, #4
			insts.EncodeDPReg(al, insts.OpMOV, false, 2, 0, 15, insts.ShiftLSL, 0),      // MOV r2, pc
			insts.EncodeDPRegShift(al, insts.OpMOV, false, 3, 0, 15, insts.ShiftLSL, 5), // MOV r3, pc, LSL r5
			insts.EncodeDPReg(al, insts.OpADD, false, 4, 15, 1, insts.ShiftLSL, 0),      // ADD r4, pc, r1
		),
		Expected: Expectation{
			Registers: map[uint8]uint32{
				0: ProgramAddr + 0x4,
				2: ProgramAddr + 0x4,
				3: ProgramAddr + 0xC,
				4: ProgramAddr + 0x10,
			},
			Instructions: 4,
		},
	}
}

// 6. Exception Return - MOVS pc, lr restores the saved flags
func exceptionReturn() Benchmark {
	return Benchmark{
		Name:        "exception_return",
		Description: "MOVS pc, lr skips an instruction and restores CPSR from SPSR",
		Setup: func(regFile *emu.RegFile) {
			regFile.WriteReg(14, ProgramAddr+0xC)
			regFile.SPSR = emu.PSR{N: true, C: true}
		},
		Program: insts.BuildProgram(
			insts.EncodeDPImm(al, insts.OpMOV, false, 0, 0, 1, 0),
			insts.EncodeDPReg(al, insts.OpMOV, true, 15, 0, 14, insts.ShiftLSL, 0), // MOVS pc, lr
			insts.EncodeDPImm(al, insts.OpMOV, false, 0, 0, 99, 0),
			insts.EncodeDPImm(al, insts.OpADD, false, 1, 0, 2, 0),
		),
		Expected: Expectation{
			Registers:    map[uint8]uint32{0: 1, 1: 3},
			Flags:        psr(emu.PSR{N: true, C: true}),
			Instructions: 3,
		},
	}
}

// 7. Branch Exchange - BX to a computed ARM-state target
func branchExchange() Benchmark {
	return Benchmark{
		Name:        "branch_exchange",
		Description: "BX over one instruction to a word-aligned target",
		Program: insts.BuildProgram(
			insts.EncodeDPImm(al, insts.OpADD, false, 0, 15, 12, 0), // ADD r0, pc, #12
			insts.EncodeBX(al, 0),
			insts.EncodeDPImm(al, insts.OpMOV, false, 1, 0, 99, 0),
			insts.EncodeDPImm(al, insts.OpMOV, false, 1, 0, 5, 0),
		),
		Expected: Expectation{
			Registers:    map[uint8]uint32{0: ProgramAddr + 0xC, 1: 5},
			Flags:        psr(emu.PSR{}),
			Instructions: 3,
		},
	}
}

// 8. BIC/MVN Logic - logical operations with rotated immediates
func bicMvnLogic() Benchmark {
	return Benchmark{
		Name:        "bic_mvn_logic",
		Description: "BIC, MVN, EOR, ORR and TST with rotated immediates",
		Setup: func(regFile *emu.RegFile) {
			regFile.WriteReg(0, 0xFF00FF00)
		},
		Program: insts.BuildProgram(
			insts.EncodeDPImm(al, insts.OpBIC, false, 1, 0, 0xFF, 4), // BIC r1, r0, #0xFF000000
			insts.EncodeDPReg(al, insts.OpMVN, false, 2, 0, 0, insts.ShiftLSL, 0),
			insts.EncodeDPReg(al, insts.OpEOR, false, 3, 1, 2, insts.ShiftLSL, 0),
			insts.EncodeDPImm(al, insts.OpORR, false, 4, 3, 0x02, 1), // ORR r4, r3, #0x80000000
			insts.EncodeDPImm(al, insts.OpTST, true, 0, 4, 0x02, 1),  // TST r4, #0x80000000
		),
		Expected: Expectation{
			Registers: map[uint8]uint32{
				1: 0x0000FF00,
				2: 0x00FF00FF,
				3: 0x00FFFFFF,
				4: 0x80FFFFFF,
			},
			Flags:        psr(emu.PSR{N: true, C: true}),
			Instructions: 5,
		},
	}
}
