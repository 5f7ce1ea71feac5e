package emu_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/armcore/codestore"
	"github.com/sarchlab/armcore/emu"
	"github.com/sarchlab/armcore/insts"
)

const programBase = 0x1000

func dpImm(op insts.Op, setFlags bool, rd, rn, imm8, rotate uint8) uint32 {
	return insts.EncodeDPImm(insts.CondAL, op, setFlags, rd, rn, imm8, rotate)
}

func dpReg(op insts.Op, setFlags bool, rd, rn, rm uint8) uint32 {
	return insts.EncodeDPReg(insts.CondAL, op, setFlags, rd, rn, rm, insts.ShiftLSL, 0)
}

var _ = Describe("Emulator", func() {
	var (
		e      *emu.Emulator
		stderr *bytes.Buffer
	)

	load := func(words ...uint32) {
		e.LoadProgram(programBase, insts.BuildProgram(words...))
	}

	BeforeEach(func() {
		stderr = &bytes.Buffer{}
		e = emu.NewEmulator(emu.WithStderr(stderr))
	})

	Describe("Data processing", func() {
		It("should execute ADD r0, r0, #1 from raw bytes", func() {
			e.LoadProgram(programBase, []byte{0x01, 0x00, 0x80, 0xE2})
			e.RegFile().WriteReg(0, 5)
			e.RegFile().CPSR = emu.PSR{N: true, C: true}

			result := e.Step()

			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.Inst.Format).To(Equal(insts.FormatDPImm))
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(6)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{N: true, C: true}))
			Expect(e.RegFile().PC).To(Equal(uint32(programBase + 4)))
		})

		It("should execute ADD r0, r1, r2 without touching flags", func() {
			load(dpReg(insts.OpADD, false, 0, 1, 2))
			e.RegFile().WriteReg(1, 0xFFFFFFFF)
			e.RegFile().WriteReg(2, 1)

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{}))
		})

		// Flag-setting register forms run the full barrel shifter. Operand 2
		// is the shifted Rm, never a placeholder zero.
		It("should execute ADDS r0, r1, r2 and set flags", func() {
			load(dpReg(insts.OpADD, true, 0, 1, 2))
			e.RegFile().WriteReg(1, 0xFFFFFFFF)
			e.RegFile().WriteReg(2, 1)

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{Z: true, C: true}))
		})

		It("should never write rd for TST and CMP", func() {
			load(
				dpImm(insts.OpTST, true, 3, 1, 0x1, 0),
				dpReg(insts.OpCMP, true, 4, 1, 2),
			)
			e.RegFile().WriteReg(1, 0x10)
			e.RegFile().WriteReg(2, 0x10)
			e.RegFile().WriteReg(3, 0xDEAD)
			e.RegFile().WriteReg(4, 0xBEEF)

			e.Step()
			Expect(e.RegFile().CPSR.Z).To(BeTrue())
			e.Step()

			Expect(e.RegFile().ReadReg(3)).To(Equal(uint32(0xDEAD)))
			Expect(e.RegFile().ReadReg(4)).To(Equal(uint32(0xBEEF)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{Z: true, C: true}))
		})

		It("should set C from a rotated immediate for logical operations", func() {
			load(dpImm(insts.OpMOV, true, 0, 0, 0xFF, 4))

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0xFF000000)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{N: true, C: true}))
		})

		It("should keep C for an unrotated immediate", func() {
			load(dpImm(insts.OpAND, true, 0, 1, 0x1, 0))
			e.RegFile().WriteReg(1, 0x3)
			e.RegFile().CPSR.C = true

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(1)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{C: true}))
		})

		It("should use the rotated immediate carry-out as the carry-in for ADCS", func() {
			// ADCS r0, r1, #0x80000000: the rotation produces a carry-out of 1
			load(dpImm(insts.OpADC, true, 0, 1, 0x02, 1))

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0x80000001)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{N: true}))
		})

		It("should use the rotated immediate carry-out as the carry-in for SBCS", func() {
			// SBCS r0, r1, #0x80000000 with C clear beforehand
			load(dpImm(insts.OpSBC, true, 0, 1, 0x02, 1))
			e.RegFile().WriteReg(1, 0x80000000)

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{Z: true, C: true}))
		})

		It("should use the carry from before the instruction without S", func() {
			// ADC r0, r1, #0x80000000
			load(dpImm(insts.OpADC, false, 0, 1, 0x02, 1))

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0x80000000)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{}))
		})

		It("should set C from an immediate-amount register shift", func() {
			load(insts.EncodeDPReg(insts.CondAL, insts.OpMOV, true, 0, 0, 1, insts.ShiftLSL, 1))
			e.RegFile().WriteReg(1, 0x80000000)

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{Z: true, C: true}))
		})

		It("should set C from RRX", func() {
			load(insts.EncodeDPReg(insts.CondAL, insts.OpMOV, true, 0, 0, 1, insts.ShiftROR, 0))
			e.RegFile().WriteReg(1, 0x3)
			e.RegFile().CPSR.C = true

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0x80000001)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{N: true, C: true}))
		})

		It("should keep C for a register shift by zero", func() {
			load(insts.EncodeDPRegShift(insts.CondAL, insts.OpMOV, true, 0, 0, 1, insts.ShiftLSR, 2))
			e.RegFile().WriteReg(1, 0x80000000)
			e.RegFile().WriteReg(2, 0x100)
			e.RegFile().CPSR.C = true

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0x80000000)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{N: true, C: true}))
		})
	})

	Describe("Flag-setting register operands", func() {
		It("should shift Rm by an immediate amount for ADDS", func() {
			// ADDS r0, r1, r2, LSL #2
			load(insts.EncodeDPReg(insts.CondAL, insts.OpADD, true, 0, 1, 2, insts.ShiftLSL, 2))
			e.RegFile().WriteReg(1, 1)
			e.RegFile().WriteReg(2, 3)

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(13)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{}))
		})

		It("should shift Rm by Rs for SUBS", func() {
			// SUBS r0, r1, r2, LSR r3
			load(insts.EncodeDPRegShift(insts.CondAL, insts.OpSUB, true, 0, 1, 2, insts.ShiftLSR, 3))
			e.RegFile().WriteReg(1, 8)
			e.RegFile().WriteReg(2, 0x20)
			e.RegFile().WriteReg(3, 2)

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{Z: true, C: true}))
		})
	})

	Describe("PC-relative operands", func() {
		BeforeEach(func() {
			e.RegFile().WriteReg(1, 0)
		})

		It("should read Rn = pc as PC + 4 in the register form", func() {
			load(dpReg(insts.OpADD, false, 0, 15, 1))
			e.Step()
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(programBase + 4)))
		})

		It("should read Rn = pc as PC in the immediate form", func() {
			load(dpImm(insts.OpADD, false, 0, 15, 0, 0))
			e.Step()
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(programBase)))
		})

		It("should read Rm = pc as PC for an immediate-amount shift", func() {
			load(dpReg(insts.OpMOV, false, 0, 0, 15))
			e.Step()
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(programBase)))
		})

		It("should read Rm = pc as PC + 4 for a register-amount shift", func() {
			load(insts.EncodeDPRegShift(insts.CondAL, insts.OpMOV, false, 0, 0, 15, insts.ShiftLSL, 1))
			e.Step()
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(programBase + 4)))
		})

		It("should read Rs = pc as PC + 4", func() {
			e.RegFile().WriteReg(1, 1)
			// Shift amount is the low byte of 0x1004
			load(insts.EncodeDPRegShift(insts.CondAL, insts.OpMOV, false, 0, 0, 1, insts.ShiftLSL, 15))
			e.Step()
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(1 << 4)))
		})
	})

	Describe("PC writes", func() {
		It("should branch to the word-aligned value for MOV pc, r0", func() {
			load(dpReg(insts.OpMOV, false, 15, 0, 0))
			e.RegFile().WriteReg(0, 0x1003)

			result := e.Step()

			Expect(result.Redirected).To(BeTrue())
			Expect(e.RegFile().PC).To(Equal(uint32(0x1000)))
		})

		It("should restore CPSR and align for ARM state on MOVS pc, lr", func() {
			load(dpReg(insts.OpMOV, true, 15, 0, 14))
			e.RegFile().WriteReg(14, 0x2003)
			e.RegFile().CPSR = emu.PSR{Z: true}
			e.RegFile().SPSR = emu.PSR{N: true, C: true}

			result := e.Step()

			Expect(result.Redirected).To(BeTrue())
			Expect(e.RegFile().PC).To(Equal(uint32(0x2000)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{N: true, C: true}))
		})

		It("should align for the halfword state when the restored T is set", func() {
			load(dpReg(insts.OpMOV, true, 15, 0, 14))
			e.RegFile().WriteReg(14, 0x2003)
			e.RegFile().SPSR = emu.PSR{T: true}

			e.Step()

			Expect(e.RegFile().PC).To(Equal(uint32(0x2002)))
			Expect(e.RegFile().CPSR.T).To(BeTrue())
		})

		It("should restore the saved flags rather than the computed ones", func() {
			// SUBS pc, lr, #4
			load(dpImm(insts.OpSUB, true, 15, 14, 4, 0))
			e.RegFile().WriteReg(14, 0x2004)
			e.RegFile().SPSR = emu.PSR{V: true}

			e.Step()

			Expect(e.RegFile().PC).To(Equal(uint32(0x2000)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{V: true}))
		})

		It("should not restore CPSR for flag-setting writes to other registers", func() {
			load(dpReg(insts.OpMOV, true, 0, 0, 14))
			e.RegFile().WriteReg(14, 0x2003)
			e.RegFile().SPSR = emu.PSR{N: true, T: true}

			result := e.Step()

			Expect(result.Redirected).To(BeFalse())
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0x2003)))
			Expect(e.RegFile().CPSR).To(Equal(emu.PSR{}))
		})
	})

	Describe("Branch and exchange", func() {
		It("should branch and enter the halfword state", func() {
			load(insts.EncodeBX(insts.CondAL, 0))
			e.RegFile().WriteReg(0, 0x3001)

			result := e.Step()

			Expect(result.Redirected).To(BeTrue())
			Expect(e.RegFile().PC).To(Equal(uint32(0x3000)))
			Expect(e.RegFile().CPSR.T).To(BeTrue())
		})
	})

	Describe("Condition gate", func() {
		It("should mutate nothing when the condition fails", func() {
			load(insts.EncodeDPImm(insts.CondEQ, insts.OpADD, true, 0, 0, 1, 0))
			e.RegFile().WriteReg(0, 5)
			e.RegFile().CPSR = emu.PSR{C: true}
			e.RegFile().SPSR = emu.PSR{T: true}
			before := *e.RegFile()

			result := e.Execute(programBase)

			Expect(result.Skipped).To(BeTrue())
			Expect(result.Inst).To(BeNil())
			Expect(*e.RegFile()).To(Equal(before))
		})

		It("should leave the PC alone when the condition fails", func() {
			load(insts.EncodeDPImm(insts.CondEQ, insts.OpADD, false, 0, 0, 1, 0))
			e.RegFile().PC = 0x40

			result := e.Execute(programBase)

			Expect(result.Skipped).To(BeTrue())
			Expect(result.Redirected).To(BeFalse())
			Expect(e.RegFile().PC).To(Equal(uint32(0x40)))
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0)))
		})

		It("should advance past a skipped instruction when stepping", func() {
			load(insts.EncodeDPImm(insts.CondNV, insts.OpMOV, false, 15, 0, 0, 0))

			result := e.Step()

			Expect(result.Skipped).To(BeTrue())
			Expect(e.RegFile().PC).To(Equal(uint32(programBase + 4)))
			Expect(e.InstructionCount()).To(Equal(uint64(1)))
		})

		It("should execute when the condition passes", func() {
			load(insts.EncodeDPImm(insts.CondNE, insts.OpADD, false, 0, 0, 1, 0))

			result := e.Step()

			Expect(result.Skipped).To(BeFalse())
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(1)))
		})
	})

	Describe("Extension hooks", func() {
		It("should tag classes without a body as unimplemented", func() {
			load(0xEA000000) // B

			result := e.Step()

			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.Unimplemented).To(BeTrue())
			Expect(result.Inst.Format).To(Equal(insts.FormatBranch))
			Expect(e.RegFile().PC).To(Equal(uint32(programBase + 4)))
		})

		It("should route PSR transfers to their handler", func() {
			var seen *insts.Instruction
			e = emu.NewEmulator(emu.WithHandler(insts.FormatPSRTransferReg,
				func(em *emu.Emulator, inst *insts.Instruction) error {
					seen = inst
					em.RegFile().WriteReg(inst.Rd, 0xF0000000)
					return nil
				}))
			load(0xE10F0000) // MRS r0, CPSR

			result := e.Step()

			Expect(result.Unimplemented).To(BeFalse())
			Expect(seen).NotTo(BeNil())
			Expect(seen.Word).To(Equal(uint32(0xE10F0000)))
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0xF0000000)))
		})

		It("should let handlers redirect the PC", func() {
			e = emu.NewEmulator(emu.WithHandler(insts.FormatSoftwareInterrupt,
				func(em *emu.Emulator, _ *insts.Instruction) error {
					em.RegFile().WriteReg(14, em.RegFile().PC+4)
					em.Redirect(0x8)
					return nil
				}))
			load(0xEF000000)

			result := e.Step()

			Expect(result.Redirected).To(BeTrue())
			Expect(e.RegFile().PC).To(Equal(uint32(0x8)))
			Expect(e.RegFile().ReadReg(14)).To(Equal(uint32(programBase + 4)))
		})

		It("should wrap handler errors", func() {
			errBus := errors.New("bus error")
			e = emu.NewEmulator(emu.WithHandler(insts.FormatSingleTransferImm,
				func(*emu.Emulator, *insts.Instruction) error { return errBus }))
			load(0xE5910004)

			result := e.Step()

			Expect(result.Err).To(MatchError(errBus))
			Expect(result.Err.Error()).To(ContainSubstring("single-transfer immediate"))
		})

		It("should return ErrUndefinedInstruction without a trap handler", func() {
			load(0xE6000010)

			result := e.Step()

			Expect(errors.Is(result.Err, emu.ErrUndefinedInstruction)).To(BeTrue())
			Expect(result.Err.Error()).To(ContainSubstring("0xE6000010"))
		})

		It("should route undefined words to the trap handler", func() {
			e = emu.NewEmulator(emu.WithHandler(insts.FormatUndefined,
				func(em *emu.Emulator, _ *insts.Instruction) error {
					em.Redirect(0x4)
					return nil
				}))
			load(0xE6000010)

			result := e.Step()

			Expect(result.Err).NotTo(HaveOccurred())
			Expect(e.RegFile().PC).To(Equal(uint32(0x4)))
		})

		It("should not consult handlers for data processing", func() {
			called := false
			e = emu.NewEmulator(emu.WithHandler(insts.FormatDPImm,
				func(*emu.Emulator, *insts.Instruction) error {
					called = true
					return nil
				}))
			load(dpImm(insts.OpMOV, false, 0, 0, 7, 0))

			e.Step()

			Expect(called).To(BeFalse())
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(7)))
		})
	})

	Describe("Run", func() {
		It("should run until the PC leaves the program", func() {
			load(
				dpImm(insts.OpMOV, false, 0, 0, 1, 0),
				dpImm(insts.OpADD, false, 0, 0, 2, 0),
				dpImm(insts.OpADD, false, 0, 0, 3, 0),
			)

			Expect(e.Run()).To(Succeed())
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(6)))
			Expect(e.RegFile().PC).To(Equal(uint32(programBase + 12)))
			Expect(e.InstructionCount()).To(Equal(uint64(3)))
		})

		It("should stop on an unimplemented class", func() {
			load(0xE0000291) // MUL r0, r1, r2

			err := e.Run()

			Expect(errors.Is(err, emu.ErrUnimplemented)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("multiply"))
			Expect(stderr.String()).To(ContainSubstring("Emulation error"))
		})

		It("should stop at the instruction limit", func() {
			e = emu.NewEmulator(emu.WithStderr(stderr), emu.WithMaxInstructions(10))
			// SUB pc, pc, #0 loops on itself: the immediate form reads the PC unadjusted
			load(dpImm(insts.OpSUB, false, 15, 15, 0, 0))

			err := e.Run()

			Expect(err).To(MatchError(emu.ErrMaxInstructions))
			Expect(e.InstructionCount()).To(Equal(uint64(10)))
			Expect(e.RegFile().PC).To(Equal(uint32(programBase)))
		})

		It("should return immediately without a program", func() {
			Expect(e.Run()).To(Succeed())
			Expect(e.InstructionCount()).To(Equal(uint64(0)))
		})

		It("should fetch through a fetch cache", func() {
			rom := codestore.NewROM(programBase, insts.BuildProgram(
				dpImm(insts.OpMOV, false, 0, 0, 1, 0),
				dpImm(insts.OpADD, false, 0, 0, 1, 0),
			))
			cache := codestore.New(codestore.DefaultConfig(), rom)
			e.LoadProgram(programBase, cache)

			Expect(e.Run()).To(Succeed())
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(2)))

			stats := cache.Stats()
			Expect(stats.Reads).To(Equal(uint64(8)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(7)))
		})
	})

	Describe("Trace", func() {
		It("should write one line per instruction", func() {
			trace := &bytes.Buffer{}
			e = emu.NewEmulator(emu.WithTrace(trace))
			load(
				0xE2800001,
				insts.EncodeDPImm(insts.CondEQ, insts.OpADD, false, 0, 0, 1, 0),
			)

			e.Step()
			e.Step()

			Expect(trace.String()).To(Equal(
				"0x00001000: E2800001  ADD r0, r0, #0x1\n" +
					"0x00001004: 02800001  ADDEQ r0, r0, #0x1 [skipped]\n"))
		})
	})

	Describe("Reset", func() {
		It("should clear registers and the instruction count but keep the program", func() {
			load(dpImm(insts.OpMOV, false, 0, 0, 9, 0))
			e.Step()

			e.Reset()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0)))
			Expect(e.InstructionCount()).To(Equal(uint64(0)))
			Expect(e.CodeStore().Read8(programBase)).To(Equal(uint8(9)))
		})
	})
})
