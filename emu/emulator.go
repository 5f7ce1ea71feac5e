// Package emu provides functional ARM32 emulation.
package emu

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/armcore/codestore"
	"github.com/sarchlab/armcore/insts"
)

var (
	// ErrUndefinedInstruction is returned for words matching no instruction
	// class when no undefined-instruction handler is registered.
	ErrUndefinedInstruction = errors.New("undefined instruction")

	// ErrUnimplemented is returned by Run when an instruction class has no
	// execution body and no handler.
	ErrUnimplemented = errors.New("unimplemented instruction class")

	// ErrMaxInstructions is returned once the instruction limit is reached.
	ErrMaxInstructions = errors.New("max instructions reached")
)

// CodeStore is the read-only byte source instructions are fetched from.
type CodeStore interface {
	Read8(addr uint32) uint8
}

// BoundedCodeStore is a CodeStore that knows which addresses it holds.
// Run stops once the PC leaves it.
type BoundedCodeStore interface {
	CodeStore
	Contains(addr uint32) bool
}

// Handler executes an instruction class that has no built-in body. It may
// update registers and flags through RegFile and change control flow with
// Redirect.
type Handler func(e *Emulator, inst *insts.Instruction) error

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Inst is the decoded instruction. It is nil when the condition failed.
	Inst *insts.Instruction

	// Skipped is true if the condition check failed.
	Skipped bool

	// Unimplemented is true if the instruction class has neither a body nor
	// a registered handler.
	Unimplemented bool

	// Redirected is true if the instruction wrote the PC.
	Redirected bool

	// Err is set if an error occurred during execution.
	Err error
}

// Emulator executes ARM32 instructions functionally.
type Emulator struct {
	regFile  *RegFile
	code     CodeStore
	decoder  *insts.Decoder
	handlers map[insts.Format]Handler

	// Execution units
	alu        *ALU
	branchUnit *BranchUnit

	// I/O
	stderr io.Writer
	trace  io.Writer

	// Execution state
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithStderr sets a custom stderr writer.
func WithStderr(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stderr = w
	}
}

// WithTrace writes one line per executed instruction to w.
func WithTrace(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.trace = w
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithCodeStore sets the store instructions are fetched from.
func WithCodeStore(store CodeStore) EmulatorOption {
	return func(e *Emulator) {
		e.code = store
	}
}

// WithHandler registers the body of an instruction class. Handlers for
// data-processing and BX are never consulted since those classes execute
// natively.
func WithHandler(format insts.Format, handler Handler) EmulatorOption {
	return func(e *Emulator) {
		e.handlers[format] = handler
	}
}

// NewEmulator creates a new ARM32 emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	regFile := &RegFile{}

	e := &Emulator{
		regFile:  regFile,
		code:     codestore.NewROM(0, nil),
		decoder:  insts.NewDecoder(),
		handlers: make(map[insts.Format]Handler),
		stderr:   os.Stderr,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.alu = NewALU(regFile)
	e.branchUnit = NewBranchUnit(regFile)

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// CodeStore returns the store instructions are fetched from.
func (e *Emulator) CodeStore() CodeStore {
	return e.code
}

// InstructionCount returns the number of instructions stepped, including
// those whose condition failed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// LoadProgram installs a program and sets the entry point.
// The program can be either a []byte placed at entry or a CodeStore.
func (e *Emulator) LoadProgram(entry uint32, program interface{}) {
	switch p := program.(type) {
	case []byte:
		e.code = codestore.NewROM(entry, p)
	case CodeStore:
		e.code = p
	}
	e.regFile.PC = entry
}

// Reset clears registers, flags and the instruction count. The code store
// is kept.
func (e *Emulator) Reset() {
	e.regFile = &RegFile{}
	e.instructionCount = 0

	e.alu = NewALU(e.regFile)
	e.branchUnit = NewBranchUnit(e.regFile)
}

// Redirect branches to target. Handlers use it to change control flow.
func (e *Emulator) Redirect(target uint32) {
	e.branchUnit.Branch(target)
}

// Step executes the instruction at the PC and advances the PC past it
// unless the instruction redirected.
func (e *Emulator) Step() StepResult {
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	pc := e.regFile.PC
	result := e.Execute(pc)
	if !result.Redirected {
		e.regFile.PC = pc + 4
	}

	e.instructionCount++

	return result
}

// Run steps until the PC leaves a bounded code store or an error occurs.
// Unimplemented instruction classes stop the run with ErrUnimplemented.
func (e *Emulator) Run() error {
	for {
		if bounded, ok := e.code.(BoundedCodeStore); ok && !bounded.Contains(e.regFile.PC) {
			return nil
		}

		pc := e.regFile.PC
		result := e.Step()

		err := result.Err
		if err == nil && result.Unimplemented {
			err = fmt.Errorf("%w: %s at PC=0x%08X", ErrUnimplemented, result.Inst.Format, pc)
		}
		if err != nil {
			_, _ = fmt.Fprintf(e.stderr, "Emulation error: %v\n", err)
			return err
		}
	}
}

// Execute runs the instruction at pc: fetch, condition check, decode and
// dispatch. The PC holds pc while the instruction executes. The caller
// advances the PC unless the result is Redirected. A failed condition
// leaves all state untouched, the PC included.
func (e *Emulator) Execute(pc uint32) StepResult {
	word := e.fetch(pc)

	if !e.branchUnit.CheckCondition(insts.Cond(word >> 28)) {
		if e.trace != nil {
			e.writeTrace(pc, word, e.decoder.Decode(word).String()+" [skipped]")
		}
		return StepResult{Skipped: true}
	}

	e.regFile.PC = pc
	e.branchUnit.clearTaken()

	inst := e.decoder.Decode(word)
	result := e.execute(inst)
	result.Inst = inst
	result.Redirected = e.branchUnit.Taken()

	if e.trace != nil {
		e.writeTrace(pc, word, inst.String())
	}

	return result
}

// fetch reads the little-endian word at addr one byte at a time.
func (e *Emulator) fetch(addr uint32) uint32 {
	return uint32(e.code.Read8(addr)) |
		uint32(e.code.Read8(addr+1))<<8 |
		uint32(e.code.Read8(addr+2))<<16 |
		uint32(e.code.Read8(addr+3))<<24
}

// execute dispatches a decoded instruction.
func (e *Emulator) execute(inst *insts.Instruction) StepResult {
	switch inst.Format {
	case insts.FormatDPReg, insts.FormatDPImm:
		e.executeDataProcessing(inst)
	case insts.FormatBranchExchange:
		e.branchUnit.BX(inst.Rn)
	default:
		return e.executeHandler(inst)
	}
	return StepResult{}
}

func (e *Emulator) executeHandler(inst *insts.Instruction) StepResult {
	pc := e.regFile.PC

	handler, ok := e.handlers[inst.Format]
	if !ok {
		if inst.Format == insts.FormatUndefined {
			return StepResult{
				Err: fmt.Errorf("%w 0x%08X at PC=0x%08X", ErrUndefinedInstruction, inst.Word, pc),
			}
		}
		return StepResult{Unimplemented: true}
	}

	if err := handler(e, inst); err != nil {
		return StepResult{Err: fmt.Errorf("%s at PC=0x%08X: %w", inst.Format, pc, err)}
	}
	return StepResult{}
}

// executeDataProcessing runs one of the 16 ALU operations and commits the
// result through the PC-aware write paths.
func (e *Emulator) executeDataProcessing(inst *insts.Instruction) {
	op1, op2, shifterCarry := e.operands(inst)

	// A flag-setting rotated immediate commits its carry-out before the
	// operation, so ADCS, SBCS and RSCS see it as their carry-in.
	if inst.Format == insts.FormatDPImm && inst.SetFlags && inst.Rotate > 0 {
		e.regFile.CPSR.C = shifterCarry
	}

	result, write := e.alu.Execute(inst.Op, op1, op2, inst.SetFlags, shifterCarry)
	if !write {
		return
	}

	if inst.SetFlags {
		e.writeRegisterWithFlags(inst.Rd, result)
	} else {
		e.writeRegister(inst.Rd, result)
	}
}

// operands fetches operand 1 and the shifted operand 2 with its carry-out.
// The immediate form and immediate-amount shifts read r15 as the PC; the
// register form reads Rn, and register-amount shifts read Rm and Rs, as
// PC + PipelineOffset.
func (e *Emulator) operands(inst *insts.Instruction) (op1, op2 uint32, carry bool) {
	carry = e.regFile.CPSR.C

	switch {
	case inst.Format == insts.FormatDPImm:
		op1 = e.regFile.ReadReg(inst.Rn)
		op2, carry = RotateImmediate(inst.Imm, inst.Rotate, carry)
	case inst.ShiftByReg:
		op1 = e.regFile.ReadOperandReg(inst.Rn)
		rm := e.regFile.ReadOperandReg(inst.Rm)
		rs := e.regFile.ReadOperandReg(inst.Rs)
		op2, carry = ShiftRegister(rm, inst.ShiftType, rs, carry)
	default:
		op1 = e.regFile.ReadOperandReg(inst.Rn)
		op2, carry = ShiftImmediate(e.regFile.ReadReg(inst.Rm), inst.ShiftType, inst.ShiftAmount, carry)
	}

	return op1, op2, carry
}

// writeRegister commits a result. Writing r15 branches to the word-aligned
// value.
func (e *Emulator) writeRegister(reg uint8, value uint32) {
	if reg == 15 {
		e.branchUnit.Branch(value &^ 0x3)
		return
	}
	e.regFile.WriteReg(reg, value)
}

// writeRegisterWithFlags commits a flag-setting result. Writing r15 first
// restores CPSR from SPSR and then branches, aligned for the restored state.
func (e *Emulator) writeRegisterWithFlags(reg uint8, value uint32) {
	if reg != 15 {
		e.regFile.WriteReg(reg, value)
		return
	}

	e.regFile.RestoreCPSR()
	if e.regFile.CPSR.T {
		value &^= 0x1
	} else {
		value &^= 0x3
	}
	e.branchUnit.Branch(value)
}

func (e *Emulator) writeTrace(pc, word uint32, text string) {
	_, _ = fmt.Fprintf(e.trace, "0x%08X: %08X  %s\n", pc, word, text)
}
