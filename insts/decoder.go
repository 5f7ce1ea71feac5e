// Package insts provides ARM32 instruction definitions and decoding.
package insts

import "math/bits"

// Op represents a data-processing opcode (instruction bits 24-21).
type Op uint8

// Data-processing opcodes, numbered by their encoding.
const (
	OpAND Op = iota // Rd = Rn AND Op2
	OpEOR           // Rd = Rn EOR Op2
	OpSUB           // Rd = Rn - Op2
	OpRSB           // Rd = Op2 - Rn
	OpADD           // Rd = Rn + Op2
	OpADC           // Rd = Rn + Op2 + C
	OpSBC           // Rd = Rn - Op2 - NOT C
	OpRSC           // Rd = Op2 - Rn - NOT C
	OpTST           // flags of Rn AND Op2
	OpTEQ           // flags of Rn EOR Op2
	OpCMP           // flags of Rn - Op2
	OpCMN           // flags of Rn + Op2
	OpORR           // Rd = Rn OR Op2
	OpMOV           // Rd = Op2
	OpBIC           // Rd = Rn AND NOT Op2
	OpMVN           // Rd = NOT Op2
)

// IsTest reports whether the opcode only updates flags (TST, TEQ, CMP, CMN).
func (op Op) IsTest() bool {
	return op >= OpTST && op <= OpCMN
}

// Format represents an instruction class.
type Format uint8

// Instruction formats.
const (
	FormatUndefined           Format = iota
	FormatDPReg                      // Data Processing (Register)
	FormatDPImm                      // Data Processing (Immediate)
	FormatPSRTransferReg             // MRS / MSR register form
	FormatPSRTransferImm             // MSR immediate form
	FormatMultiply                   // MUL / MLA
	FormatMultiplyLong               // UMULL / UMLAL / SMULL / SMLAL
	FormatSwap                       // SWP / SWPB
	FormatBranchExchange             // BX
	FormatHalfwordTransferReg        // LDRH / STRH / LDRSB / LDRSH, register offset
	FormatHalfwordTransferImm        // LDRH / STRH / LDRSB / LDRSH, immediate offset
	FormatSingleTransferImm          // LDR / STR, immediate offset
	FormatSingleTransferReg          // LDR / STR, register offset
	FormatBlockTransfer              // LDM / STM
	FormatBranch                     // B
	FormatBranchLink                 // BL
	FormatCoprocTransfer             // LDC / STC
	FormatCoprocDataOp               // CDP
	FormatCoprocRegTransfer          // MRC / MCR
	FormatSoftwareInterrupt          // SWI
)

// NumFormats is the number of instruction formats.
const NumFormats = int(FormatSoftwareInterrupt) + 1

// Cond represents an ARM condition code.
type Cond uint8

// ARM condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always (unconditional)
	CondNV Cond = 0b1111 // Never (ARMv4)
)

// ShiftType represents a shift type for register operands.
type ShiftType uint8

// Shift types.
const (
	ShiftLSL ShiftType = 0b00 // Logical shift left
	ShiftLSR ShiftType = 0b01 // Logical shift right
	ShiftASR ShiftType = 0b10 // Arithmetic shift right
	ShiftROR ShiftType = 0b11 // Rotate right
)

// Instruction represents a decoded ARM32 instruction.
type Instruction struct {
	Word   uint32 // Raw instruction word
	Format Format // Instruction class
	Cond   Cond   // Condition field (bits 31-28)

	// Data-processing fields
	Op       Op    // Opcode (bits 24-21)
	SetFlags bool  // S bit (bit 20)
	Rd       uint8 // Destination register
	Rn       uint8 // First operand register
	Rm       uint8 // Second operand register (register format)
	Rs       uint8 // Shift-amount register (register-shift format)

	// Immediate operand: Imm ROR (2 * Rotate)
	Imm    uint32
	Rotate uint8

	// Shift for register operand
	ShiftType   ShiftType // Type of shift applied to Rm
	ShiftByReg  bool      // Shift amount comes from Rs
	ShiftAmount uint8     // Immediate shift amount (bits 11-7)

	// PreIndexed is set for the pre-indexed half of the transfer families
	// and for category 0x1 halfword transfers.
	PreIndexed bool
}

// ImmValue returns the rotated immediate operand.
func (i *Instruction) ImmValue() uint32 {
	return bits.RotateLeft32(i.Imm, -2*int(i.Rotate))
}

// Decoder decodes ARM32 machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new ARM32 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit ARM instruction word.
//
// The condition field is extracted but not evaluated. Classification follows
// bits 27-24 first and then the guard chain of each category.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{
		Word:   word,
		Format: FormatUndefined,
		Cond:   Cond(word >> 28),
	}

	category := (word >> 24) & 0xF // bits [27:24]
	pre := category&0x1 == 1

	switch category {
	case 0x0, 0x1:
		d.decodeGroupZero(word, pre, inst)
	case 0x2, 0x3:
		d.decodeDataProcessing(word, true, inst)
	case 0x4, 0x5:
		inst.Format = FormatSingleTransferImm
		inst.PreIndexed = pre
	case 0x6, 0x7:
		if bit(word, 4) {
			break
		}
		inst.Format = FormatSingleTransferReg
		inst.PreIndexed = pre
	case 0x8, 0x9:
		inst.Format = FormatBlockTransfer
		inst.PreIndexed = pre
	case 0xA:
		inst.Format = FormatBranch
	case 0xB:
		inst.Format = FormatBranchLink
	case 0xC, 0xD:
		inst.Format = FormatCoprocTransfer
		inst.PreIndexed = pre
	case 0xE:
		if bit(word, 4) {
			inst.Format = FormatCoprocRegTransfer
		} else {
			inst.Format = FormatCoprocDataOp
		}
	case 0xF:
		inst.Format = FormatSoftwareInterrupt
	}

	return inst
}

// decodeGroupZero walks the guard chain shared by categories 0x0 and 0x1.
func (d *Decoder) decodeGroupZero(word uint32, pre bool, inst *Instruction) {
	switch {
	case pre && d.isBranchExchange(word):
		inst.Format = FormatBranchExchange
		inst.Rn = uint8(word & 0xF)
	case !bit(word, 4) || !bit(word, 7):
		d.decodeDataProcessing(word, false, inst)
	case (word>>5)&0x3 == 0:
		d.decodeMultiplyOrSwap(word, pre, inst)
	default:
		d.decodeHalfwordTransfer(word, pre, inst)
	}
}

// isBranchExchange checks for BX: bits [23:4] == 0x2FFF1.
func (d *Decoder) isBranchExchange(word uint32) bool {
	return word&0x00FFFFF0 == 0x002FFF10
}

// decodeDataProcessing decodes both operand forms.
// Immediate: cond | 001 | opcode | S | Rn | Rd | rotate | imm8
// Register:  cond | 000 | opcode | S | Rn | Rd | shift | Rm
func (d *Decoder) decodeDataProcessing(word uint32, immediate bool, inst *Instruction) {
	inst.Op = Op((word >> 21) & 0xF)    // bits [24:21]
	inst.SetFlags = bit(word, 20)       // bit 20
	inst.Rn = uint8((word >> 16) & 0xF) // bits [19:16]
	inst.Rd = uint8((word >> 12) & 0xF) // bits [15:12]

	if immediate {
		inst.Format = FormatDPImm
		inst.Rotate = uint8((word >> 8) & 0xF) // bits [11:8]
		inst.Imm = word & 0xFF                 // bits [7:0]
	} else {
		inst.Format = FormatDPReg
		inst.Rm = uint8(word & 0xF)                   // bits [3:0]
		inst.ShiftType = ShiftType((word >> 5) & 0x3) // bits [6:5]
		inst.ShiftByReg = bit(word, 4)
		if inst.ShiftByReg {
			inst.Rs = uint8((word >> 8) & 0xF) // bits [11:8]
		} else {
			inst.ShiftAmount = uint8((word >> 7) & 0x1F) // bits [11:7]
		}
	}

	// The test opcodes without S encode the status register transfers.
	if !inst.SetFlags && inst.Op.IsTest() {
		if immediate {
			inst.Format = FormatPSRTransferImm
		} else {
			inst.Format = FormatPSRTransferReg
		}
	}
}

// decodeMultiplyOrSwap handles the bits 7,4 set / bits 6,5 clear pattern.
// Category 0x0 carries the multiplies, category 0x1 the swap.
func (d *Decoder) decodeMultiplyOrSwap(word uint32, pre bool, inst *Instruction) {
	sub := (word >> 20) & 0xF // bits [23:20]

	if pre {
		if sub&0xB == 0 && (word>>8)&0xF == 0 {
			inst.Format = FormatSwap
		}
		return
	}

	switch {
	case sub&0xC == 0:
		inst.Format = FormatMultiply
	case sub&0x8 != 0:
		inst.Format = FormatMultiplyLong
	}
}

// decodeHalfwordTransfer handles the halfword and signed transfers.
func (d *Decoder) decodeHalfwordTransfer(word uint32, pre bool, inst *Instruction) {
	switch {
	case bit(word, 22):
		inst.Format = FormatHalfwordTransferImm
	case (word>>8)&0xF == 0:
		inst.Format = FormatHalfwordTransferReg
	default:
		return
	}
	inst.PreIndexed = pre
}

func bit(word uint32, n uint) bool {
	return (word>>n)&0x1 == 1
}
