package insts

import "encoding/binary"

// EncodeDPImm encodes a data-processing instruction with an immediate
// operand: imm8 rotated right by 2*rotate.
func EncodeDPImm(cond Cond, op Op, setFlags bool, rd, rn, imm8, rotate uint8) uint32 {
	return uint32(cond)<<28 | 1<<25 | uint32(op&0xF)<<21 | sBit(setFlags) |
		uint32(rn&0xF)<<16 | uint32(rd&0xF)<<12 | uint32(rotate&0xF)<<8 | uint32(imm8)
}

// EncodeDPReg encodes a data-processing instruction whose second operand is
// Rm shifted by an immediate amount.
func EncodeDPReg(cond Cond, op Op, setFlags bool, rd, rn, rm uint8, shift ShiftType, amount uint8) uint32 {
	return uint32(cond)<<28 | uint32(op&0xF)<<21 | sBit(setFlags) |
		uint32(rn&0xF)<<16 | uint32(rd&0xF)<<12 | uint32(amount&0x1F)<<7 |
		uint32(shift&0x3)<<5 | uint32(rm&0xF)
}

// EncodeDPRegShift encodes a data-processing instruction whose second
// operand is Rm shifted by the low byte of Rs.
func EncodeDPRegShift(cond Cond, op Op, setFlags bool, rd, rn, rm uint8, shift ShiftType, rs uint8) uint32 {
	return uint32(cond)<<28 | uint32(op&0xF)<<21 | sBit(setFlags) |
		uint32(rn&0xF)<<16 | uint32(rd&0xF)<<12 | uint32(rs&0xF)<<8 |
		uint32(shift&0x3)<<5 | 1<<4 | uint32(rm&0xF)
}

// EncodeBX encodes BX Rn.
func EncodeBX(cond Cond, rn uint8) uint32 {
	return uint32(cond)<<28 | 0x012FFF10 | uint32(rn&0xF)
}

// BuildProgram lays out instruction words as a little-endian byte image.
func BuildProgram(words ...uint32) []byte {
	program := make([]byte, 0, len(words)*4)
	for _, w := range words {
		program = binary.LittleEndian.AppendUint32(program, w)
	}
	return program
}

func sBit(setFlags bool) uint32 {
	if setFlags {
		return 1 << 20
	}
	return 0
}
