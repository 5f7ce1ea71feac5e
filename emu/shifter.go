package emu

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/armcore/insts"
)

// ShiftImmediate applies an immediate-amount shift (bits 11-7 of the
// instruction) to value. carry is the current C flag, consumed by RRX and
// passed through when the shift leaves it alone. The second result is the
// shifter carry-out.
//
// An amount of 0 encodes LSL #0 (no shift), LSR #32, ASR #32 and RRX.
func ShiftImmediate(value uint32, shiftType insts.ShiftType, amount uint8, carry bool) (uint32, bool) {
	n := uint(amount & 0x1F)

	switch shiftType {
	case insts.ShiftLSL:
		if n == 0 {
			return value, carry
		}
		return value << n, bitAt(value, 32-n)
	case insts.ShiftLSR:
		if n == 0 {
			return 0, bitAt(value, 31)
		}
		return value >> n, bitAt(value, n-1)
	case insts.ShiftASR:
		if n == 0 {
			return uint32(int32(value) >> 31), bitAt(value, 31)
		}
		return uint32(int32(value) >> n), bitAt(value, n-1)
	case insts.ShiftROR:
		if n == 0 {
			return rrx(value, carry), bitAt(value, 0)
		}
		return bits.RotateLeft32(value, -int(n)), bitAt(value, n-1)
	}

	panic(fmt.Sprintf("emu: invalid shift type %d", shiftType))
}

// ShiftRegister applies a register-amount shift. Only the low byte of rs is
// the amount. Rotations use the amount modulo 32, and an effective rotation
// of zero yields 0 rather than the unrotated value.
func ShiftRegister(value uint32, shiftType insts.ShiftType, rs uint32, carry bool) (uint32, bool) {
	n := uint(rs & 0xFF)

	switch shiftType {
	case insts.ShiftLSL:
		switch {
		case n == 0:
			return value, carry
		case n < 32:
			return value << n, bitAt(value, 32-n)
		case n == 32:
			return 0, bitAt(value, 0)
		}
		return 0, false
	case insts.ShiftLSR:
		switch {
		case n == 0:
			return value, carry
		case n < 32:
			return value >> n, bitAt(value, n-1)
		case n == 32:
			return 0, bitAt(value, 31)
		}
		return 0, false
	case insts.ShiftASR:
		switch {
		case n == 0:
			return value, carry
		case n < 32:
			return uint32(int32(value) >> n), bitAt(value, n-1)
		}
		return uint32(int32(value) >> 31), bitAt(value, 31)
	case insts.ShiftROR:
		rot := n & 0x1F
		switch {
		case n == 0:
			return 0, carry
		case rot == 0:
			return 0, bitAt(value, 31)
		}
		return bits.RotateLeft32(value, -int(rot)), bitAt(value, rot-1)
	}

	panic(fmt.Sprintf("emu: invalid shift type %d", shiftType))
}

// RotateImmediate expands an 8-bit immediate rotated right by 2*rotate.
// A non-zero rotation produces bit 31 of the result as carry-out.
func RotateImmediate(imm8 uint32, rotate uint8, carry bool) (uint32, bool) {
	n := 2 * uint(rotate&0xF)
	value := bits.RotateLeft32(imm8, -int(n))
	if n == 0 {
		return value, carry
	}
	return value, bitAt(imm8, n-1)
}

func rrx(value uint32, carry bool) uint32 {
	if carry {
		return 0x80000000 | value>>1
	}
	return value >> 1
}

func bitAt(value uint32, n uint) bool {
	return (value>>n)&0x1 == 0x1
}
