package insts

import (
	"fmt"
	"strings"
)

var opNames = [...]string{
	"AND", "EOR", "SUB", "RSB", "ADD", "ADC", "SBC", "RSC",
	"TST", "TEQ", "CMP", "CMN", "ORR", "MOV", "BIC", "MVN",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", op)
}

var condNames = [...]string{
	"EQ", "NE", "CS", "CC", "MI", "PL", "VS", "VC",
	"HI", "LS", "GE", "LT", "GT", "LE", "AL", "NV",
}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("Cond(%d)", c)
}

// suffix is the mnemonic suffix of the condition; AL has none.
func (c Cond) suffix() string {
	if c == CondAL {
		return ""
	}
	return c.String()
}

var shiftNames = [...]string{"LSL", "LSR", "ASR", "ROR"}

func (s ShiftType) String() string {
	if int(s) < len(shiftNames) {
		return shiftNames[s]
	}
	return fmt.Sprintf("ShiftType(%d)", s)
}

var formatNames = [...]string{
	FormatUndefined:           "undefined",
	FormatDPReg:               "data-processing register",
	FormatDPImm:               "data-processing immediate",
	FormatPSRTransferReg:      "psr-transfer register",
	FormatPSRTransferImm:      "psr-transfer immediate",
	FormatMultiply:            "multiply",
	FormatMultiplyLong:        "multiply-long",
	FormatSwap:                "swap",
	FormatBranchExchange:      "branch-exchange",
	FormatHalfwordTransferReg: "halfword-transfer register",
	FormatHalfwordTransferImm: "halfword-transfer immediate",
	FormatSingleTransferImm:   "single-transfer immediate",
	FormatSingleTransferReg:   "single-transfer register",
	FormatBlockTransfer:       "block-transfer",
	FormatBranch:              "branch",
	FormatBranchLink:          "branch-link",
	FormatCoprocTransfer:      "coprocessor-transfer",
	FormatCoprocDataOp:        "coprocessor-data",
	FormatCoprocRegTransfer:   "coprocessor-register",
	FormatSoftwareInterrupt:   "software-interrupt",
}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", f)
}

// RegName returns the assembler name of a register (r0-r12, sp, lr, pc).
func RegName(reg uint8) string {
	switch reg {
	case 13:
		return "sp"
	case 14:
		return "lr"
	case 15:
		return "pc"
	}
	return fmt.Sprintf("r%d", reg)
}

// ParseRegister converts an assembler register name to its index.
func ParseRegister(name string) (uint8, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch lower {
	case "sp":
		return 13, nil
	case "lr":
		return 14, nil
	case "pc":
		return 15, nil
	}

	var reg uint8
	if _, err := fmt.Sscanf(lower, "r%d", &reg); err != nil || reg > 15 ||
		fmt.Sprintf("r%d", reg) != lower {
		return 0, fmt.Errorf("invalid register name %q", name)
	}
	return reg, nil
}

// String renders the instruction in assembler syntax. Classes without an
// execution body are rendered by family name.
func (i *Instruction) String() string {
	switch i.Format {
	case FormatDPReg, FormatDPImm:
		return i.dataProcessingString()
	case FormatBranchExchange:
		return fmt.Sprintf("BX%s %s", i.Cond.suffix(), RegName(i.Rn))
	case FormatUndefined:
		return fmt.Sprintf("UNDEFINED 0x%08X", i.Word)
	}
	return fmt.Sprintf("%s%s (0x%08X)", i.Format, i.Cond.suffix(), i.Word)
}

func (i *Instruction) dataProcessingString() string {
	mnemonic := i.Op.String() + i.Cond.suffix()
	if i.SetFlags && !i.Op.IsTest() {
		mnemonic += "S"
	}

	op2 := i.operand2String()
	switch {
	case i.Op == OpMOV || i.Op == OpMVN:
		return fmt.Sprintf("%s %s, %s", mnemonic, RegName(i.Rd), op2)
	case i.Op.IsTest():
		return fmt.Sprintf("%s %s, %s", mnemonic, RegName(i.Rn), op2)
	}
	return fmt.Sprintf("%s %s, %s, %s", mnemonic, RegName(i.Rd), RegName(i.Rn), op2)
}

func (i *Instruction) operand2String() string {
	if i.Format == FormatDPImm {
		return fmt.Sprintf("#0x%X", i.ImmValue())
	}

	rm := RegName(i.Rm)
	if i.ShiftByReg {
		return fmt.Sprintf("%s, %s %s", rm, i.ShiftType, RegName(i.Rs))
	}

	switch {
	case i.ShiftAmount != 0:
		return fmt.Sprintf("%s, %s #%d", rm, i.ShiftType, i.ShiftAmount)
	case i.ShiftType == ShiftLSR || i.ShiftType == ShiftASR:
		return fmt.Sprintf("%s, %s #32", rm, i.ShiftType)
	case i.ShiftType == ShiftROR:
		return rm + ", RRX"
	}
	return rm
}
