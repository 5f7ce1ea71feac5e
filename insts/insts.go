// Package insts provides ARM32 instruction definitions and decoding.
//
// This package classifies 32-bit ARM machine words into instruction families
// and extracts the fields the execution core consumes. It supports:
//   - Data Processing (Immediate and Register): the 16 ALU opcodes with
//     immediate rotate, immediate-amount and register-amount shifts
//   - PSR transfers (MRS/MSR), routed but not decoded further
//   - Branch and Exchange (BX)
//   - Multiply, swap, halfword/single/block transfers, branches,
//     coprocessor and software interrupt families, routed by class only
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0xE0810002) // ADD r0, r1, r2
//	fmt.Printf("Op: %v, Rd: %d, Rn: %d, Rm: %d\n", inst.Op, inst.Rd, inst.Rn, inst.Rm)
package insts
