// Package asmemit is a minimal x86-64 streaming code generator built on
// top of jitcore.CodeHolder: a small set of mov/lea/call/jmp/jcc/ret
// instructions, encoded one byte-buffer write at a time with no AST or
// parser in between. Grounded on flapc's Out/X86_64 byte-encoding idiom
// (REX prefixes, ModR/M construction, little-endian immediates in
// mov.go/mov_x86_64.go), adapted from flapc's string-register dispatch
// ("rax", "rbx", ...) to a closed Reg enum and wired directly into
// CodeHolder's label/relocation machinery instead of flapc's ad hoc
// callPatches/pcRelocations slices.
package asmemit

import "github.com/xyproto/jitcore"

// Reg is a general-purpose x86-64 register, encoded the way the
// instruction set itself encodes it: 0-15, matching RAX..R15.
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

func (r Reg) String() string {
	names := [...]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
	if int(r) < len(names) {
		return names[r]
	}
	return "?"
}

// encoding returns the 4-bit register number ModR/M and REX fields use.
func (r Reg) encoding() uint8 { return uint8(r) & 0xF }

// needsRexB reports whether selecting this register as an r/m or base
// operand requires REX.B (registers r8-r15).
func (r Reg) needsRexB() bool { return r >= R8 }

// Cond is a condition code for Jcc, matching the low nibble of the 0F
// 8x/7x opcode pair.
type Cond uint8

const (
	CondO  Cond = 0x0 // overflow
	CondNO Cond = 0x1
	CondB  Cond = 0x2 // below / carry
	CondAE Cond = 0x3
	CondE  Cond = 0x4 // equal / zero
	CondNE Cond = 0x5
	CondBE Cond = 0x6
	CondA  Cond = 0x7
	CondS  Cond = 0x8 // sign
	CondNS Cond = 0x9
	CondL  Cond = 0xC // less (signed)
	CondGE Cond = 0xD
	CondLE Cond = 0xE
	CondG  Cond = 0xF
)

// requireAMD64 accepts only the one jitcore.Arch this package supports,
// returning InvalidArch for anything else rather than silently miscoding.
func requireAMD64(info jitcore.CodeInfo) error {
	if info.Arch != jitcore.ArchX64 {
		return jitcore.NewError(jitcore.InvalidArch)
	}
	return nil
}
