package jitcore

// emitTrampolineARM64 encodes:
//
//	LDR X16, #8   ; load the literal 8 bytes ahead into a scratch reg
//	BR  X16       ; branch through it
//	<8-byte target>
//
// Grounded on flapc's ADRP/ADD two-instruction absolute-address
// materialization in _teacher_ref/main.go (patchARM64PCRel), swapped
// for a literal-pool load since the trampoline's literal is emitted
// right alongside it rather than living in a separate constant pool.
func emitTrampolineARM64(target uint64) []byte {
	const scratch = 16 // x16, the platform's designated IP scratch register

	// LDR (literal), 64-bit variant: 0x58000000 | (imm19<<5) | Rt.
	// imm19 counts 4-byte words from the instruction to the literal;
	// the literal sits 8 bytes (2 words) after this instruction.
	ldr := uint32(0x58000000) | (uint32(2) << 5) | scratch

	// BR Xn: 0xD61F0000 | (Rn<<5).
	br := uint32(0xD61F0000) | (uint32(scratch) << 5)

	buf := make([]byte, 16)
	putU32LE(buf[0:4], ldr)
	putU32LE(buf[4:8], br)
	for i := 0; i < 8; i++ {
		buf[8+i] = byte(target >> (8 * i))
	}
	return buf
}

func putU32LE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}
