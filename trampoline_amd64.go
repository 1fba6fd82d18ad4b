package jitcore

// emitTrampolineAMD64 encodes an indirect jump through an 8-byte
// absolute literal immediately following it:
//
//	FF 25 00 00 00 00   jmp qword ptr [rip+0]
//	<8-byte target>
//
// RIP after the 6-byte jmp points exactly at the literal, so the
// displacement is always 0. Grounded on flapc's RIP-relative patch
// idiom in _teacher_ref/main.go (patchX86_64PCRel computes
// "ripAddr := textAddr + offset + 4" the same way), extended from "load
// an address" to "jump through a loaded address".
func emitTrampolineAMD64(target uint64) []byte {
	buf := make([]byte, 14)
	buf[0] = 0xFF
	buf[1] = 0x25
	// bytes 2..5 are the zero rel32 displacement
	for i := 0; i < 8; i++ {
		buf[6+i] = byte(target >> (8 * i))
	}
	return buf
}
