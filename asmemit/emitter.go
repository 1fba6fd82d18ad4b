package asmemit

import (
	"fmt"
	"os"

	"github.com/xyproto/jitcore"
)

// Verbose mirrors flapc's package-level VerboseMode switch
// (_teacher_ref/main.go): when true, Comment and every emitted
// instruction trace to stderr. Defaults off.
var Verbose = false

// X86Emitter is a jitcore.Emitter for AMD64. It holds no instruction
// buffer of its own — every byte lands directly in the attached
// CodeHolder's current section, the way flapc's Out always wrote
// straight into ExecutableBuilder's bytes.Buffer fields rather than
// staging instructions in an intermediate representation.
type X86Emitter struct {
	h         *jitcore.CodeHolder
	sectionID uint32
}

// NewX86Emitter constructs an unattached emitter; call
// CodeHolder.Attach to bind it.
func NewX86Emitter() *X86Emitter {
	return &X86Emitter{}
}

func (e *X86Emitter) Kind() jitcore.EmitterKind { return jitcore.EmitterKindAssembler }

func (e *X86Emitter) OnAttach(h *jitcore.CodeHolder) error {
	if err := requireAMD64(h.Info()); err != nil {
		return err
	}
	e.h = h
	e.sectionID = 0 // .text, always section 0
	return nil
}

func (e *X86Emitter) OnDetach(h *jitcore.CodeHolder) error {
	e.h = nil
	return nil
}

// SetSection redirects subsequent emission to a different section
// (e.g. a .rodata section created alongside .text); not part of the
// Emitter interface since CodeHolder never needs to call it.
func (e *X86Emitter) SetSection(id uint32) error {
	if _, err := e.h.Section(id); err != nil {
		return err
	}
	e.sectionID = id
	return nil
}

func (e *X86Emitter) NewLabel() (uint32, error) { return e.h.NewLabelID() }

// instrSizeForLink is passed to Bind/BindAt: every patch field this
// emitter creates is a trailing 4-byte rel32, so the field's own width
// always equals the distance from the field to the end of the
// instruction — regardless of which instruction created it.
func instrSizeForLink(link *jitcore.LabelLink) int { return 4 }

func (e *X86Emitter) Bind(label uint32) error {
	sec, err := e.h.Section(e.sectionID)
	if err != nil {
		return err
	}
	offset := uint64(sec.Buffer().Len())
	if Verbose {
		fmt.Fprintf(os.Stderr, "label %d:\n", label)
	}
	return e.h.BindAt(label, e.sectionID, offset, instrSizeForLink)
}

func (e *X86Emitter) Embed(data []byte) error {
	sec, err := e.h.Section(e.sectionID)
	if err != nil {
		return err
	}
	return sec.Buffer().Append(data)
}

func (e *X86Emitter) Align(mode jitcore.AlignMode, n uint32) error {
	if n == 0 || n&(n-1) != 0 {
		return jitcore.NewError(jitcore.InvalidArgument)
	}
	sec, err := e.h.Section(e.sectionID)
	if err != nil {
		return err
	}
	cur := uint32(sec.Buffer().Len())
	pad := (n - cur%n) % n
	fill := byte(0x00)
	if mode == jitcore.AlignCode {
		fill = 0x90 // NOP
	}
	for i := uint32(0); i < pad; i++ {
		if err := sec.Buffer().AppendByte(fill); err != nil {
			return err
		}
	}
	return nil
}

func (e *X86Emitter) Comment(s string) {
	if Verbose {
		fmt.Fprintf(os.Stderr, "; %s\n", s)
	}
}

func (e *X86Emitter) SetOffset(offset uint64) error {
	sec, err := e.h.Section(e.sectionID)
	if err != nil {
		return err
	}
	return sec.Buffer().SetOffset(int(offset))
}

func (e *X86Emitter) Offset() uint64 {
	sec, err := e.h.Section(e.sectionID)
	if err != nil {
		return 0
	}
	return uint64(sec.Buffer().Len())
}

func (e *X86Emitter) trace(format string, args ...any) {
	if Verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// MovImmToReg encodes MOV r64, imm64 (REX.W B8+r, 8-byte little-endian
// immediate) — the full 64-bit immediate form rather than flapc's
// sign-extended 32-bit MOV r/m64, imm32 (0xC7 /0), since JIT code
// routinely needs to materialize full pointer-width constants.
func (e *X86Emitter) MovImmToReg(dst Reg, imm uint64) error {
	e.trace("mov %s, %#x\n", dst, imm)
	rex := byte(0x48)
	if dst.needsRexB() {
		rex |= 0x01
	}
	buf := make([]byte, 10)
	buf[0] = rex
	buf[1] = 0xB8 + dst.encoding()&7
	for i := 0; i < 8; i++ {
		buf[2+i] = byte(imm >> (8 * i))
	}
	return e.Embed(buf)
}

// MovRegToReg encodes MOV r/m64, r64 (REX.W 0x89 /r), grounded directly
// on flapc's movX86RegToReg (_teacher_ref/mov.go).
func (e *X86Emitter) MovRegToReg(dst, src Reg) error {
	e.trace("mov %s, %s\n", dst, src)
	rex := byte(0x48)
	if src.needsRexB() {
		rex |= 0x04 // REX.R extends the reg field (source)
	}
	if dst.needsRexB() {
		rex |= 0x01 // REX.B extends the r/m field (destination)
	}
	modrm := byte(0xC0) | (src.encoding()&7)<<3 | (dst.encoding() & 7)
	return e.Embed([]byte{rex, 0x89, modrm})
}

// LeaLabel encodes LEA dst, [rip+label] against a label in the same
// section: if label is already bound the displacement is computed and
// written immediately; otherwise a LabelLink parks the patch site for
// Bind to fill in later.
func (e *X86Emitter) LeaLabel(dst Reg, labelID uint32) error {
	e.trace("lea %s, [rip+label%d]\n", dst, labelID)
	rex := byte(0x48)
	if dst.needsRexB() {
		rex |= 0x04
	}
	modrm := byte(0x00)<<6 | (dst.encoding()&7)<<3 | 0x5
	if err := e.Embed([]byte{rex, 0x8D, modrm}); err != nil {
		return err
	}
	return e.emitLabelField(labelID)
}

func (e *X86Emitter) JmpLabel(labelID uint32) error {
	e.trace("jmp label%d\n", labelID)
	if err := e.Embed([]byte{0xE9}); err != nil {
		return err
	}
	return e.emitLabelField(labelID)
}

func (e *X86Emitter) CallLabel(labelID uint32) error {
	e.trace("call label%d\n", labelID)
	if err := e.Embed([]byte{0xE8}); err != nil {
		return err
	}
	return e.emitLabelField(labelID)
}

func (e *X86Emitter) JccLabel(cond Cond, labelID uint32) error {
	e.trace("jcc %x label%d\n", cond, labelID)
	if err := e.Embed([]byte{0x0F, 0x80 | byte(cond)}); err != nil {
		return err
	}
	return e.emitLabelField(labelID)
}

func (e *X86Emitter) Ret() error {
	e.trace("ret\n")
	return e.Embed([]byte{0xC3})
}

func (e *X86Emitter) Syscall() error {
	e.trace("syscall\n")
	return e.Embed([]byte{0x0F, 0x05})
}

func (e *X86Emitter) Nop() error {
	e.trace("nop\n")
	return e.Embed([]byte{0x90})
}

// emitLabelField appends a placeholder rel32 and either patches it
// immediately (label already bound, same section) or parks a
// LabelLink for Bind to drain later.
func (e *X86Emitter) emitLabelField(labelID uint32) error {
	sec, err := e.h.Section(e.sectionID)
	if err != nil {
		return err
	}
	label, err := e.h.Label(labelID)
	if err != nil {
		return err
	}
	fieldOffset := sec.Buffer().Len()
	if err := sec.Buffer().Append([]byte{0, 0, 0, 0}); err != nil {
		return err
	}
	if label.IsBound() && label.SectionID() == e.sectionID {
		disp := int64(label.Offset()) - int64(fieldOffset+4)
		if disp < -2147483648 || disp > 2147483647 {
			return jitcore.NewError(jitcore.InvalidDisplacement)
		}
		return sec.Buffer().PatchAt(fieldOffset, littleEndian32(uint32(disp)))
	}
	return e.h.NewLabelLink(labelID, e.sectionID, uint64(fieldOffset), 0)
}

// CallAbs encodes a relative CALL whose target is resolved only at
// Relocate() time, against a (section, offset) pair possibly in a
// different section than the call site — the cross-section counterpart
// to CallLabel's same-section LabelLink path.
func (e *X86Emitter) CallAbs(targetSectionID uint32, targetOffset uint64) error {
	e.trace("call section%d+%#x\n", targetSectionID, targetOffset)
	return e.emitRelocField(0xE8, jitcore.RelocAbsToRel, targetSectionID, targetOffset)
}

// CallFar is like CallAbs but registers a Trampoline relocation: if the
// final displacement doesn't fit a rel32, Relocate() emits an
// architecture-specific indirect-jump thunk instead of failing.
func (e *X86Emitter) CallFar(targetSectionID uint32, targetOffset uint64) error {
	e.trace("call (far) section%d+%#x\n", targetSectionID, targetOffset)
	return e.emitRelocField(0xE8, jitcore.RelocTrampoline, targetSectionID, targetOffset)
}

func (e *X86Emitter) emitRelocField(opcode byte, typ jitcore.RelocType, targetSectionID uint32, targetOffset uint64) error {
	sec, err := e.h.Section(e.sectionID)
	if err != nil {
		return err
	}
	if err := sec.Buffer().AppendByte(opcode); err != nil {
		return err
	}
	fieldOffset := sec.Buffer().Len()
	if err := sec.Buffer().Append([]byte{0, 0, 0, 0}); err != nil {
		return err
	}
	relocID, err := e.h.NewRelocEntry(typ, 4)
	if err != nil {
		return err
	}
	return e.h.FillReloc(relocID, e.sectionID, targetSectionID, uint64(fieldOffset), targetOffset)
}

// LoadAbsAddress encodes MOV dst, imm64 whose immediate is the
// absolute address of (targetSectionID, targetOffset), resolved at
// Relocate() time once baseAddress is known.
func (e *X86Emitter) LoadAbsAddress(dst Reg, targetSectionID uint32, targetOffset uint64) error {
	e.trace("mov %s, &section%d+%#x\n", dst, targetSectionID, targetOffset)
	sec, err := e.h.Section(e.sectionID)
	if err != nil {
		return err
	}
	rex := byte(0x48)
	if dst.needsRexB() {
		rex |= 0x01
	}
	if err := sec.Buffer().Append([]byte{rex, 0xB8 + dst.encoding()&7}); err != nil {
		return err
	}
	fieldOffset := sec.Buffer().Len()
	if err := sec.Buffer().Append(make([]byte, 8)); err != nil {
		return err
	}
	relocID, err := e.h.NewRelocEntry(jitcore.RelocRelToAbs, 8)
	if err != nil {
		return err
	}
	return e.h.FillReloc(relocID, e.sectionID, targetSectionID, uint64(fieldOffset), targetOffset)
}

func littleEndian32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
