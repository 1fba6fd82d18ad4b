package asmemit

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xyproto/jitcore"
)

func newTestHolder(t *testing.T) *jitcore.CodeHolder {
	t.Helper()
	info, err := jitcore.NewCodeInfo(jitcore.ArchX64, 8, 16, jitcore.CallConvSystemV, jitcore.UnboundBaseAddress)
	require.NoError(t, err)
	h := jitcore.NewCodeHolder()
	require.NoError(t, h.Init(info))
	return h
}

func TestEmitterForwardJumpRoundTrip(t *testing.T) {
	h := newTestHolder(t)
	e := NewX86Emitter()
	require.NoError(t, h.Attach(e))

	done, err := e.NewLabel()
	require.NoError(t, err)

	require.NoError(t, e.MovImmToReg(RAX, 42))
	require.NoError(t, e.JmpLabel(done))
	require.NoError(t, e.Nop())
	require.NoError(t, e.Nop())
	require.NoError(t, e.Bind(done))
	require.NoError(t, e.Ret())

	assert.Equal(t, 0, h.UnresolvedLabelCount())
	assert.Equal(t, uint64(18), h.GetCodeSize())

	dst := make([]byte, h.GetCodeSize())
	n, err := h.Relocate(dst, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, 18, n)

	expected := []byte{
		0x48, 0xB8, 42, 0, 0, 0, 0, 0, 0, 0, // mov rax, 42
		0xE9, 0x02, 0x00, 0x00, 0x00, // jmp +2
		0x90, 0x90, // nop nop
		0xC3, // ret
	}
	assert.Equal(t, expected, dst)
}

func TestEmitterLoadAbsAddressAcrossSections(t *testing.T) {
	h := newTestHolder(t)
	dataSecID, err := h.NewSection(".rodata", jitcore.SectionConst, 1)
	require.NoError(t, err)

	e := NewX86Emitter()
	require.NoError(t, h.Attach(e))

	require.NoError(t, e.LoadAbsAddress(RAX, dataSecID, 4))
	require.NoError(t, e.SetSection(dataSecID))
	require.NoError(t, e.Embed([]byte{0, 0, 0, 0, 0xAA, 0xBB, 0xCC, 0xDD}))

	dst := make([]byte, h.GetCodeSize())
	_, err = h.Relocate(dst, 0x1000)
	require.NoError(t, err)

	got := binary.LittleEndian.Uint64(dst[2:10])
	assert.Equal(t, uint64(0x1000+10+4), got)
}

func TestEmitterCallAbsPatchesRelativeDisplacement(t *testing.T) {
	h := newTestHolder(t)
	fnSecID, err := h.NewSection(".fn", jitcore.SectionExec, 1)
	require.NoError(t, err)

	e := NewX86Emitter()
	require.NoError(t, h.Attach(e))

	require.NoError(t, e.CallAbs(fnSecID, 0))
	require.NoError(t, e.Ret())

	require.NoError(t, e.SetSection(fnSecID))
	require.NoError(t, e.Ret())

	dst := make([]byte, h.GetCodeSize())
	_, err = h.Relocate(dst, 0x2000)
	require.NoError(t, err)

	assert.Equal(t, byte(0xE8), dst[0])
	disp := int32(binary.LittleEndian.Uint32(dst[1:5]))
	// call site ends at offset 5; .fn starts right after .text (6 bytes).
	assert.Equal(t, int32(6-5), disp)
}

func TestEmitterSetOffsetRewindsAndOverwrites(t *testing.T) {
	h := newTestHolder(t)
	e := NewX86Emitter()
	require.NoError(t, h.Attach(e))

	require.NoError(t, e.Embed([]byte{0x11, 0x22, 0x33, 0x44}))
	assert.Equal(t, uint64(4), e.Offset())

	require.NoError(t, e.SetOffset(1))
	assert.Equal(t, uint64(1), e.Offset())

	require.NoError(t, e.Embed([]byte{0xAA, 0xBB}))
	assert.Equal(t, uint64(3), e.Offset())

	sec, err := h.Section(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0xAA, 0xBB}, sec.Buffer().Bytes())
}

func TestEmitterRejectsNonAMD64Arch(t *testing.T) {
	info, err := jitcore.NewCodeInfo(jitcore.ArchARM64, 8, 16, jitcore.CallConvAAPCS64, jitcore.UnboundBaseAddress)
	require.NoError(t, err)
	h := jitcore.NewCodeHolder()
	require.NoError(t, h.Init(info))

	e := NewX86Emitter()
	err = h.Attach(e)
	require.Error(t, err)
	code, ok := jitcore.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, jitcore.InvalidArch, code)
}
