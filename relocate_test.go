package jitcore

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelocHolder(t *testing.T) *CodeHolder {
	t.Helper()
	info, err := NewCodeInfo(ArchX64, 8, 16, CallConvSystemV, UnboundBaseAddress)
	require.NoError(t, err)
	h := NewCodeHolder()
	require.NoError(t, h.Init(info))
	return h
}

func TestRelocateForwardLabelJump(t *testing.T) {
	h := newRelocHolder(t)
	sec, err := h.Section(0)
	require.NoError(t, err)

	label, err := h.NewLabelID()
	require.NoError(t, err)

	// jmp rel32 placeholder at offset 0, then 5 bytes of padding, then
	// the label lands at offset 10.
	require.NoError(t, sec.Buffer().Append([]byte{0xE9, 0, 0, 0, 0}))
	require.NoError(t, h.NewLabelLink(label, 0, 1, 0))
	require.NoError(t, sec.Buffer().Append(make([]byte, 5)))
	require.NoError(t, h.BindAt(label, 0, 10, func(*LabelLink) int { return 4 }))
	require.Equal(t, 0, h.UnresolvedLabelCount())

	dst := make([]byte, h.GetCodeSize())
	n, err := h.Relocate(dst, 0x4000)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, byte(0xE9), dst[0])
	assert.Equal(t, int32(5), int32(binary.LittleEndian.Uint32(dst[1:5])))
}

func TestRelocateFailsWithUnresolvedLabels(t *testing.T) {
	h := newRelocHolder(t)
	_, err := h.NewLabelID()
	require.NoError(t, err)
	label2, err := h.NewLabelID()
	require.NoError(t, err)
	require.NoError(t, h.NewLabelLink(label2, 0, 0, 0))

	dst := make([]byte, h.GetCodeSize())
	_, err = h.Relocate(dst, 0)
	require.Error(t, err)
	code, _ := CodeOf(err)
	assert.Equal(t, InvalidState, code)
}

func TestRelocateFailsWhenDestinationTooSmall(t *testing.T) {
	h := newRelocHolder(t)
	sec, err := h.Section(0)
	require.NoError(t, err)
	require.NoError(t, sec.Buffer().Append(make([]byte, 8)))

	_, err = h.Relocate(make([]byte, 4), 0)
	require.Error(t, err)
	code, _ := CodeOf(err)
	assert.Equal(t, CodeTooLarge, code)
}

func TestRelocateAbsToAbsWritesLiteralVerbatim(t *testing.T) {
	h := newRelocHolder(t)
	sec, err := h.Section(0)
	require.NoError(t, err)
	require.NoError(t, sec.Buffer().Append(make([]byte, 8)))

	relocID, err := h.NewRelocEntry(RelocAbsToAbs, 8)
	require.NoError(t, err)
	require.NoError(t, h.FillReloc(relocID, 0, 0, 0, 0xDEADBEEFCAFEBABE))

	dst := make([]byte, h.GetCodeSize())
	_, err = h.Relocate(dst, 0x9999)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xDEADBEEFCAFEBABE), binary.LittleEndian.Uint64(dst[0:8]))
}

func TestRelocateRelToAbsComputesFinalAddress(t *testing.T) {
	h := newRelocHolder(t)
	sec0, err := h.Section(0)
	require.NoError(t, err)
	require.NoError(t, sec0.Buffer().Append(make([]byte, 8))) // 8-byte pointer slot

	dataID, err := h.NewSection(".data", SectionConst, 1)
	require.NoError(t, err)
	data, err := h.Section(dataID)
	require.NoError(t, err)
	require.NoError(t, data.Buffer().Append([]byte{1, 2, 3, 4}))

	relocID, err := h.NewRelocEntry(RelocRelToAbs, 8)
	require.NoError(t, err)
	require.NoError(t, h.FillReloc(relocID, 0, dataID, 0, 2)) // &data[2]

	dst := make([]byte, h.GetCodeSize())
	_, err = h.Relocate(dst, 0x10000)
	require.NoError(t, err)

	want := uint64(0x10000 + 8 /* .text size */ + 2)
	assert.Equal(t, want, binary.LittleEndian.Uint64(dst[0:8]))
}

func TestRelocateAbsToRelOutOfRangeFails(t *testing.T) {
	h := newRelocHolder(t)
	sec0, err := h.Section(0)
	require.NoError(t, err)
	require.NoError(t, sec0.Buffer().Append([]byte{0xE8, 0, 0, 0, 0}))

	relocID, err := h.NewRelocEntry(RelocAbsToRel, 4)
	require.NoError(t, err)
	// A target offset far enough away that base+offset overflows a
	// signed 32-bit displacement regardless of baseAddress.
	require.NoError(t, h.FillReloc(relocID, 0, 0, 1, 0xFFFFFFFF))

	dst := make([]byte, h.GetCodeSize())
	_, err = h.Relocate(dst, 0)
	require.Error(t, err)
	code, _ := CodeOf(err)
	assert.Equal(t, InvalidRelocEntry, code)
}

func TestRelocateTrampolineFallsBackWhenOutOfRange(t *testing.T) {
	h := newRelocHolder(t)
	sec0, err := h.Section(0)
	require.NoError(t, err)
	// call at offset 1 (after a 1-byte prologue), its rel32 placeholder
	// at offset 2, then a trailing nop.
	require.NoError(t, sec0.Buffer().Append([]byte{0x90, 0xE8, 0, 0, 0, 0, 0x90}))

	farID, err := h.NewSection(".far", SectionExec, 1)
	require.NoError(t, err)
	far, err := h.Section(farID)
	require.NoError(t, err)
	require.NoError(t, far.Buffer().Append([]byte{0xC3}))

	relocID, err := h.NewRelocEntry(RelocTrampoline, 4)
	require.NoError(t, err)
	const farOffset = 0x7FFFFFFF
	require.NoError(t, h.FillReloc(relocID, 0, farID, 2, farOffset))

	baseAddress := uint64(0x5000)
	needed := h.GetCodeSize()
	dst := make([]byte, needed+32) // room for one amd64 trampoline thunk
	n, err := h.Relocate(dst, baseAddress)
	require.NoError(t, err)
	assert.Greater(t, n, int(needed), "a trampoline thunk must extend the written length past GetCodeSize()")

	textLen := uint64(7)
	farFinalOffset := textLen // .far follows .text, alignment 1
	targetAddr := baseAddress + farFinalOffset + farOffset

	thunkAddr := baseAddress + needed
	thunk := dst[needed:n]
	require.Len(t, thunk, 14)
	assert.Equal(t, byte(0xFF), thunk[0])
	assert.Equal(t, byte(0x25), thunk[1])
	assert.Equal(t, targetAddr, binary.LittleEndian.Uint64(thunk[6:14]))

	srcAddr := baseAddress + 2
	wantDisp := int32(int64(thunkAddr) - int64(srcAddr+4))
	gotDisp := int32(binary.LittleEndian.Uint32(dst[2:6]))
	assert.Equal(t, wantDisp, gotDisp)
}
