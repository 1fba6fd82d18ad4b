package jitcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorAllocReturnsGranuleAligned(t *testing.T) {
	a := NewAllocator()
	p, err := a.Alloc(10)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0), p%uintptr(DefaultGranule))
	assert.Equal(t, 1, a.BlockCount())
}

func TestAllocatorAllocRejectsNonPositiveSize(t *testing.T) {
	a := NewAllocator()
	_, err := a.Alloc(0)
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, InvalidArgument, code)
}

func TestAllocatorReleaseUnknownPointerFails(t *testing.T) {
	a := NewAllocator()
	err := a.Release(0xdeadbeef)
	require.Error(t, err)
	code, _ := CodeOf(err)
	assert.Equal(t, InvalidArgument, code)
}

func TestAllocatorReleaseFreesFullyEmptyBlock(t *testing.T) {
	a := NewAllocator()
	p, err := a.Alloc(128)
	require.NoError(t, err)
	require.Equal(t, 1, a.BlockCount())

	require.NoError(t, a.Release(p))
	assert.Equal(t, 0, a.BlockCount())
}

func TestAllocatorReuseFreedRun(t *testing.T) {
	a := NewAllocator()
	p1, err := a.Alloc(64)
	require.NoError(t, err)
	p2, err := a.Alloc(64)
	require.NoError(t, err)
	require.NoError(t, a.Release(p1))

	p3, err := a.Alloc(64)
	require.NoError(t, err)
	assert.Equal(t, p1, p3, "the freed run should be reused rather than growing a new block")
	assert.NotEqual(t, p2, p3)
}

func TestAllocatorShrinkTrimsTail(t *testing.T) {
	a := NewAllocator()
	p, err := a.Alloc(DefaultGranule * 4)
	require.NoError(t, err)

	require.NoError(t, a.Shrink(p, DefaultGranule+1))

	// The freed tail granules should now be available for a fresh alloc
	// sized to fit exactly in them.
	p2, err := a.Alloc(DefaultGranule)
	require.NoError(t, err)
	assert.Equal(t, p+uintptr(DefaultGranule*2), p2)
}

func TestAllocatorShrinkToZeroReleases(t *testing.T) {
	a := NewAllocator()
	p, err := a.Alloc(DefaultGranule)
	require.NoError(t, err)
	require.NoError(t, a.Shrink(p, 0))
	assert.Equal(t, 0, a.BlockCount())
}

func TestAllocatorAllocAcrossManyBlocksWhenExhausted(t *testing.T) {
	a := NewAllocator()
	a.defaultBlockSize = DefaultGranule * 4 // force a new block every 4 granules

	var ptrs []uintptr
	for i := 0; i < 4; i++ {
		p, err := a.Alloc(DefaultGranule * 4)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	assert.Equal(t, 4, a.BlockCount())

	for _, p := range ptrs {
		require.NoError(t, a.Release(p))
	}
	assert.Equal(t, 0, a.BlockCount())
}

func TestAllocatorReleaseRejectsPointerPastBlockEnd(t *testing.T) {
	a := NewAllocator()
	p, err := a.Alloc(DefaultGranule)
	require.NoError(t, err)

	err = a.Release(p + uintptr(a.defaultBlockSize) + 1)
	require.Error(t, err)
}
