package jitcore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmallStringInline(t *testing.T) {
	z := NewZone()
	s := newSmallString(z, "jump_target")
	assert.Equal(t, "jump_target", s.String())
	assert.Equal(t, len("jump_target"), s.Len())
	assert.Equal(t, 0, z.Bytes(), "an inline-sized name must never touch the Zone")
}

func TestSmallStringSpills(t *testing.T) {
	z := NewZone()
	name := strings.Repeat("x", smallStringInline+1)
	s := newSmallString(z, name)
	assert.Equal(t, name, s.String())
	assert.Equal(t, len(name), s.Len())
	assert.True(t, z.Bytes() >= len(name))
}

func TestSmallStringEmpty(t *testing.T) {
	z := NewZone()
	s := newSmallString(z, "")
	assert.Equal(t, "", s.String())
	assert.Equal(t, 0, s.Len())
}
