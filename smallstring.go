package jitcore

// smallStringInline is the embedded capacity for label names before a
// smallString spills to Zone memory. Chosen so the common case (local
// jump targets, short function names) never touches the Zone at all.
const smallStringInline = 24

// MaxLabelNameLength is the §6 limit on label name length in bytes.
const MaxLabelNameLength = 2048

// smallString stores a label name inline up to smallStringInline bytes
// and spills to Zone-owned memory beyond that — never to a GC-tracked
// heap allocation outside the Zone, so its lifetime is tied to the
// owning CodeHolder's Zone exactly like every other label datum.
type smallString struct {
	inline [smallStringInline]byte
	length int
	spill  []byte // non-nil only when length > smallStringInline
}

func newSmallString(z *Zone, name string) smallString {
	s := smallString{length: len(name)}
	if len(name) <= smallStringInline {
		copy(s.inline[:], name)
		return s
	}
	buf := z.Alloc(len(name))
	copy(buf, name)
	s.spill = buf
	return s
}

func (s smallString) String() string {
	if s.spill != nil {
		return string(s.spill)
	}
	return string(s.inline[:s.length])
}

func (s smallString) Len() int { return s.length }
