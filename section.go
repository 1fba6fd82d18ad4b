package jitcore

// SectionFlags is the §6 bitmask for Section.Flags.
type SectionFlags uint32

const (
	SectionExec     SectionFlags = 0x1
	SectionConst    SectionFlags = 0x2
	SectionZero     SectionFlags = 0x4
	SectionInfo     SectionFlags = 0x8
	SectionImplicit SectionFlags = 0x8000_0000
)

// InvalidID is the sentinel for "no section"/"no label"/"no reloc",
// matching §3/§6's InvalidId = 0xFFFF_FFFF.
const InvalidID uint32 = 0xFFFF_FFFF

// MaxSectionNameLength is the §3 limit on Section.Name.
const MaxSectionNameLength = 35

// MaxSectionAlignment is the §6 limit: alignment must be a power of two
// no greater than 64 bytes.
const MaxSectionAlignment = 64

// Section is a contiguous byte stream owned by a CodeHolder. Ids are
// assigned in insertion order starting at 0 (always .text) and are
// never reused.
type Section struct {
	id        uint32
	name      string
	flags     SectionFlags
	alignment uint32 // power of two, >= 1
	virtSize  uint64
	buffer    *CodeBuffer
}

func newSection(id uint32, name string, flags SectionFlags, alignment uint32) (*Section, error) {
	if len(name) > MaxSectionNameLength {
		return nil, NewError(InvalidArgument)
	}
	if alignment == 0 || alignment&(alignment-1) != 0 || alignment > MaxSectionAlignment {
		return nil, NewError(InvalidArgument)
	}
	return &Section{
		id:        id,
		name:      name,
		flags:     flags,
		alignment: alignment,
		buffer:    NewCodeBuffer(),
	}, nil
}

func (s *Section) ID() uint32            { return s.id }
func (s *Section) Name() string          { return s.name }
func (s *Section) Flags() SectionFlags   { return s.flags }
func (s *Section) Alignment() uint32     { return s.alignment }
func (s *Section) Buffer() *CodeBuffer   { return s.buffer }
func (s *Section) VirtualSize() uint64   { return s.virtSize }
func (s *Section) SetVirtualSize(n uint64) { s.virtSize = n }

// PhysicalOrVirtualSize resolves the Open Question recorded in
// DESIGN.md: every section, not only the last, contributes
// max(physical length, virtual size) to getCodeSize().
func (s *Section) PhysicalOrVirtualSize() uint64 {
	phys := uint64(s.buffer.Len())
	if s.virtSize > phys {
		return s.virtSize
	}
	return phys
}
