package jitcore

// LabelType is the §3 LabelEntry.type tag, packed into the label id's
// upper 4 bits.
type LabelType uint8

const (
	LabelAnonymous LabelType = iota
	LabelLocal
	LabelGlobal
	LabelExternal
)

const (
	labelIndexBits = 28
	labelIndexMask = (uint32(1) << labelIndexBits) - 1
	// MaxLabelCount is §6's "max labels 2^31 - 256", expressed as the
	// ceiling on the packed index before LabelIndexOverflow triggers.
	MaxLabelCount = (uint32(1) << 31) - 256
)

// packLabelID combines an index and type tag the way §3 describes:
// low 28 bits index, upper 4 bits type.
func packLabelID(index uint32, t LabelType) uint32 {
	return (index & labelIndexMask) | (uint32(t) << labelIndexBits)
}

func unpackLabelID(id uint32) (index uint32, t LabelType) {
	return id & labelIndexMask, LabelType(id >> labelIndexBits)
}

// LabelEntry is the holder-owned record for one label. Mutated only by
// bind (sectionID+offset assignment, links drain) after construction by
// newLabelId/newNamedLabelId.
type LabelEntry struct {
	id       uint32
	typ      LabelType
	parentID uint32 // 0 if none; non-zero only for Local labels
	sectionID uint32 // InvalidID while unbound
	offset   uint64  // valid only once bound
	links    *LabelLink
	name     smallString
	hash     uint32
}

func (l *LabelEntry) ID() uint32       { return l.id }
func (l *LabelEntry) Type() LabelType  { return l.typ }
func (l *LabelEntry) ParentID() uint32 { return l.parentID }
func (l *LabelEntry) Name() string     { return l.name.String() }
func (l *LabelEntry) Offset() uint64   { return l.offset }
func (l *LabelEntry) SectionID() uint32 { return l.sectionID }

// IsBound matches spec.md §3/§8's invariant: L.isBound ⇔ L.links.isEmpty
// (given sectionID != InvalidID once bound in the first place).
func (l *LabelEntry) IsBound() bool {
	return l.sectionID != InvalidID && l.links == nil
}
