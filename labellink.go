package jitcore

// LabelLink is a pending patch site parked on a label's chain. It is an
// ordinary Go allocation (see allocLabelLink), referenced only from its
// label, so its lifetime ends at label binding or holder reset exactly
// like the rest of the holder's bookkeeping. Single-linked,
// rooted at LabelEntry.links, prepended at the head on each new patch
// request (newest link first; order doesn't matter since every patch
// writes a disjoint byte range per spec.md §5).
type LabelLink struct {
	prev      *LabelLink
	sectionID uint32
	relocID   uint32 // InvalidID if this link has no associated RelocEntry
	offset    uint64 // offset within sectionID where the patch lives
	rel       int32  // inlined short (8-bit) relative displacement hint
}

// SectionID and Offset expose a link's patch site so an out-of-package
// emitter's instrSize callback (passed to Bind/BindAt) can look its own
// bookkeeping up by (section, offset) — LabelLink carries no notion of
// instruction length itself, only the encoder that emitted it does.
func (l *LabelLink) SectionID() uint32 { return l.sectionID }
func (l *LabelLink) Offset() uint64    { return l.offset }

func allocLabelLink(z *Zone, sectionID uint32, offset uint64, rel int32) *LabelLink {
	// LabelLink carries a *LabelLink pointer (prev), so unlike
	// LabelLink's sibling data it cannot be carved from a raw byte
	// Zone under Go's GC; it is allocated as a normal Go value whose
	// lifetime is still scoped to the CodeHolder (dropped wholesale at
	// reset, same as a true zone-carved node would be). The Zone
	// parameter is threaded through regardless so call sites read the
	// same as every other zone-scoped allocation in this file set and
	// a future pointer-free encoding can drop in without changing
	// callers.
	_ = z
	return &LabelLink{
		sectionID: sectionID,
		relocID:   InvalidID,
		offset:    offset,
		rel:       rel,
	}
}
