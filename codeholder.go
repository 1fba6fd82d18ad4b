package jitcore

import (
	"fmt"
	"io"
)

// holderState tracks CodeHolder.init/reset's two-state lifecycle.
type holderState uint8

const (
	holderUninitialized holderState = iota
	holderInitialized
)

// CodeHolder binds the Zone, containers, sections, labels, relocation
// table (A–H) and mediates attached emitters (I). Grounded on flapc's
// ExecutableBuilder (_teacher_ref/main.go) — one struct owning
// consts/labels/pcRelocations/callPatches/per-section buffers —
// generalized to the spec's explicit state machine, slotted emitter
// attachment, and unresolvedLabelCount invariant tracking that flapc's
// ad hoc maps never needed because it only ever targets one output
// format per run.
type CodeHolder struct {
	state holderState
	info  CodeInfo
	zone  *Zone

	sections *vector[*Section]
	labels   *vector[*LabelEntry]
	relocs   *vector[*RelocEntry]
	names    *labelTable

	unresolvedLabelCount int

	emitters     map[EmitterKind]Emitter
	attachOrder  []EmitterKind
	errorHandler ErrorHandler

	// bindSectionID/bindOffset stage the position passed to BindAt for
	// the duration of a single Bind call.
	bindSectionID uint32
	bindOffset    uint64
}

// NewCodeHolder constructs an uninitialized holder; call Init before
// use.
func NewCodeHolder() *CodeHolder {
	return &CodeHolder{emitters: make(map[EmitterKind]Emitter)}
}

// SetErrorHandler stores a user callback. The holder itself never
// invokes it (spec.md §4.2); it offers no accessor for the stored
// handler, and asmemit's X86Emitter does not call one.
func (h *CodeHolder) SetErrorHandler(eh ErrorHandler) { h.errorHandler = eh }

func (h *CodeHolder) Info() CodeInfo { return h.info }

// Init transitions an uninitialized holder to initialized, creating
// section 0 (.text, Exec, alignment 1).
func (h *CodeHolder) Init(info CodeInfo) error {
	if h.state != holderUninitialized {
		return NewError(AlreadyInitialized)
	}
	h.info = info
	h.zone = NewZone()
	h.sections = newVector[*Section](4)
	h.labels = newVector[*LabelEntry](16)
	h.relocs = newVector[*RelocEntry](16)
	h.names = newLabelTable()
	h.unresolvedLabelCount = 0

	text, err := newSection(0, ".text", SectionExec, 1)
	if err != nil {
		return err
	}
	h.sections.append(text)
	h.state = holderInitialized
	return nil
}

// Reset detaches every attached emitter (OnDetach in reverse-attach
// order), frees the Zone (optionally VM-backing buffers are left to the
// caller — this core has no VM-backed CodeBuffer of its own, only
// external ones a caller constructed), and returns the holder to the
// uninitialized state.
func (h *CodeHolder) Reset(releaseMemory bool) error {
	if h.state != holderInitialized {
		return nil
	}
	for i := len(h.attachOrder) - 1; i >= 0; i-- {
		kind := h.attachOrder[i]
		if e, ok := h.emitters[kind]; ok {
			_ = e.OnDetach(h)
		}
	}
	h.emitters = make(map[EmitterKind]Emitter)
	h.attachOrder = nil

	if h.zone != nil {
		h.zone.Reset(releaseMemory)
	}
	h.sections = nil
	h.labels = nil
	h.relocs = nil
	h.names = nil
	h.unresolvedLabelCount = 0
	h.state = holderUninitialized
	return nil
}

// Attach links an emitter to the holder. A given EmitterKind occupies
// at most one slot.
func (h *CodeHolder) Attach(e Emitter) error {
	if h.state != holderInitialized {
		return NewError(NotInitialized)
	}
	kind := e.Kind()
	if _, occupied := h.emitters[kind]; occupied {
		return NewError(SlotOccupied)
	}
	if err := e.OnAttach(h); err != nil {
		return err
	}
	h.emitters[kind] = e
	h.attachOrder = append(h.attachOrder, kind)
	return nil
}

// Detach unlinks a previously attached emitter.
func (h *CodeHolder) Detach(e Emitter) error {
	kind := e.Kind()
	if _, ok := h.emitters[kind]; !ok {
		return NewError(InvalidArgument)
	}
	if err := e.OnDetach(h); err != nil {
		return err
	}
	delete(h.emitters, kind)
	for i, k := range h.attachOrder {
		if k == kind {
			h.attachOrder = append(h.attachOrder[:i], h.attachOrder[i+1:]...)
			break
		}
	}
	return nil
}

// NewSection creates and appends a new section, returning its id.
func (h *CodeHolder) NewSection(name string, flags SectionFlags, alignment uint32) (uint32, error) {
	if h.state != holderInitialized {
		return InvalidID, NewError(NotInitialized)
	}
	id := uint32(h.sections.len())
	s, err := newSection(id, name, flags, alignment)
	if err != nil {
		return InvalidID, err
	}
	h.sections.append(s)
	return id, nil
}

func (h *CodeHolder) Section(id uint32) (*Section, error) {
	if h.sections == nil || int(id) >= h.sections.len() {
		return nil, NewError(InvalidArgument)
	}
	return *h.sections.at(int(id)), nil
}

func (h *CodeHolder) SectionCount() int {
	if h.sections == nil {
		return 0
	}
	return h.sections.len()
}

// NewLabelID allocates an anonymous LabelEntry and returns its packed
// id.
func (h *CodeHolder) NewLabelID() (uint32, error) {
	return h.newLabelEntry(LabelAnonymous, 0, "")
}

// NewNamedLabelID validates name/type/parent and allocates a named
// label, registering it in the named-label table.
func (h *CodeHolder) NewNamedLabelID(name string, typ LabelType, parentID uint32) (uint32, error) {
	if len(name) == 0 {
		return InvalidID, NewError(InvalidLabelName)
	}
	if len(name) > MaxLabelNameLength {
		return InvalidID, NewError(LabelNameTooLong)
	}
	if typ == LabelAnonymous {
		if parentID != 0 {
			return InvalidID, NewError(InvalidLabelName)
		}
	} else if typ != LabelLocal && parentID != 0 {
		return InvalidID, NewError(NonLocalLabelCantHaveParent)
	}
	if parentID != 0 {
		if _, err := h.labelByID(parentID); err != nil {
			return InvalidID, NewError(InvalidParentLabel)
		}
	}

	hash := labelHash(name, parentID)
	for _, candidateID := range h.names.findAll(hash) {
		entry, err := h.labelByID(candidateID)
		if err != nil {
			continue
		}
		if entry.parentID == parentID && entry.Name() == name {
			return InvalidID, NewError(LabelAlreadyDefined)
		}
	}

	id, err := h.newLabelEntry(typ, parentID, name)
	if err != nil {
		return InvalidID, err
	}
	h.names.insert(hash, id)
	return id, nil
}

func (h *CodeHolder) newLabelEntry(typ LabelType, parentID uint32, name string) (uint32, error) {
	if h.state != holderInitialized {
		return InvalidID, NewError(NotInitialized)
	}
	index := uint32(h.labels.len())
	if index >= MaxLabelCount {
		return InvalidID, NewError(LabelIndexOverflow)
	}
	id := packLabelID(index, typ)
	entry := &LabelEntry{
		id:        id,
		typ:       typ,
		parentID:  parentID,
		sectionID: InvalidID,
		name:      newSmallString(h.zone, name),
		hash:      labelHash(name, parentID),
	}
	h.labels.append(entry)
	return id, nil
}

// GetLabelIDByName performs an O(1) hash lookup, returning
// (InvalidID, false) when absent, matching kNotFound semantics.
func (h *CodeHolder) GetLabelIDByName(name string, parentID uint32) (uint32, bool) {
	if h.names == nil {
		return InvalidID, false
	}
	hash := labelHash(name, parentID)
	for _, candidateID := range h.names.findAll(hash) {
		entry, err := h.labelByID(candidateID)
		if err != nil {
			continue
		}
		if entry.parentID == parentID && entry.Name() == name {
			return candidateID, true
		}
	}
	return InvalidID, false
}

func (h *CodeHolder) labelIndex(labelID uint32) (int, error) {
	index, _ := unpackLabelID(labelID)
	if h.labels == nil || int(index) >= h.labels.len() {
		return 0, NewError(InvalidLabel)
	}
	return int(index), nil
}

func (h *CodeHolder) labelByID(labelID uint32) (*LabelEntry, error) {
	idx, err := h.labelIndex(labelID)
	if err != nil {
		return nil, err
	}
	return *h.labels.at(idx), nil
}

// Label exposes a read-only view of a LabelEntry for introspection.
func (h *CodeHolder) Label(labelID uint32) (*LabelEntry, error) {
	return h.labelByID(labelID)
}

// UnresolvedLabelCount is the §3/§8 invariant counter: the number of
// labels whose links chain is non-empty.
func (h *CodeHolder) UnresolvedLabelCount() int { return h.unresolvedLabelCount }

// NewLabelLink appends a LabelLink to label's chain (prepend at head),
// incrementing unresolvedLabelCount if the chain was previously empty.
// Called by encoders whenever they emit an instruction referring to an
// unbound label.
func (h *CodeHolder) NewLabelLink(labelID uint32, sectionID uint32, offset uint64, rel int32) error {
	entry, err := h.labelByID(labelID)
	if err != nil {
		return err
	}
	wasEmpty := entry.links == nil
	link := allocLabelLink(h.zone, sectionID, offset, rel)
	link.prev = entry.links
	entry.links = link
	if wasEmpty {
		h.unresolvedLabelCount++
	}
	return nil
}

// NewRelocEntry allocates a RelocEntry and appends it to the
// relocation table, returning its id.
func (h *CodeHolder) NewRelocEntry(typ RelocType, size uint8) (uint32, error) {
	if h.state != holderInitialized {
		return InvalidID, NewError(NotInitialized)
	}
	if !validRelocSize(size) {
		return InvalidID, NewError(InvalidArgument)
	}
	id := uint32(h.relocs.len())
	if id >= MaxLabelCount { // relocation ids share the spec's 2^31-256 ceiling
		return InvalidID, NewError(RelocIndexOverflow)
	}
	entry := &RelocEntry{id: id, typ: typ, size: size}
	h.relocs.append(entry)
	return id, nil
}

func (h *CodeHolder) relocByID(id uint32) (*RelocEntry, error) {
	if h.relocs == nil || int(id) >= h.relocs.len() {
		return nil, NewError(InvalidArgument)
	}
	return *h.relocs.at(int(id)), nil
}

// Reloc exposes a relocation entry for read-only introspection.
func (h *CodeHolder) Reloc(id uint32) (*RelocEntry, error) { return h.relocByID(id) }

// FillReloc records where a relocation's patch site lives and what it
// resolves against, once an emitter knows both (it emits the
// instruction bytes, allocates the RelocEntry via NewRelocEntry, then
// fills it in immediately after). Kept as a holder method
// rather than exported RelocEntry setters so out-of-package encoders
// (asmemit) never hold a live *RelocEntry past the call that needs it.
func (h *CodeHolder) FillReloc(id uint32, sourceSectionID, targetSectionID uint32, sourceOffset, data uint64) error {
	r, err := h.relocByID(id)
	if err != nil {
		return err
	}
	r.sourceSectionID = sourceSectionID
	r.targetSectionID = targetSectionID
	r.sourceOffset = sourceOffset
	r.data = data
	return nil
}

func (h *CodeHolder) RelocCount() int {
	if h.relocs == nil {
		return 0
	}
	return h.relocs.len()
}

// Dump renders a human-readable listing of sections, labels, and
// pending relocations, grounded on flapc's LabelOffset/RodataSection
// introspection helpers — there it was ad hoc debug printf, here it is
// one method tests and the CLI harness can both call.
func (h *CodeHolder) Dump(w io.Writer) {
	fmt.Fprintf(w, "sections: %d\n", h.SectionCount())
	for i := 0; i < h.SectionCount(); i++ {
		s, err := h.Section(uint32(i))
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "  [%d] %-16s flags=0x%x align=%d size=%d virt=%d\n",
			s.ID(), s.Name(), s.Flags(), s.Alignment(), s.Buffer().Len(), s.VirtualSize())
	}

	fmt.Fprintf(w, "labels: %d (unresolved=%d)\n", h.labelCount(), h.UnresolvedLabelCount())
	for i := 0; i < h.labelCount(); i++ {
		l := *h.labels.at(i)
		status := "unbound"
		if l.IsBound() {
			status = fmt.Sprintf("bound @ section %d offset %d", l.SectionID(), l.Offset())
		}
		name := l.Name()
		if name == "" {
			name = "<anonymous>"
		}
		fmt.Fprintf(w, "  [%d] %-16s %s\n", l.ID(), name, status)
	}

	fmt.Fprintf(w, "relocations: %d\n", h.RelocCount())
	for i := 0; i < h.RelocCount(); i++ {
		r, err := h.Reloc(uint32(i))
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "  [%d] type=%d size=%d src=(section %d, offset %d) target=(section %d, data %d)\n",
			r.ID(), r.Type(), r.Size(), r.sourceSectionID, r.sourceOffset, r.targetSectionID, r.data)
	}
}

func (h *CodeHolder) labelCount() int {
	if h.labels == nil {
		return 0
	}
	return h.labels.len()
}

// Bind assigns label its section+offset, then drains its links chain.
// For each link: computes the signed displacement
// targetOffset-(linkOffset+instrSize) for relative patches or the
// absolute targetOffset for absolute patches (a link whose relocID names
// an AbsToAbs or RelToAbs relocation; every other link, including a
// plain label-relative jump/call, is relative), checks the displacement fits the
// link's declared width, writes the bytes into the owning section's
// buffer, and clears the relocation's None marker if any. instrSize is
// supplied by the caller (the emitter knows its own instruction
// encoding length; the holder does not).
func (h *CodeHolder) Bind(labelID uint32, instrSize func(link *LabelLink) int) error {
	entry, err := h.labelByID(labelID)
	if err != nil {
		return err
	}
	if entry.sectionID != InvalidID {
		return NewError(LabelAlreadyBound)
	}
	sectionID, offset, err := h.currentEmitPosition()
	if err != nil {
		return err
	}
	entry.sectionID = sectionID
	entry.offset = offset
	logger.Debugf("jitcore/codeholder: bind label %d (%q) at section %d offset %d", labelID, entry.Name(), sectionID, offset)

	hadLinks := entry.links != nil
	link := entry.links
	for link != nil {
		next := link.prev
		if err := h.patchLink(entry, link, instrSize(link)); err != nil {
			return err
		}
		link = next
	}
	entry.links = nil
	if hadLinks {
		h.unresolvedLabelCount--
	}
	return nil
}

// currentEmitPosition is supplied by the attached assembler via
// BindAt, which records the section/offset pair directly instead of
// asking the holder to guess "current" emission position — the holder
// has no notion of "current section" of its own (spec.md §4.3: the
// encoder owns that state).
func (h *CodeHolder) currentEmitPosition() (uint32, uint64, error) {
	return h.bindSectionID, h.bindOffset, nil
}

func (h *CodeHolder) patchLink(entry *LabelEntry, link *LabelLink, instrSize int) error {
	sec, err := h.Section(link.sectionID)
	if err != nil {
		return err
	}

	width := 4
	isAbsolute := false
	if link.relocID != InvalidID {
		reloc, err := h.relocByID(link.relocID)
		if err != nil {
			return err
		}
		width = int(reloc.size)
		isAbsolute = reloc.typ == RelocAbsToAbs || reloc.typ == RelocRelToAbs
	} else if instrSize == 0 {
		// An instrSize of 0 selects the short (8-bit) relative form;
		// link.rel is not consulted.
		width = 1
	}

	var value int64
	if isAbsolute {
		value = int64(entry.offset)
	} else {
		value = int64(entry.offset) - int64(link.offset+uint64(instrSize))
	}

	if !fitsSigned(value, width) {
		return NewError(InvalidDisplacement)
	}

	buf := encodeSigned(value, width)
	if err := sec.buffer.PatchAt(int(link.offset), buf); err != nil {
		return err
	}
	logger.Debugf("jitcore/codeholder: patch section %d offset %d width %d value %d", link.sectionID, link.offset, width, value)

	if link.relocID != InvalidID {
		reloc, _ := h.relocByID(link.relocID)
		reloc.typ = RelocNone
	}
	return nil
}

func fitsSigned(v int64, width int) bool {
	switch width {
	case 1:
		return v >= -128 && v <= 127
	case 2:
		return v >= -32768 && v <= 32767
	case 4:
		return v >= -2147483648 && v <= 2147483647
	case 8:
		return true
	default:
		return false
	}
}

func encodeSigned(v int64, width int) []byte {
	out := make([]byte, width)
	u := uint64(v)
	for i := 0; i < width; i++ {
		out[i] = byte(u >> (8 * i))
	}
	return out
}

// BindAt is the emitter-facing entry point for label binding: the
// emitter knows its own current section and offset (spec.md §4.3), so
// it supplies both here rather than the holder inferring "current
// position" from attached-emitter state.
func (h *CodeHolder) BindAt(labelID uint32, sectionID uint32, offset uint64, instrSize func(link *LabelLink) int) error {
	h.bindSectionID = sectionID
	h.bindOffset = offset
	return h.Bind(labelID, instrSize)
}

// GetCodeSize sums, per section, max(physical length, virtual size)
// honoring alignment padding between sections — see DESIGN.md's Open
// Question resolution.
func (h *CodeHolder) GetCodeSize() uint64 {
	if h.sections == nil {
		return 0
	}
	var cursor uint64
	for i := 0; i < h.sections.len(); i++ {
		s := *h.sections.at(i)
		cursor = alignUp64(cursor, uint64(s.alignment))
		cursor += s.PhysicalOrVirtualSize()
	}
	return cursor
}

func alignUp64(n, align uint64) uint64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
