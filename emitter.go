package jitcore

// EmitterKind identifies an emitter's slot on a CodeHolder; a given
// kind occupies at most one attach slot (spec.md §4.2's "a specific
// emitter kind occupies at most one slot").
type EmitterKind uint8

const (
	EmitterKindUnknown EmitterKind = iota
	EmitterKindAssembler
	EmitterKindBuilder
)

// Emitter is the §4.3 capability set consumed by architecture encoders.
// CodeHolder mediates every interaction; an Emitter must never mutate
// holder state directly except through the CodeHolder operations it is
// handed at onAttach. Grounded on flapc's Out struct
// (_teacher_ref/mov.go), generalized from one concrete struct with an
// internal per-arch switch to an interface, per spec.md §9's "prefer a
// tagged-variant or interface abstraction... only one level of virtual
// dispatch" note.
type Emitter interface {
	Kind() EmitterKind

	// OnAttach/OnDetach are invoked by CodeHolder.attach/detach/reset.
	OnAttach(h *CodeHolder) error
	OnDetach(h *CodeHolder) error

	// NewLabel allocates a fresh anonymous label via the attached
	// holder and returns its id.
	NewLabel() (uint32, error)

	// Bind resolves every queued patch in label's chain against its
	// current emission offset, per §4.2's bind contract.
	Bind(label uint32) error

	// Embed writes raw data into the current section.
	Embed(data []byte) error

	// Align pads the current section up to an n-byte boundary; mode is
	// emitter-defined (e.g. zero-fill vs. architecture nop sled).
	Align(mode AlignMode, n uint32) error

	// Comment is a purely diagnostic annotation that never changes the
	// emitted bytes; how it is surfaced is up to the emitter (asmemit
	// prints it to stderr when its Verbose switch is on), grounded on
	// flapc's pervasive VerboseMode trace lines.
	Comment(s string)

	// SetOffset rewinds/seeks the current section's CodeBuffer.
	SetOffset(offset uint64) error

	// Offset reports the current section's CodeBuffer length.
	Offset() uint64
}

// AlignMode selects the padding content Align uses.
type AlignMode uint8

const (
	AlignZero AlignMode = iota
	AlignCode
)

// ErrorHandler is a user-installable callback, never a control-flow
// abstraction (spec.md §9). CodeHolder stores it but never calls it,
// and no emitter in this module calls it either: errors are only
// returned to the caller.
type ErrorHandler interface {
	HandleError(err error, origin Emitter)
}

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(err error, origin Emitter)

func (f ErrorHandlerFunc) HandleError(err error, origin Emitter) { f(err, origin) }
