package jitcore

// trampolineEmitter emits an architecture-specific thunk that performs
// an indirect jump through a nearby absolute literal, and reports its
// size. Kept behind a small per-arch interface exactly as spec.md §9
// suggests ("a small per-arch interface (emitTrampoline(dst, target) →
// size) called by the relocation engine").
type trampolineEmitter func(target uint64) []byte

func trampolineEmitterFor(arch Arch) (trampolineEmitter, error) {
	switch arch {
	case ArchX64:
		return emitTrampolineAMD64, nil
	case ArchARM64:
		return emitTrampolineARM64, nil
	default:
		return nil, NewError(InvalidArch)
	}
}

// Relocate is a pure function of holder state plus baseAddress: layout,
// then copy, then patch, then append trampolines, per spec.md §4.5. It
// requires UnresolvedLabelCount() == 0 and len(dst) >= GetCodeSize().
// On error dst's contents are undefined and holder state is unchanged
// (spec.md §7): every mutation here touches only dst and freshly
// allocated trampoline bookkeeping, never the holder's own sections,
// labels or relocations.
func (h *CodeHolder) Relocate(dst []byte, baseAddress uint64) (int, error) {
	if h.state != holderInitialized {
		return 0, NewError(NotInitialized)
	}
	if h.unresolvedLabelCount != 0 {
		return 0, NewError(InvalidState)
	}
	needed := h.GetCodeSize()
	if uint64(len(dst)) < needed {
		return 0, NewError(CodeTooLarge)
	}
	logger.Debugf("jitcore/relocate: relocating %d bytes at base 0x%x (%d relocations)", needed, baseAddress, h.relocs.len())

	n := h.sections.len()
	finalOffset := make([]uint64, n)
	var cursor uint64
	for i := 0; i < n; i++ {
		s := *h.sections.at(i)
		cursor = alignUp64(cursor, uint64(s.alignment))
		finalOffset[i] = cursor
		cursor += s.PhysicalOrVirtualSize()
	}
	trampolineBase := cursor

	// Copy.
	for i := 0; i < n; i++ {
		s := *h.sections.at(i)
		off := finalOffset[i]
		phys := s.buffer.Bytes()
		copy(dst[off:], phys)
		if s.flags&SectionZero != 0 && s.virtSize > uint64(len(phys)) {
			for j := uint64(len(phys)); j < s.virtSize; j++ {
				dst[off+j] = 0
			}
		}
	}

	// Patch.
	trampolineCursor := trampolineBase
	var emitTrampoline trampolineEmitter
	for i := 0; i < h.relocs.len(); i++ {
		r := *h.relocs.at(i)
		if r.typ == RelocNone {
			continue
		}
		if int(r.sourceSectionID) >= n {
			return 0, NewError(InvalidRelocEntry)
		}
		srcAddr := baseAddress + finalOffset[r.sourceSectionID] + r.sourceOffset
		slot := dst[finalOffset[r.sourceSectionID]+r.sourceOffset:]

		switch r.typ {
		case RelocAbsToAbs:
			writeUint(slot, r.data, int(r.size))

		case RelocRelToAbs:
			if int(r.targetSectionID) >= n {
				return 0, NewError(InvalidRelocEntry)
			}
			targetAddr := baseAddress + finalOffset[r.targetSectionID] + r.data
			writeUint(slot, targetAddr, int(r.size))

		case RelocAbsToRel:
			if int(r.targetSectionID) >= n {
				return 0, NewError(InvalidRelocEntry)
			}
			targetAddr := baseAddress + finalOffset[r.targetSectionID] + r.data
			disp := int64(targetAddr) - int64(srcAddr+uint64(r.size))
			if !fitsSigned(disp, int(r.size)) {
				return 0, NewError(InvalidRelocEntry)
			}
			writeUint(slot, uint64(disp), int(r.size))
			logger.Debugf("jitcore/relocate: patch reloc %d (AbsToRel) at 0x%x disp %d", r.id, srcAddr, disp)

		case RelocTrampoline:
			if int(r.targetSectionID) >= n {
				return 0, NewError(InvalidRelocEntry)
			}
			targetAddr := baseAddress + finalOffset[r.targetSectionID] + r.data
			disp := int64(targetAddr) - int64(srcAddr+uint64(r.size))
			if fitsSigned(disp, int(r.size)) {
				writeUint(slot, uint64(disp), int(r.size))
				break
			}
			if emitTrampoline == nil {
				var err error
				emitTrampoline, err = trampolineEmitterFor(h.info.Arch)
				if err != nil {
					return 0, err
				}
			}
			thunkAddr := baseAddress + trampolineCursor
			thunk := emitTrampoline(targetAddr)
			if trampolineCursor+uint64(len(thunk)) > uint64(len(dst)) {
				return 0, NewError(CodeTooLarge)
			}
			copy(dst[trampolineCursor:], thunk)
			trampolineCursor += uint64(len(thunk))
			logger.Debugf("jitcore/relocate: emitted trampoline for reloc %d at 0x%x (%d bytes)", r.id, thunkAddr, len(thunk))

			tdisp := int64(thunkAddr) - int64(srcAddr+uint64(r.size))
			if !fitsSigned(tdisp, int(r.size)) {
				return 0, NewError(InvalidRelocEntry)
			}
			writeUint(slot, uint64(tdisp), int(r.size))

		default:
			return 0, NewError(InvalidRelocEntry)
		}
	}

	used := trampolineCursor
	if used > uint64(len(dst)) {
		return 0, NewError(CodeTooLarge)
	}
	return int(used), nil
}

func writeUint(dst []byte, v uint64, size int) {
	for i := 0; i < size; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}
