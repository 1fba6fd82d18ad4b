//go:build windows

package jitcore

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// accessToProtect maps a VMAccess set to a Windows PAGE_* protection
// constant. Grounded on the VirtualAlloc/VirtualProtect usage in
// other_examples' wintun memmod loaders (DarkiT-wireguard,
// tklauser-wireguard-go), which map and re-protect DLL-equivalent code
// through the same two calls this primitive uses.
func accessToProtect(access VMAccess) uint32 {
	switch {
	case access&VMAccessExecute != 0 && access&VMAccessWrite != 0:
		return windows.PAGE_EXECUTE_READWRITE
	case access&VMAccessExecute != 0:
		return windows.PAGE_EXECUTE_READ
	case access&VMAccessWrite != 0:
		return windows.PAGE_READWRITE
	default:
		return windows.PAGE_READONLY
	}
}

func platformVMReserve(size int, access VMAccess) (*vmMapping, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, accessToProtect(access))
	if err != nil {
		return nil, WrapError(NoVirtualMemory, err, "VirtualAlloc")
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &vmMapping{addr: addr, size: size, mem: mem}, nil
}

func platformVMProtect(m *vmMapping, access VMAccess) error {
	var old uint32
	if err := windows.VirtualProtect(m.addr, uintptr(m.size), accessToProtect(access), &old); err != nil {
		return WrapError(NoVirtualMemory, err, "VirtualProtect")
	}
	return nil
}

func platformVMRelease(m *vmMapping) error {
	if err := windows.VirtualFree(m.addr, 0, windows.MEM_RELEASE); err != nil {
		return WrapError(NoVirtualMemory, err, "VirtualFree")
	}
	m.mem = nil
	return nil
}
