//go:build linux || darwin || freebsd

package jitcore

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func accessToProt(access VMAccess) int {
	prot := unix.PROT_READ
	if access&VMAccessWrite != 0 {
		prot |= unix.PROT_WRITE
	}
	if access&VMAccessExecute != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}

func platformVMReserve(size int, access VMAccess) (*vmMapping, error) {
	mem, err := unix.Mmap(-1, 0, size, accessToProt(access), unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, WrapError(NoVirtualMemory, err, "mmap")
	}
	return &vmMapping{
		addr: uintptr(unsafe.Pointer(&mem[0])),
		size: size,
		mem:  mem,
	}, nil
}

func platformVMProtect(m *vmMapping, access VMAccess) error {
	if err := unix.Mprotect(m.mem, accessToProt(access)); err != nil {
		return WrapError(NoVirtualMemory, err, "mprotect")
	}
	return nil
}

func platformVMRelease(m *vmMapping) error {
	if err := unix.Munmap(m.mem); err != nil {
		return WrapError(NoVirtualMemory, err, "munmap")
	}
	m.mem = nil
	return nil
}
