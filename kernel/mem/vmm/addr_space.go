package vmm

import (
	"github.com/achilleasa/nucleus/kernel"
	"github.com/achilleasa/nucleus/kernel/mem"
)

var (
	// earlyReserveLastUsed tracks the last reserved page address and
	// decreases after each reservation. It initially points to
	// tempMappingAddr, which marks the end of the kernel's address space.
	earlyReserveLastUsed = tempMappingAddr

	errEarlyReserveNoSpace = &kernel.Error{Module: "early_reserve", Message: "remaining virtual address space not large enough to satisfy reservation request"}
)

// EarlyReserveRegion reserves a page-aligned contiguous virtual memory region
// of the requested size in the kernel address space and returns its virtual
// address. If size is not a multiple of mem.PageSize it is rounded up.
//
// Regions are handed out from the end of the kernel address space downwards.
// This function is only intended for use during early kernel initialization,
// before the heap allocator and process address spaces are available.
func EarlyReserveRegion(size mem.Size) (uintptr, *kernel.Error) {
	size = (size + (mem.PageSize - 1)) &^ (mem.PageSize - 1)

	if uintptr(size) > earlyReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveLastUsed -= uintptr(size)
	return earlyReserveLastUsed, nil
}
