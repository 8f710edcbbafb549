package vmm

import (
	"unsafe"

	"github.com/achilleasa/nucleus/kernel/mem"
)

var (
	// ptePtrFn returns a pointer to the supplied entry address. It is
	// overridden by tests so that walk() can be exercised without a live
	// MMU. When compiling the kernel this function is automatically
	// inlined.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}
)

// pageTableWalker is a function that can be passed to walk. The function
// receives the current page level and page table entry as its arguments. If
// the function returns false, the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address, invoking
// walkFn with the page table entry at each paging level. If walkFn returns
// false the walk is aborted.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level                            uint8
		tableAddr, entryAddr, entryIndex uintptr
		ok                               bool
	)

	// tableAddr starts out as the recursively mapped virtual address of
	// the active top-level table. Dereferencing a pointer built from this
	// address lets us walk the table using ordinary loads/stores.
	for level, tableAddr = uint8(0), pdtVirtualAddr; level < pageLevels; level, tableAddr = level+1, entryAddr {
		// Extract the bits of virtAddr that index this level's table.
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)

		entryAddr = tableAddr + (entryIndex << mem.PointerShift)

		if ok = walkFn(level, (*pageTableEntry)(ptePtrFn(entryAddr))); !ok {
			return
		}

		// Shifting left by this level's bit count appends another
		// level of indirection to the recursive mapping, yielding the
		// virtual address of the table that entryAddr points to.
		entryAddr <<= pageLevelBits[level]
	}
}
