// Package allocator provides the kernel's physical frame allocator.
package allocator

import (
	"github.com/achilleasa/nucleus/kernel"
	"github.com/achilleasa/nucleus/kernel/hal/multiboot"
	"github.com/achilleasa/nucleus/kernel/kfmt/early"
	"github.com/achilleasa/nucleus/kernel/mem"
	"github.com/achilleasa/nucleus/kernel/mem/pmm"
	ksync "github.com/achilleasa/nucleus/kernel/sync"
)

var (
	// earlyAllocator is the single, process-wide physical frame allocator.
	earlyAllocator bootMemAllocator

	// mu serializes access to earlyAllocator; AllocFrame can be called
	// from both syscall handlers and the boot path.
	mu ksync.Spinlock

	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// bootMemAllocator implements a rudimentary physical memory allocator that
// serves as the kernel's only frame allocator.
//
// The allocator scans the memory region information provided by the
// bootloader to locate free memory blocks and returns the next available
// free frame. Allocations are tracked via a monotonically increasing
// lastAllocFrame counter.
//
// Due to the way that the allocator works, it is not possible to free
// allocated frames. This is a known, deliberate leak: the core never
// reclaims user address-space frames on process exit either (see
// kernel/process), so adding a free path to this allocator alone would not
// fix anything.
type bootMemAllocator struct {
	allocCount     uint64
	lastAllocFrame pmm.Frame
	started        bool
}

// printMemoryMap prints the system memory regions reported by the bootloader.
func (alloc *bootMemAllocator) printMemoryMap() {
	early.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		early.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})
	early.Printf("[boot_mem_alloc] free memory: %dKb\n", uint64(totalFree/mem.Kb))
}

// AllocFrame scans the system memory regions reported by the bootloader and
// reserves the next available free frame. AllocFrame returns
// errBootAllocOutOfMemory once no more usable memory remains.
func (alloc *bootMemAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	var (
		foundFrame                        = pmm.InvalidFrame
		regionStartFrame, regionEndFrame  pmm.Frame
		pageSizeMinus1                    = uint64(mem.PageSize - 1)
	)

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}

		// Align region start address to a page boundary and find the start
		// and (exclusive) end frame indices for the region; a partial page
		// at the end of the region is not handed out.
		regionStartFrame = pmm.Frame(((region.PhysAddress + pageSizeMinus1) & ^pageSizeMinus1) >> mem.PageShift)
		regionEndFrame = pmm.Frame(((region.PhysAddress + region.Length) & ^pageSizeMinus1) >> mem.PageShift)

		if alloc.started && alloc.lastAllocFrame+1 >= regionEndFrame {
			// Already exhausted this region.
			return true
		}

		if !alloc.started || alloc.lastAllocFrame+1 < regionStartFrame {
			foundFrame = regionStartFrame
		} else {
			foundFrame = alloc.lastAllocFrame + 1
		}
		return false
	})

	if !foundFrame.IsValid() {
		return pmm.InvalidFrame, errBootAllocOutOfMemory
	}

	alloc.allocCount++
	alloc.lastAllocFrame = foundFrame
	alloc.started = true

	return foundFrame, nil
}

// AllocFrame reserves and returns the next available physical frame.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	mu.Acquire()
	defer mu.Release()
	return earlyAllocator.AllocFrame()
}

// Init prepares the physical frame allocator and prints the system memory
// map for diagnostic purposes.
func Init() {
	mu.Acquire()
	defer mu.Release()
	earlyAllocator = bootMemAllocator{}
	earlyAllocator.printMemoryMap()
}
