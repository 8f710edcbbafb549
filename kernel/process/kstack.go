package process

import (
	"unsafe"

	"github.com/achilleasa/nucleus/kernel"
	"github.com/achilleasa/nucleus/kernel/mem"
	"github.com/achilleasa/nucleus/kernel/mem/pmm/allocator"
	"github.com/achilleasa/nucleus/kernel/mem/vmm"
)

var (
	errKernelStackRegionNotReady = &kernel.Error{Module: "process", Message: "kernel stack region has not been reserved yet"}
	errKernelStackSlotsExhausted = &kernel.Error{Module: "process", Message: "pid has no slot in the kernel stack region"}

	// kernelStackRegionTop is the virtual address immediately above PID
	// 0's kernel stack slot. It is established once, at boot, by
	// InitKernelStackRegion.
	kernelStackRegionTop uintptr

	// the following are mocked by tests and are automatically inlined by
	// the compiler.
	mapFn             = vmm.Map
	unmapFn           = vmm.Unmap
	frameAllocFn      = allocator.AllocFrame
	earlyReserveRegFn = vmm.EarlyReserveRegion
)

// InitKernelStackRegion reserves the virtual address range that backs every
// process's kernel stack slot. It must be called exactly once, early during
// boot, before any PCB is constructed. The range is reserved eagerly (no
// other subsystem can claim the addresses), but individual stack slots are
// only backed by physical frames lazily, when a PCB for that PID is created.
func InitKernelStackRegion() *kernel.Error {
	regionSize := mem.Size(maxKernelStackSlots) * (KernelStackSize + KernelStackGuardSize)

	regionStart, err := earlyReserveRegFn(regionSize)
	if err != nil {
		return err
	}

	kernelStackRegionTop = regionStart + uintptr(regionSize)
	return nil
}

// kernelStackAddress returns the [bottom, top) virtual address range
// reserved for the given PID's kernel stack. A guard page of
// KernelStackGuardSize separates consecutive slots.
func kernelStackAddress(pid int) (bottom, top uintptr) {
	slot := uintptr(KernelStackSize + KernelStackGuardSize)
	top = kernelStackRegionTop - uintptr(pid)*slot
	bottom = top - uintptr(KernelStackSize)
	return bottom, top
}

// KernelStack is the per-process stack used while executing kernel code on
// behalf of a process. It is identified by PID, not by an independent
// address, so that its virtual range can be recomputed at any time.
type KernelStack struct {
	pid int
}

// NewKernelStack maps KernelStackSize worth of fresh physical frames into
// the PID-indexed slot belonging to pid and returns a handle to it.
func NewKernelStack(pid int) (*KernelStack, *kernel.Error) {
	if kernelStackRegionTop == 0 {
		return nil, errKernelStackRegionNotReady
	}
	if pid >= maxKernelStackSlots {
		return nil, errKernelStackSlotsExhausted
	}

	bottom, top := kernelStackAddress(pid)
	flags := vmm.FlagPresent | vmm.FlagRW

	firstPage := vmm.PageFromAddress(bottom)
	lastPage := vmm.PageFromAddress(top - 1)
	for page := firstPage; page <= lastPage; page++ {
		frame, err := frameAllocFn()
		if err != nil {
			return nil, err
		}
		if err := mapFn(page, frame, flags, frameAllocFn); err != nil {
			return nil, err
		}
	}

	return &KernelStack{pid: pid}, nil
}

// Top returns the virtual address of the top of this kernel stack (one byte
// past the last valid stack address).
func (ks *KernelStack) Top() uintptr {
	_, top := kernelStackAddress(ks.pid)
	return top
}

// Release unmaps the physical frames backing this kernel stack. It is called
// by PCB.Release when a reaped zombie is torn down.
func (ks *KernelStack) Release() *kernel.Error {
	bottom, top := kernelStackAddress(ks.pid)
	firstPage := vmm.PageFromAddress(bottom)
	lastPage := vmm.PageFromAddress(top - 1)
	for page := firstPage; page <= lastPage; page++ {
		if err := unmapFn(page); err != nil {
			return err
		}
	}
	return nil
}

// PushToTop writes value at (stack top - offset - sizeof(value)) and returns
// the address it was written to. It is used to seed the initial TrapFrame
// and ProcessContext when constructing a new kernel stack.
func PushToTop[T any](ks *KernelStack, value T, offset uintptr) uintptr {
	addr := ks.Top() - offset - unsafe.Sizeof(value)
	*(*T)(unsafe.Pointer(addr)) = value
	return addr
}
