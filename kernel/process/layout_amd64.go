package process

import "github.com/achilleasa/nucleus/kernel/mem"

const (
	// KernelStackSize is the size of a single process's kernel stack.
	KernelStackSize = 2 * mem.PageSize

	// KernelStackGuardSize is the size of the unmapped guard page that
	// separates one process's kernel stack slot from the next.
	KernelStackGuardSize = mem.PageSize

	// maxKernelStackSlots bounds the virtual address region reserved at
	// boot for kernel stacks. It is the only limit this kernel places on
	// the number of live PIDs; the PID allocator itself (pid.go) never
	// imposes a cap of its own.
	maxKernelStackSlots = 4096
)
