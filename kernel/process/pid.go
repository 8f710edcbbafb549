package process

import (
	"github.com/achilleasa/nucleus/kernel"
	ksync "github.com/achilleasa/nucleus/kernel/sync"
)

var (
	errPidNotAllocated = &kernel.Error{Module: "process", Message: "attempted to release a pid that was never allocated"}
	errPidDoubleFree   = &kernel.Error{Module: "process", Message: "attempted to release a pid that is already on the free list"}

	// panicFn is mocked by tests and is automatically inlined by the
	// compiler.
	panicFn = kernel.Panic
)

// pidAllocator hands out monotonically increasing PIDs, recycling released
// ones before minting new ones.
type pidAllocator struct {
	mu       ksync.Spinlock
	current  int
	recycled []int
}

func (a *pidAllocator) alloc() int {
	a.mu.Acquire()
	defer a.mu.Release()

	if n := len(a.recycled); n > 0 {
		pid := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return pid
	}

	pid := a.current
	a.current++
	return pid
}

func (a *pidAllocator) dealloc(pid int) {
	a.mu.Acquire()
	defer a.mu.Release()

	if pid >= a.current {
		panicFn(errPidNotAllocated)
		return
	}
	for _, recycled := range a.recycled {
		if recycled == pid {
			panicFn(errPidDoubleFree)
			return
		}
	}

	a.recycled = append(a.recycled, pid)
}

// globalPidAllocator is the process-wide PID allocator.
var globalPidAllocator pidAllocator

// PidHandle owns a single PID. Releasing a handle returns its PID to the
// global allocator's free list. A PidHandle is always moved into the PCB
// that owns it, so exactly one release ever occurs per allocated PID.
type PidHandle struct {
	pid      int
	released bool
}

// AllocPID reserves a new PID, recycling one from the free list if possible.
func AllocPID() *PidHandle {
	return &PidHandle{pid: globalPidAllocator.alloc()}
}

// PID returns the integer PID owned by this handle.
func (h *PidHandle) PID() int {
	return h.pid
}

// Release returns this handle's PID to the allocator's free list. Calling
// Release more than once on the same handle is a no-op.
func (h *PidHandle) Release() {
	if h.released {
		return
	}
	h.released = true
	globalPidAllocator.dealloc(h.pid)
}
