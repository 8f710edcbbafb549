package process

import (
	"unsafe"

	"github.com/achilleasa/nucleus/kernel"
	"github.com/achilleasa/nucleus/kernel/mem/vmm"
	ksync "github.com/achilleasa/nucleus/kernel/sync"
	"github.com/achilleasa/nucleus/kernel/trap"
)

// ProcessStatus is a PCB's lifecycle state.
type ProcessStatus uint8

const (
	// StatusReady indicates the process is in the ready queue awaiting
	// dispatch.
	StatusReady ProcessStatus = iota

	// StatusRunning indicates the process is the processor's current
	// process.
	StatusRunning

	// StatusZombie indicates the process has exited and is waiting to be
	// reaped by its parent's waitpid.
	StatusZombie
)

// WaitResult describes the outcome of a Waitpid call against a PCB's
// children.
type WaitResult uint8

const (
	// WaitReaped indicates a matching zombie child was found, removed
	// from the children list and returned.
	WaitReaped WaitResult = iota

	// WaitNotExited indicates a matching child exists but has not yet
	// exited.
	WaitNotExited

	// WaitNoChild indicates no child matches the requested pid (or, for
	// pid == -1, that there are no children at all).
	WaitNoChild
)

// pcbInner holds the mutable parts of a PCB that must be accessed under
// its mutex.
type pcbInner struct {
	memSet     *vmm.MemorySet
	status     ProcessStatus
	contextPtr uintptr
	parent     *PCB
	children   []*PCB
	exitCode   int
}

// PCB is a process control block: the kernel's record of one user process.
// It owns a PID, a kernel stack, an address space and a small amount of
// scheduling/lifecycle bookkeeping.
//
// Lock discipline: at most two PCB mutexes are ever held at once, and only
// in the order parent -> child, while Waitpid checks a child's status. Exit's
// reparenting pass takes one PCB mutex at a time.
type PCB struct {
	mu    ksync.Spinlock
	pid   *PidHandle
	stack *KernelStack
	inner pcbInner
}

// NewProcessFromELF builds a brand new PCB from a statically linked ELF64
// image: it loads the image into a fresh MemorySet, allocates a PID and
// kernel stack, and seeds the kernel stack with an initial TrapFrame (so
// the process starts in user mode at the ELF's entry point) and
// ProcessContext (whose RIP is trap.TrapRetAddr, so the very first
// dispatch of this process lands directly on the SYSRET path).
func NewProcessFromELF(elfData []byte) (*PCB, *kernel.Error) {
	memSet, userSP, entry, err := vmm.FromELF(elfData)
	if err != nil {
		return nil, err
	}

	pid := AllocPID()
	stack, err := NewKernelStack(pid.PID())
	if err != nil {
		pid.Release()
		return nil, err
	}

	tf := trap.TrapFrame{RSP: uint64(userSP), RCX: uint64(entry), R11: trap.RFlagsInterruptsAndReserved}
	PushToTop(stack, tf, 0)

	ctx := trap.ProcessContext{RIP: trap.TrapRetAddr()}
	ctxAddr := PushToTop(stack, ctx, unsafe.Sizeof(tf))

	pcb := &PCB{pid: pid, stack: stack}
	pcb.inner.memSet = memSet
	pcb.inner.status = StatusReady
	pcb.inner.contextPtr = ctxAddr
	return pcb, nil
}

// PID returns this process's PID.
func (pcb *PCB) PID() int {
	return pcb.pid.PID()
}

// Status returns this process's current lifecycle state.
func (pcb *PCB) Status() ProcessStatus {
	pcb.mu.Acquire()
	defer pcb.mu.Release()
	return pcb.inner.status
}

// SetStatus updates this process's lifecycle state.
func (pcb *PCB) SetStatus(status ProcessStatus) {
	pcb.mu.Acquire()
	defer pcb.mu.Release()
	pcb.inner.status = status
}

// MemorySet returns this process's address space.
func (pcb *PCB) MemorySet() *vmm.MemorySet {
	pcb.mu.Acquire()
	defer pcb.mu.Release()
	return pcb.inner.memSet
}

// Stack returns this process's kernel stack.
func (pcb *PCB) Stack() *KernelStack {
	return pcb.stack
}

// ContextSlot returns the address of the field holding this PCB's saved
// ProcessContext pointer, for use as switchTo/Schedule's save slot.
func (pcb *PCB) ContextSlot() *uintptr {
	return &pcb.inner.contextPtr
}

// ExitCode returns the exit code recorded by Exit. Only meaningful once
// Status() == StatusZombie.
func (pcb *PCB) ExitCode() int {
	pcb.mu.Acquire()
	defer pcb.mu.Release()
	return pcb.inner.exitCode
}

// Parent returns this process's parent, or nil if it has none (the init
// process).
func (pcb *PCB) Parent() *PCB {
	pcb.mu.Acquire()
	defer pcb.mu.Release()
	return pcb.inner.parent
}

// Children returns a snapshot of this process's children.
func (pcb *PCB) Children() []*PCB {
	pcb.mu.Acquire()
	defer pcb.mu.Release()
	out := make([]*PCB, len(pcb.inner.children))
	copy(out, pcb.inner.children)
	return out
}

// GetTrapFrame returns a pointer to the TrapFrame living at the very top of
// this process's kernel stack.
func (pcb *PCB) GetTrapFrame() *trap.TrapFrame {
	var tf trap.TrapFrame
	addr := pcb.stack.Top() - unsafe.Sizeof(tf)
	return (*trap.TrapFrame)(unsafe.Pointer(addr))
}

// Fork clones this process's address space and current register state into
// a brand new child PCB, linked as a child of pcb. The caller (the fork
// syscall handler) is responsible for zeroing the child's TrapFrame.RAX and
// enqueueing it onto the ready queue.
func (pcb *PCB) Fork() (*PCB, *kernel.Error) {
	pcb.mu.Acquire()
	parentMemSet := pcb.inner.memSet
	parentTF := *pcb.GetTrapFrame()
	pcb.mu.Release()

	childMemSet, err := vmm.CloneMemorySet(parentMemSet)
	if err != nil {
		return nil, err
	}

	childPid := AllocPID()
	childStack, err := NewKernelStack(childPid.PID())
	if err != nil {
		childPid.Release()
		return nil, err
	}

	PushToTop(childStack, parentTF, 0)
	ctx := trap.ProcessContext{RIP: trap.TrapRetAddr()}
	ctxAddr := PushToTop(childStack, ctx, unsafe.Sizeof(parentTF))

	child := &PCB{pid: childPid, stack: childStack}
	child.inner.memSet = childMemSet
	child.inner.status = StatusReady
	child.inner.contextPtr = ctxAddr
	child.inner.parent = pcb

	pcb.mu.Acquire()
	pcb.inner.children = append(pcb.inner.children, child)
	pcb.mu.Release()

	return child, nil
}

// Exec replaces this process's program image in place: every existing user
// area is unmapped, the new ELF is loaded into the same (now empty)
// MemorySet, and the TrapFrame already sitting on the kernel stack is
// rewritten so that the next SYSRET lands at the new entry point with a
// fresh user stack.
func (pcb *PCB) Exec(elfData []byte) *kernel.Error {
	pcb.mu.Acquire()
	memSet := pcb.inner.memSet
	pcb.mu.Release()

	if err := memSet.RemoveAllAreas(); err != nil {
		return err
	}

	entry, userSP, err := memSet.LoadELF(elfData)
	if err != nil {
		return err
	}

	tf := pcb.GetTrapFrame()
	tf.RSP = uint64(userSP)
	tf.RCX = uint64(entry)
	tf.R11 = trap.RFlagsInterruptsAndReserved
	return nil
}

// Exit marks pcb Zombie, records its exit code, and reparents every one of
// its children to the installed init process, clearing its own children
// list in the process.
func (pcb *PCB) Exit(code int) {
	initProc := InitProcess()

	pcb.mu.Acquire()
	pcb.inner.status = StatusZombie
	pcb.inner.exitCode = code
	children := pcb.inner.children
	pcb.inner.children = nil
	pcb.mu.Release()

	for _, child := range children {
		child.mu.Acquire()
		child.inner.parent = initProc
		child.mu.Release()

		if initProc == nil {
			continue
		}
		initProc.mu.Acquire()
		initProc.inner.children = append(initProc.inner.children, child)
		initProc.mu.Release()
	}
}

// Waitpid looks for a child matching pid (pid == -1 matches any child). See
// WaitResult for the three possible outcomes.
func (pcb *PCB) Waitpid(pid int) (*PCB, WaitResult) {
	pcb.mu.Acquire()
	defer pcb.mu.Release()

	anyMatch := false
	zombieIdx := -1
	for i, child := range pcb.inner.children {
		if pid != -1 && child.PID() != pid {
			continue
		}
		anyMatch = true
		if child.Status() == StatusZombie {
			zombieIdx = i
			break
		}
	}

	if !anyMatch {
		return nil, WaitNoChild
	}
	if zombieIdx == -1 {
		return nil, WaitNotExited
	}

	zombie := pcb.inner.children[zombieIdx]
	pcb.inner.children = append(pcb.inner.children[:zombieIdx], pcb.inner.children[zombieIdx+1:]...)
	return zombie, WaitReaped
}

// Release tears down every resource owned by a reaped zombie PCB: its
// address space, its kernel stack, and finally its PID.
func (pcb *PCB) Release() *kernel.Error {
	if err := pcb.inner.memSet.RemoveAllAreas(); err != nil {
		return err
	}
	if err := pcb.stack.Release(); err != nil {
		return err
	}
	pcb.pid.Release()
	return nil
}
