package process

import (
	"testing"
	"unsafe"

	"github.com/achilleasa/nucleus/kernel/trap"
)

// newTestPCB builds a PCB whose kernel stack is backed by a real Go-owned
// buffer (via the same kernelStackRegionTop trick kstack_test.go uses),
// bypassing AllocPID/NewKernelStack so GetTrapFrame can be exercised
// without a real address space or physical frame allocator.
func newTestPCB(t *testing.T, pid int) *PCB {
	t.Helper()

	slot := uintptr(KernelStackSize + KernelStackGuardSize)
	backing := make([]byte, 4*KernelStackSize)
	backingEnd := uintptr(unsafe.Pointer(&backing[0])) + uintptr(len(backing))

	t.Cleanup(resetKernelStackRegion(backingEnd + uintptr(pid)*slot))

	pcb := &PCB{pid: &PidHandle{pid: pid}, stack: &KernelStack{pid: pid}}
	pcb.inner.status = StatusReady
	return pcb
}

func TestPCBStatusTransitions(t *testing.T) {
	pcb := &PCB{}
	pcb.inner.status = StatusReady

	if pcb.Status() != StatusReady {
		t.Fatalf("expected StatusReady, got %v", pcb.Status())
	}

	pcb.SetStatus(StatusRunning)
	if pcb.Status() != StatusRunning {
		t.Fatalf("expected StatusRunning, got %v", pcb.Status())
	}
}

func TestPCBExitReparentsChildrenToInit(t *testing.T) {
	defer func(orig *PCB) { globalInitProcess = orig }(globalInitProcess)

	parent := &PCB{pid: &PidHandle{pid: 1}}
	initProc := &PCB{pid: &PidHandle{pid: 0}}
	SetInitProcess(initProc)

	childA := &PCB{pid: &PidHandle{pid: 2}}
	childA.inner.parent = parent
	childB := &PCB{pid: &PidHandle{pid: 3}}
	childB.inner.parent = parent
	parent.inner.children = []*PCB{childA, childB}

	parent.Exit(7)

	if parent.Status() != StatusZombie {
		t.Fatalf("expected parent to become a zombie")
	}
	if parent.ExitCode() != 7 {
		t.Fatalf("expected exit code 7, got %d", parent.ExitCode())
	}
	if len(parent.Children()) != 0 {
		t.Fatalf("expected parent's children list to be cleared, got %d entries", len(parent.Children()))
	}
	if childA.Parent() != initProc || childB.Parent() != initProc {
		t.Fatalf("expected orphaned children to be reparented to init")
	}
	if len(initProc.Children()) != 2 {
		t.Fatalf("expected init to adopt both orphans, got %d", len(initProc.Children()))
	}
}

func TestPCBExitWithNoInitProcessInstalled(t *testing.T) {
	defer func(orig *PCB) { globalInitProcess = orig }(globalInitProcess)
	globalInitProcess = nil

	parent := &PCB{pid: &PidHandle{pid: 1}}
	child := &PCB{pid: &PidHandle{pid: 2}}
	child.inner.parent = parent
	parent.inner.children = []*PCB{child}

	parent.Exit(0)

	if child.Parent() != nil {
		t.Fatalf("expected orphan's parent to be nil when no init process is installed, got %v", child.Parent())
	}
}

func TestPCBWaitpidNoChild(t *testing.T) {
	parent := &PCB{pid: &PidHandle{pid: 1}}

	if _, result := parent.Waitpid(-1); result != WaitNoChild {
		t.Fatalf("expected WaitNoChild for a childless process, got %v", result)
	}

	other := &PCB{pid: &PidHandle{pid: 99}}
	parent.inner.children = []*PCB{other}
	if _, result := parent.Waitpid(5); result != WaitNoChild {
		t.Fatalf("expected WaitNoChild for a non-matching pid, got %v", result)
	}
}

func TestPCBWaitpidNotExited(t *testing.T) {
	parent := &PCB{pid: &PidHandle{pid: 1}}
	child := &PCB{pid: &PidHandle{pid: 2}}
	child.inner.status = StatusRunning
	parent.inner.children = []*PCB{child}

	if _, result := parent.Waitpid(-1); result != WaitNotExited {
		t.Fatalf("expected WaitNotExited, got %v", result)
	}
}

func TestPCBWaitpidReapsZombie(t *testing.T) {
	parent := &PCB{pid: &PidHandle{pid: 1}}
	running := &PCB{pid: &PidHandle{pid: 2}}
	running.inner.status = StatusRunning
	zombie := &PCB{pid: &PidHandle{pid: 3}}
	zombie.inner.status = StatusZombie
	zombie.inner.exitCode = 42
	parent.inner.children = []*PCB{running, zombie}

	reaped, result := parent.Waitpid(3)
	if result != WaitReaped {
		t.Fatalf("expected WaitReaped, got %v", result)
	}
	if reaped != zombie {
		t.Fatalf("expected to reap the zombie child")
	}
	if reaped.ExitCode() != 42 {
		t.Fatalf("expected exit code 42, got %d", reaped.ExitCode())
	}
	if len(parent.Children()) != 1 || parent.Children()[0] != running {
		t.Fatalf("expected only the running child to remain")
	}
}

func TestPCBWaitpidAnyChild(t *testing.T) {
	parent := &PCB{pid: &PidHandle{pid: 1}}
	zombie := &PCB{pid: &PidHandle{pid: 5}}
	zombie.inner.status = StatusZombie
	parent.inner.children = []*PCB{zombie}

	reaped, result := parent.Waitpid(-1)
	if result != WaitReaped || reaped != zombie {
		t.Fatalf("expected to reap the only zombie child via pid -1, got %v/%v", reaped, result)
	}
}

func TestPCBContextSlotAddressesInnerField(t *testing.T) {
	pcb := &PCB{}
	pcb.inner.contextPtr = 0xabc
	slot := pcb.ContextSlot()
	if *slot != 0xabc {
		t.Fatalf("expected context slot to read 0xabc, got %x", *slot)
	}
	*slot = 0xdef
	if pcb.inner.contextPtr != 0xdef {
		t.Fatalf("expected writes through the slot to reach pcb.inner.contextPtr")
	}
}

func TestPCBGetTrapFrame(t *testing.T) {
	pcb := newTestPCB(t, 1)

	var zero trap.TrapFrame
	zero.RSP = 0x1234
	addr := pcb.stack.Top() - unsafe.Sizeof(zero)
	*(*trap.TrapFrame)(unsafe.Pointer(addr)) = zero

	tf := pcb.GetTrapFrame()
	if tf.RSP != 0x1234 {
		t.Fatalf("expected GetTrapFrame to read back the frame written at the stack top, got %x", tf.RSP)
	}
}
