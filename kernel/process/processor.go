package process

import (
	"github.com/achilleasa/nucleus/kernel/mem/vmm"
	ksync "github.com/achilleasa/nucleus/kernel/sync"
	"github.com/achilleasa/nucleus/kernel/trap"
)

func init() {
	ksync.SetYieldFn(YieldToScheduler)
}

// switchTo is implemented in switch_amd64.s. It saves the calling context's
// callee-saved registers onto the current stack, records the resulting
// stack pointer through saveSlot, and switches execution onto next.
func switchTo(saveSlot *uintptr, next uintptr)

// switchToFn and activateMemorySetFn are mocked by tests and are
// automatically inlined by the compiler.
var (
	switchToFn          = switchTo
	activateMemorySetFn = func(ms *vmm.MemorySet) { ms.Activate() }
)

// Processor is the single-CPU dispatcher: it repeatedly pulls the next
// ready PCB off GlobalManager's queue, activates its address space, and
// switches onto its saved context. There is no timer-driven preemption -
// every handoff point is an explicit call into Schedule from a syscall
// handler (yield, exit, blocking read, ...).
type Processor struct {
	mu             ksync.Spinlock
	current        *PCB
	idleContextPtr uintptr
}

// GlobalProcessor is the system's single dispatcher.
var GlobalProcessor = &Processor{}

// Current returns the PCB currently assigned to the processor, or nil if
// the processor is idle.
func (p *Processor) Current() *PCB {
	p.mu.Acquire()
	defer p.mu.Release()
	return p.current
}

// TakeCurrent clears and returns the processor's current PCB. Syscall
// handlers that remove a process from circulation (exit, blocking yield)
// call this before deciding what happens to it next.
func (p *Processor) TakeCurrent() *PCB {
	p.mu.Acquire()
	defer p.mu.Release()
	cur := p.current
	p.current = nil
	return cur
}

// Run is the idle loop: forever fetch the next ready process and run it
// until it yields or exits back to us. It never returns.
func (p *Processor) Run() {
	for {
		proc := GlobalManager.Fetch()
		if proc == nil {
			continue
		}

		proc.SetStatus(StatusRunning)

		p.mu.Acquire()
		p.current = proc
		p.mu.Release()

		activateMemorySetFn(proc.MemorySet())
		trap.CurrentKernelStackTop = proc.Stack().Top()

		switchToFn(&p.idleContextPtr, *proc.ContextSlot())
	}
}

// Schedule switches away from the calling process, saving its context
// through saveSlot, and resumes the idle loop. It returns once the
// processor dispatches this context again.
func Schedule(saveSlot *uintptr) {
	switchToFn(saveSlot, GlobalProcessor.idleContextPtr)
}

// YieldToScheduler takes the calling process off the processor, returns it
// to the ready queue, and switches back to the idle loop, exactly like the
// yield syscall handler. It is installed as kernel/sync's spinlock yield
// hook, so that a lock contended from process context gives up the CPU to
// the rest of the ready queue instead of spinning forever against a holder
// that this cooperative scheduler will never otherwise get to run. Called
// with no current process (e.g. during boot, before any process exists),
// it is a no-op: there is nothing to yield.
func YieldToScheduler() {
	cur := GlobalProcessor.TakeCurrent()
	if cur == nil {
		return
	}
	cur.SetStatus(StatusReady)
	GlobalManager.Add(cur)
	Schedule(cur.ContextSlot())
}
