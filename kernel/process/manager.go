package process

import ksync "github.com/achilleasa/nucleus/kernel/sync"

// ProcessManager is a FIFO queue of ready-to-run PCBs. Fairness is strict
// FIFO; there are no priorities.
type ProcessManager struct {
	mu    ksync.Spinlock
	queue []*PCB
}

// GlobalManager is the process-wide ready queue.
var GlobalManager = &ProcessManager{}

// Add appends pcb to the tail of the ready queue.
func (m *ProcessManager) Add(pcb *PCB) {
	m.mu.Acquire()
	defer m.mu.Release()
	m.queue = append(m.queue, pcb)
}

// Fetch pops the PCB at the head of the ready queue, or returns nil if the
// queue is empty.
func (m *ProcessManager) Fetch() *PCB {
	m.mu.Acquire()
	defer m.mu.Release()

	if len(m.queue) == 0 {
		return nil
	}

	pcb := m.queue[0]
	m.queue = m.queue[1:]
	return pcb
}
