package syscall

import (
	"github.com/achilleasa/nucleus/kernel/cpu"
	ksync "github.com/achilleasa/nucleus/kernel/sync"
)

var (
	// disableInterruptsFn and enableInterruptsFn are mocked by tests and
	// are automatically inlined by the compiler.
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
)

// stdinQueue is a small byte FIFO fed by the keyboard interrupt handler and
// drained by the read syscall. Both sides bracket their access with
// interrupts disabled: PushStdin runs on behalf of the keyboard IRQ
// handler, so if popStdin held stdinQueue.mu with interrupts still enabled,
// a keyboard interrupt landing on this CPU mid-pop would call PushStdin,
// which blocks acquiring the same lock this context already holds -
// deadlock.
var stdinQueue struct {
	mu  ksync.Spinlock
	buf []byte
}

// PushStdin appends a single byte of input, making it available to the next
// read syscall. It is exported for the keyboard IRQ handler to call.
func PushStdin(b byte) {
	disableInterruptsFn()
	stdinQueue.mu.Acquire()
	stdinQueue.buf = append(stdinQueue.buf, b)
	stdinQueue.mu.Release()
	enableInterruptsFn()
}

// popStdin removes and returns the oldest queued byte, if any.
func popStdin() (byte, bool) {
	disableInterruptsFn()
	defer enableInterruptsFn()

	stdinQueue.mu.Acquire()
	defer stdinQueue.mu.Release()

	if len(stdinQueue.buf) == 0 {
		return 0, false
	}

	b := stdinQueue.buf[0]
	stdinQueue.buf = stdinQueue.buf[1:]
	return b, true
}
