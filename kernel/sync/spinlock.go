// Package sync provides synchronization primitives for use inside the
// kernel. A plain sync.Mutex cannot be used here: its Lock parks the
// calling goroutine via the Go runtime scheduler, but this kernel runs its
// own cooperative scheduler of "processes" (see kernel/process) that the Go
// runtime knows nothing about. Every kernel-side lock therefore busy-waits
// instead.
package sync

import "sync/atomic"

// yieldFn is called by Acquire once a lock has been contended for longer
// than a short busy-wait. It is nil until kernel/process wires it to its own
// scheduler's voluntary-yield path (see process.YieldToScheduler), which is
// also why SetYieldFn exists instead of a plain package var: the caller
// doing the wiring lives in a different package.
var yieldFn func()

// SetYieldFn installs the function Acquire falls back to once a spinlock
// has been contended for a while. Called once, during scheduler init.
func SetYieldFn(fn func()) {
	yieldFn = fn
}

// Spinlock implements a lock where each task trying to acquire it busy-waits
// until the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will
// cause a deadlock.
func (l *Spinlock) Acquire() {
	archAcquireSpinlock(&l.state, 1000)
}

// TryToAcquire attempts to acquire the lock and returns true if the lock
// could be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it.
// Calling Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// archAcquireSpinlock busy-waits on state using the given number of spin
// attempts before giving up the CPU via yieldFn (if one has been installed)
// and resetting the spin count. It is arch-specific (spinlock_amd64.go) so
// it can use a PAUSE instruction while spinning.
