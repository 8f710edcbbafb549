package sync

import "sync/atomic"

func archAcquireSpinlock(state *uint32, attemptsBeforeYielding uint32) {
	for {
		for i := uint32(0); i < attemptsBeforeYielding; i++ {
			if atomic.CompareAndSwapUint32(state, 0, 1) {
				return
			}
			cpuPause()
		}
		if yieldFn != nil {
			yieldFn()
		}
	}
}

// cpuPause is implemented in spinlock_amd64.s. It executes a PAUSE
// instruction, which tells the CPU this is a spin-wait loop so it can
// de-prioritize the core and avoid a costly memory-order mis-speculation
// on the eventual exit from the loop.
func cpuPause()
