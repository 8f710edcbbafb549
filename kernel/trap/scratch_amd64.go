package trap

// scratchRAX and scratchUserRSP are single-word scratch storage used by
// trap_start (entry_amd64.s) to free up a register for the kernel-stack
// swap before any part of the TrapFrame has been pushed. This is safe only
// because the kernel is single-CPU and the trap gate is not reentrant (see
// the concurrency model: suspension happens only at the switchTo boundary,
// never inside trap_start itself).
var (
	scratchRAX     uint64
	scratchUserRSP uint64
)
