// Package syscall implements the numbered handler table invoked by the
// kernel/trap SYSCALL gate: process lifecycle (fork, exec, exit, waitpid,
// yield) and the minimal console I/O (read, write) user programs need.
package syscall

// Syscall numbers, as placed by a caller into RAX before executing SYSCALL.
const (
	SysWrite   = 1
	SysExit    = 2
	SysFork    = 3
	SysExec    = 4
	SysYield   = 5
	SysRead    = 6
	SysWaitpid = 7
)
