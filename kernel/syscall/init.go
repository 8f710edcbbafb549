package syscall

import "github.com/achilleasa/nucleus/kernel/trap"

// Init registers every syscall handler into the trap package's dispatch
// table. It must be called once during boot, after trap.Init.
func Init() {
	trap.Register(uint64(SysWrite), write)
	trap.Register(uint64(SysExit), exit)
	trap.Register(uint64(SysFork), fork)
	trap.Register(uint64(SysExec), exec)
	trap.Register(uint64(SysYield), yield)
	trap.Register(uint64(SysRead), read)
	trap.Register(uint64(SysWaitpid), waitpid)
}
