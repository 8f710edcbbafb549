package trap

import "github.com/achilleasa/nucleus/kernel"

// maxSyscallNum bounds the numbered dispatch table; syscall numbers are
// assigned by the kernel/syscall package (1-7 at the time of writing).
const maxSyscallNum = 16

// Handler services a single syscall number. It receives the TrapFrame
// captured at SYSCALL entry and returns the value to be stored into that
// frame's RAX slot before SYSRET.
type Handler func(*TrapFrame) int64

var (
	handlers [maxSyscallNum]Handler

	// CurrentKernelStackTop is consulted by trap_start (entry_amd64.s) to
	// switch RSP onto the calling process's kernel stack before pushing
	// the TrapFrame. It must be kept up to date by the scheduler
	// (process.Processor) every time a process is dispatched, since
	// trap_start has no other way to recover "the current process" while
	// still running on the user stack.
	CurrentKernelStackTop uintptr

	errUnknownSyscall = &kernel.Error{Module: "trap", Message: "unknown syscall number"}

	// panicFn is mocked by tests and is automatically inlined by the
	// compiler.
	panicFn = kernel.Panic
)

// Register installs handler as the implementation for syscall number num.
// It is called once per syscall by kernel/syscall's Init.
func Register(num uint64, handler Handler) {
	handlers[num] = handler
}

// Dispatch is invoked by trap_start (entry_amd64.s) once the TrapFrame has
// been pushed onto the kernel stack. It reads the syscall number out of
// frame.RAX, looks up the matching handler and returns its result. An
// unregistered syscall number is a kernel bug, not a recoverable user-space
// condition, so it panics.
func Dispatch(frame *TrapFrame) int64 {
	num := frame.RAX
	if num >= maxSyscallNum || handlers[num] == nil {
		panicFn(errUnknownSyscall)
		return -1
	}
	return handlers[num](frame)
}
