// Package trap implements the SYSCALL entry/exit gate: it switches onto the
// calling process's kernel stack, saves and restores the user register
// state, and dispatches to a numbered handler table populated by the
// kernel/syscall package.
package trap

// TrapFrame is the user-mode register snapshot captured by trap_start on
// SYSCALL entry. It sits at the very top of a process's kernel stack. The
// field order matches the order in which trap_start pushes registers, so
// that entry_amd64.s can address individual fields with fixed offsets.
type TrapFrame struct {
	RAX uint64
	RBX uint64
	RCX uint64 // user RIP, loaded by the CPU on SYSCALL
	RDX uint64
	RBP uint64
	RSI uint64
	RDI uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64 // user RFLAGS, loaded by the CPU on SYSCALL
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
	RSP uint64 // saved user stack pointer
}

// ProcessContext is the saved set of callee-preserved kernel registers used
// exclusively for kernel-to-kernel context switches (process.switchTo). It
// sits on the kernel stack immediately below the TrapFrame.
type ProcessContext struct {
	R15 uint64
	R14 uint64
	R13 uint64
	R12 uint64
	R11 uint64
	RBX uint64
	RBP uint64
	RIP uint64
}

// RFlagsInterruptsAndReserved is the RFLAGS value planted into a freshly
// created TrapFrame: the interrupt-enable flag (bit 9) plus the
// architecturally reserved bit 1, which must always read as 1.
const RFlagsInterruptsAndReserved = 0x203
