package trap

import "github.com/achilleasa/nucleus/kernel/cpu"

const (
	// msrEFER is the extended feature enable register. Bit 0 (SCE) must
	// be set for the SYSCALL/SYSRET instruction pair to be available.
	msrEFER = 0xc0000080

	// msrSTAR packs the segment selectors used by SYSCALL/SYSRET: bits
	// 32-47 give the kernel CS (SS is CS+8); bits 48-63 give a base from
	// which SYSRET derives the user CS (base+16) and SS (base+8).
	msrSTAR = 0xc0000081

	// msrLSTAR holds the virtual address SYSCALL transfers control to.
	msrLSTAR = 0xc0000082

	// msrFMASK holds the RFLAGS bits that SYSCALL clears in the new
	// kernel-mode RFLAGS (IF is cleared so the kernel is not interrupted
	// mid-trap-frame-construction).
	msrFMASK = 0xc0000084

	// eferSCE enables the SYSCALL/SYSRET instruction pair.
	eferSCE = 1 << 0

	// The selectors below assume the flat GDT layout owned by the
	// kernel's bring-up code (out of this package's scope): a kernel
	// code/data pair at 0x08/0x10 and, given the SYSRET CS/SS formula
	// (base+16, base+8, both with RPL 3) and a base of 0x18, user data
	// at 0x20 and 64-bit user code at 0x28.
	starKernelCSBase = 0x08
	starUserCSBase   = 0x18

	// rflagsIF is the interrupt-enable flag cleared in the kernel while a
	// trap frame is being constructed.
	rflagsIF = 1 << 9
)

var (
	// the following are mocked by tests and are automatically inlined by
	// the compiler.
	writeMSRFn = cpu.WriteMSR
)

// trapStartAddr returns the address of the trap_start SYSCALL entry point
// (defined in entry_amd64.s).
func trapStartAddr() uintptr

// TrapRetAddr returns the address of the trap_ret SYSRET trampoline (defined
// in entry_amd64.s). It is the initial instruction pointer planted into
// every freshly created process's ProcessContext, and the resumption point
// after any syscall handler that does not replace the process image.
func TrapRetAddr() uintptr

// Init enables the SYSCALL/SYSRET fast path: it sets the SCE bit in EFER,
// programs STAR with the kernel/user segment selector bases, and points
// LSTAR at trap_start.
func Init() {
	star := uint64(starUserCSBase)<<48 | uint64(starKernelCSBase)<<32

	writeMSRFn(msrEFER, readEFER()|eferSCE)
	writeMSRFn(msrSTAR, star)
	writeMSRFn(msrLSTAR, uint64(trapStartAddr()))
	writeMSRFn(msrFMASK, rflagsIF)
}

// readEFERFn is mocked by tests and is automatically inlined by the
// compiler.
var readEFERFn = cpu.ReadMSR

func readEFER() uint64 {
	return readEFERFn(msrEFER)
}
