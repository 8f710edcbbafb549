package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the contents of the CR2 register, which the CPU loads with
// the faulting virtual address whenever a page fault occurs.
func ReadCR2() uint64

// ReadMSR returns the value of the given model-specific register.
func ReadMSR(msr uint32) uint64

// WriteMSR loads the given model-specific register with value.
func WriteMSR(msr uint32, value uint64)
