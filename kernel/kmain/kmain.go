package kmain

import (
	"github.com/achilleasa/nucleus/kernel"
	"github.com/achilleasa/nucleus/kernel/apps"
	"github.com/achilleasa/nucleus/kernel/goruntime"
	"github.com/achilleasa/nucleus/kernel/hal"
	"github.com/achilleasa/nucleus/kernel/hal/multiboot"
	"github.com/achilleasa/nucleus/kernel/mem/pmm/allocator"
	"github.com/achilleasa/nucleus/kernel/mem/vmm"
	"github.com/achilleasa/nucleus/kernel/process"
	"github.com/achilleasa/nucleus/kernel/syscall"
	"github.com/achilleasa/nucleus/kernel/trap"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoInitProgram = &kernel.Error{Module: "kmain", Message: "init program not found"}
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()

	_ = kernelStart
	_ = kernelEnd

	allocator.Init()
	vmm.SetFrameAllocator(allocator.AllocFrame)

	var err *kernel.Error
	if err = vmm.Init(); err != nil {
		panic(err)
	} else if err = goruntime.Init(); err != nil {
		panic(err)
	} else if err = process.InitKernelStackRegion(); err != nil {
		panic(err)
	}

	initData, ok := apps.GetAppDataByName("init")
	if !ok {
		kernel.Panic(errNoInitProgram)
	}

	initPCB, err := process.NewProcessFromELF(initData)
	if err != nil {
		panic(err)
	}
	process.SetInitProcess(initPCB)
	process.GlobalManager.Add(initPCB)

	trap.Init()
	syscall.Init()

	process.GlobalProcessor.Run()

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}
