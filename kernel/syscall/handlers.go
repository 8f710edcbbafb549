package syscall

import (
	"unsafe"

	"github.com/achilleasa/nucleus/kernel/apps"
	"github.com/achilleasa/nucleus/kernel/kfmt"
	"github.com/achilleasa/nucleus/kernel/process"
	"github.com/achilleasa/nucleus/kernel/trap"
)

// readCString reads a NUL-terminated string out of user memory starting at
// addr. There is no length limit other than the NUL byte itself, matching
// how a user-mode caller would pass a path argument.
func readCString(addr uintptr) string {
	var length int
	for {
		b := *(*byte)(unsafe.Pointer(addr + uintptr(length)))
		if b == 0 {
			break
		}
		length++
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
	return string(data)
}

// yieldCurrent takes the calling process off the processor, puts it back on
// the ready queue, and switches to the idle loop, returning once the
// process is dispatched again.
func yieldCurrent() {
	cur := process.GlobalProcessor.TakeCurrent()
	cur.SetStatus(process.StatusReady)
	process.GlobalManager.Add(cur)
	process.Schedule(cur.ContextSlot())
}

// write copies tf.RSI bytes starting at user address tf.RDI to the console
// and returns the number of bytes written.
func write(tf *trap.TrapFrame) int64 {
	addr := uintptr(tf.RDI)
	length := int(tf.RSI)
	if length <= 0 {
		return 0
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
	kfmt.Printf("%s", string(data))
	return int64(length)
}

// read blocks, yielding each time no input is queued, until a byte is
// available, then writes it to user address tf.RDI and returns 1.
func read(tf *trap.TrapFrame) int64 {
	for {
		if b, ok := popStdin(); ok {
			*(*byte)(unsafe.Pointer(uintptr(tf.RDI))) = b
			return 1
		}
		yieldCurrent()
	}
}

// exit takes the calling process off the processor, marks it a zombie with
// the requested code, and switches to the idle loop. It never returns to
// its caller.
func exit(tf *trap.TrapFrame) int64 {
	code := int(int64(tf.RDI))

	cur := process.GlobalProcessor.TakeCurrent()
	cur.Exit(code)
	kfmt.Printf("[kernel] Task exited with return code %d.\n", code)

	var discard uintptr
	process.Schedule(&discard)
	return 0
}

// yield gives up the remainder of the calling process's time slice.
func yield(tf *trap.TrapFrame) int64 {
	yieldCurrent()
	return 0
}

// fork duplicates the calling process's address space and register state
// into a brand new child, enqueues the child onto the ready queue, and
// returns the child's PID to the parent.
func fork(tf *trap.TrapFrame) int64 {
	cur := process.GlobalProcessor.Current()

	child, err := cur.Fork()
	if err != nil {
		return -1
	}

	childTF := child.GetTrapFrame()
	childTF.RAX = 0

	process.GlobalManager.Add(child)
	return int64(child.PID())
}

// exec looks up the statically linked application named by the
// NUL-terminated path at tf.RDI and, if found, replaces the calling
// process's program image with it.
func exec(tf *trap.TrapFrame) int64 {
	name := readCString(uintptr(tf.RDI))

	data, ok := apps.GetAppDataByName(name)
	if !ok {
		return -1
	}

	cur := process.GlobalProcessor.Current()
	if err := cur.Exec(data); err != nil {
		return -1
	}
	return 0
}

// waitpid implements the waitpid syscall: tf.RDI is the pid to wait for
// (-1 for any child), tf.RSI is a user pointer that, on a successful reap,
// receives the child's exit code.
func waitpid(tf *trap.TrapFrame) int64 {
	cur := process.GlobalProcessor.Current()
	pid := int(int64(tf.RDI))
	codePtr := uintptr(tf.RSI)

	child, result := cur.Waitpid(pid)
	switch result {
	case process.WaitNoChild:
		return -1
	case process.WaitNotExited:
		return -2
	}

	if codePtr != 0 {
		*(*int64)(unsafe.Pointer(codePtr)) = int64(child.ExitCode())
	}
	reapedPID := int64(child.PID())
	if err := child.Release(); err != nil {
		return -1
	}
	return reapedPID
}
