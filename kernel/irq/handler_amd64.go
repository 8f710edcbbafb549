package irq

// ExceptionNum identifies a CPU exception vector that can be passed to
// HandleException or HandleExceptionWithCode.
type ExceptionNum uint8

const (
	// DoubleFault occurs when an exception is unhandled or when an
	// exception occurs while the CPU is already servicing one.
	DoubleFault = ExceptionNum(8)

	// GPFException is raised when a general protection fault occurs.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a page table entry is not
	// present or a privilege/RW protection check fails.
	PageFaultException = ExceptionNum(14)

	numExceptions = 32
)

// ExceptionHandler handles an exception that does not push an error code to
// the stack. If the handler returns, any modifications to the supplied Frame
// and/or Regs are propagated back to the location where the exception
// occurred.
type ExceptionHandler func(*Frame, *Regs)

// ExceptionHandlerWithCode handles an exception that pushes an error code to
// the stack.
type ExceptionHandlerWithCode func(uint64, *Frame, *Regs)

var (
	handlers         [numExceptions]ExceptionHandler
	handlersWithCode [numExceptions]ExceptionHandlerWithCode
)

// HandleException registers an exception handler (without an error code) for
// the given exception vector. The IDT trampoline installed by the trap
// package is responsible for invoking the registered handler when the
// corresponding vector fires.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	handlers[exceptionNum] = handler
}

// HandleExceptionWithCode registers an exception handler (with an error
// code) for the given exception vector.
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) {
	handlersWithCode[exceptionNum] = handler
}

// Dispatch invokes the handler registered for exceptionNum, if any. It is
// called by the low-level trap entry stub for vectors that do not carry an
// error code.
func Dispatch(exceptionNum ExceptionNum, frame *Frame, regs *Regs) {
	if h := handlers[exceptionNum]; h != nil {
		h(frame, regs)
	}
}

// DispatchWithCode invokes the handler registered for exceptionNum, if any,
// passing along the error code pushed by the CPU.
func DispatchWithCode(exceptionNum ExceptionNum, errorCode uint64, frame *Frame, regs *Regs) {
	if h := handlersWithCode[exceptionNum]; h != nil {
		h(errorCode, frame, regs)
	}
}
