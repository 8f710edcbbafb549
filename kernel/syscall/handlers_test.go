package syscall

import (
	"testing"
	"unsafe"

	"github.com/achilleasa/nucleus/kernel/trap"
)

func TestReadCString(t *testing.T) {
	data := append([]byte("hello"), 0)
	addr := uintptr(unsafe.Pointer(&data[0]))

	if got := readCString(addr); got != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
}

func TestReadCStringEmpty(t *testing.T) {
	data := []byte{0}
	addr := uintptr(unsafe.Pointer(&data[0]))

	if got := readCString(addr); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestWriteReturnsByteCount(t *testing.T) {
	data := []byte("hi there")
	tf := &trap.TrapFrame{
		RDI: uint64(uintptr(unsafe.Pointer(&data[0]))),
		RSI: uint64(len(data)),
	}

	if got := write(tf); got != int64(len(data)) {
		t.Fatalf("expected write to return %d, got %d", len(data), got)
	}
}

func TestWriteZeroLength(t *testing.T) {
	tf := &trap.TrapFrame{RDI: 0, RSI: 0}
	if got := write(tf); got != 0 {
		t.Fatalf("expected write with length 0 to return 0, got %d", got)
	}
}

func TestReadReturnsQueuedByte(t *testing.T) {
	disableMockInterrupts(t)

	defer func() { stdinQueue.buf = nil }()
	stdinQueue.buf = nil
	PushStdin('x')

	var out byte
	tf := &trap.TrapFrame{RDI: uint64(uintptr(unsafe.Pointer(&out)))}

	if got := read(tf); got != 1 {
		t.Fatalf("expected read to return 1, got %d", got)
	}
	if out != 'x' {
		t.Fatalf("expected the queued byte 'x' to be written to the buffer, got %q", out)
	}
}
