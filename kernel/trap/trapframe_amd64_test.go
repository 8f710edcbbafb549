package trap

import (
	"testing"
	"unsafe"
)

// TestTrapFrameLayout guards the field order entry_amd64.s depends on: each
// push in trap_start corresponds to one field, in declaration order, so a
// reordering here would silently desync the assembly from the struct.
func TestTrapFrameLayout(t *testing.T) {
	var tf TrapFrame

	fields := []struct {
		name string
		ptr  unsafe.Pointer
	}{
		{"RAX", unsafe.Pointer(&tf.RAX)},
		{"RBX", unsafe.Pointer(&tf.RBX)},
		{"RCX", unsafe.Pointer(&tf.RCX)},
		{"RDX", unsafe.Pointer(&tf.RDX)},
		{"RBP", unsafe.Pointer(&tf.RBP)},
		{"RSI", unsafe.Pointer(&tf.RSI)},
		{"RDI", unsafe.Pointer(&tf.RDI)},
		{"R8", unsafe.Pointer(&tf.R8)},
		{"R9", unsafe.Pointer(&tf.R9)},
		{"R10", unsafe.Pointer(&tf.R10)},
		{"R11", unsafe.Pointer(&tf.R11)},
		{"R12", unsafe.Pointer(&tf.R12)},
		{"R13", unsafe.Pointer(&tf.R13)},
		{"R14", unsafe.Pointer(&tf.R14)},
		{"R15", unsafe.Pointer(&tf.R15)},
		{"RSP", unsafe.Pointer(&tf.RSP)},
	}

	base := uintptr(unsafe.Pointer(&tf))
	for i, f := range fields {
		wantOffset := uintptr(i) * unsafe.Sizeof(uint64(0))
		if gotOffset := uintptr(f.ptr) - base; gotOffset != wantOffset {
			t.Fatalf("field %s: expected offset %d, got %d", f.name, wantOffset, gotOffset)
		}
	}
}

func TestProcessContextLayout(t *testing.T) {
	var ctx ProcessContext

	fields := []unsafe.Pointer{
		unsafe.Pointer(&ctx.R15),
		unsafe.Pointer(&ctx.R14),
		unsafe.Pointer(&ctx.R13),
		unsafe.Pointer(&ctx.R12),
		unsafe.Pointer(&ctx.R11),
		unsafe.Pointer(&ctx.RBX),
		unsafe.Pointer(&ctx.RBP),
		unsafe.Pointer(&ctx.RIP),
	}

	base := uintptr(unsafe.Pointer(&ctx))
	for i, ptr := range fields {
		wantOffset := uintptr(i) * unsafe.Sizeof(uint64(0))
		if gotOffset := uintptr(ptr) - base; gotOffset != wantOffset {
			t.Fatalf("field index %d: expected offset %d, got %d", i, wantOffset, gotOffset)
		}
	}
}

func TestRFlagsConstant(t *testing.T) {
	const wantInterruptEnable = 1 << 9
	const wantReservedBit1 = 1 << 1

	if RFlagsInterruptsAndReserved&wantInterruptEnable == 0 {
		t.Fatal("expected the interrupt-enable flag to be set")
	}
	if RFlagsInterruptsAndReserved&wantReservedBit1 == 0 {
		t.Fatal("expected the architecturally reserved bit to be set")
	}
}
