package trap

import "testing"

func TestInitProgramsSyscallMSRs(t *testing.T) {
	defer func(orig func(uint32, uint64)) { writeMSRFn = orig }(writeMSRFn)
	defer func(orig func(uint32) uint64) { readEFERFn = orig }(readEFERFn)

	written := map[uint32]uint64{}
	writeMSRFn = func(msr uint32, value uint64) { written[msr] = value }
	readEFERFn = func(msr uint32) uint64 { return 0 }

	Init()

	if written[msrEFER]&eferSCE == 0 {
		t.Fatal("expected Init to set the SCE bit in EFER")
	}
	if written[msrLSTAR] != uint64(trapStartAddr()) {
		t.Fatalf("expected LSTAR to be programmed with trap_start's address, got %x", written[msrLSTAR])
	}
	if written[msrFMASK] != rflagsIF {
		t.Fatalf("expected FMASK to clear IF on entry, got %x", written[msrFMASK])
	}

	wantStar := uint64(starUserCSBase)<<48 | uint64(starKernelCSBase)<<32
	if written[msrSTAR] != wantStar {
		t.Fatalf("expected STAR = %x, got %x", wantStar, written[msrSTAR])
	}
}

func TestInitPreservesExistingEFERBits(t *testing.T) {
	defer func(orig func(uint32, uint64)) { writeMSRFn = orig }(writeMSRFn)
	defer func(orig func(uint32) uint64) { readEFERFn = orig }(readEFERFn)

	const preExistingBit = 1 << 8 // unrelated EFER bit that must survive

	written := map[uint32]uint64{}
	writeMSRFn = func(msr uint32, value uint64) { written[msr] = value }
	readEFERFn = func(msr uint32) uint64 { return preExistingBit }

	Init()

	if written[msrEFER] != preExistingBit|eferSCE {
		t.Fatalf("expected Init to OR in SCE without clobbering other bits, got %x", written[msrEFER])
	}
}
