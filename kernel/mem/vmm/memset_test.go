package vmm

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/achilleasa/nucleus/kernel"
	"github.com/achilleasa/nucleus/kernel/mem"
	"github.com/achilleasa/nucleus/kernel/mem/pmm"
)

// installWalkHarness rigs ptePtrFn, nextAddrFn and flushTLBEntryFn so that
// page table entry accesses (as made by copyKernelHalf and
// MemorySet.translate) land in plain Go-heap arrays instead of real physical
// memory: successive ptePtrFn calls cycle through the levels' arrays. It
// returns the backing arrays; the original functions are restored by
// t.Cleanup.
func installWalkHarness(t *testing.T) *[pageLevels][mem.PageSize >> mem.PointerShift]pageTableEntry {
	t.Helper()

	origPtePtr, origNextAddrFn, origFlushTLBEntryFn := ptePtrFn, nextAddrFn, flushTLBEntryFn
	t.Cleanup(func() {
		ptePtrFn = origPtePtr
		nextAddrFn = origNextAddrFn
		flushTLBEntryFn = origFlushTLBEntryFn
	})

	physPages := new([pageLevels][mem.PageSize >> mem.PointerShift]pageTableEntry)

	pteCallCount := 0
	ptePtrFn = func(entry uintptr) unsafe.Pointer {
		pteIndex := (entry & uintptr(mem.PageSize-1)) >> mem.PointerShift
		level := pteCallCount % pageLevels
		pteCallCount++
		return unsafe.Pointer(&physPages[level][pteIndex])
	}

	nextAddrFn = func(entry uintptr) uintptr {
		return entry
	}

	flushTLBEntryFn = func(uintptr) {}

	return physPages
}

func TestNewMemorySetAllocatorError(t *testing.T) {
	defer func(orig FrameAllocatorFn) { frameAllocator = orig }(frameAllocator)

	wantErr := &kernel.Error{Module: "vmm", Message: "out of frames"}
	frameAllocator = func() (pmm.Frame, *kernel.Error) { return 0, wantErr }

	if _, err := NewMemorySet(); err != wantErr {
		t.Fatalf("expected %v; got %v", wantErr, err)
	}
}

func TestNewMemorySetSkipsBootstrapWhenAlreadyActive(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(origFrameAllocator FrameAllocatorFn, origActivePDT func() uintptr, origMapTemporary func(pmm.Frame, FrameAllocatorFn) (Page, *kernel.Error), origUnmap func(Page) *kernel.Error) {
		frameAllocator = origFrameAllocator
		activePDTFn = origActivePDT
		mapTemporaryFn = origMapTemporary
		unmapFn = origUnmap
	}(frameAllocator, activePDTFn, mapTemporaryFn, unmapFn)

	pdtFrame := pmm.Frame(7)
	frameAllocator = func() (pmm.Frame, *kernel.Error) { return pdtFrame, nil }
	activePDTFn = func() uintptr { return pdtFrame.Address() }
	mapTemporaryFn = func(pmm.Frame, FrameAllocatorFn) (Page, *kernel.Error) {
		t.Fatal("unexpected call to MapTemporary when the PDT is already active")
		return 0, nil
	}
	unmapFn = func(Page) *kernel.Error {
		t.Fatal("unexpected call to Unmap when the PDT is already active")
		return nil
	}

	// copyKernelHalf takes the same shortcut as Init for an active table;
	// the harness keeps any stray page table access off real memory.
	installWalkHarness(t)

	ms, err := NewMemorySet()
	if err != nil {
		t.Fatal(err)
	}
	if ms.pdt.Frame() != pdtFrame {
		t.Fatalf("expected MemorySet's pdt to wrap frame %v; got %v", pdtFrame, ms.pdt.Frame())
	}
}

func TestNewMemorySetBootstrapsInactiveTableAndCopiesKernelHalf(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(origFrameAllocator FrameAllocatorFn, origActivePDT func() uintptr, origMapTemporary func(pmm.Frame, FrameAllocatorFn) (Page, *kernel.Error), origUnmap func(Page) *kernel.Error) {
		frameAllocator = origFrameAllocator
		activePDTFn = origActivePDT
		mapTemporaryFn = origMapTemporary
		unmapFn = origUnmap
	}(frameAllocator, activePDTFn, mapTemporaryFn, unmapFn)

	pdtFrame := pmm.Frame(42)
	var bootstrapPage [mem.PageSize >> mem.PointerShift]pageTableEntry
	mem.Memset(uintptr(unsafe.Pointer(&bootstrapPage[0])), 0xf0, mem.PageSize)

	frameAllocator = func() (pmm.Frame, *kernel.Error) { return pdtFrame, nil }
	// No active table: Init must bootstrap pdtFrame via mapTemporaryFn.
	activePDTFn = func() uintptr { return 0 }
	mapTemporaryFn = func(_ pmm.Frame, _ FrameAllocatorFn) (Page, *kernel.Error) {
		return PageFromAddress(uintptr(unsafe.Pointer(&bootstrapPage[0]))), nil
	}
	unmapCallCount := 0
	unmapFn = func(Page) *kernel.Error {
		unmapCallCount++
		return nil
	}

	physPages := installWalkHarness(t)
	kernelHalfEntry := pageTableEntry(0)
	kernelHalfEntry.SetFlags(FlagPresent | FlagRW)
	kernelHalfEntry.SetFrame(pmm.Frame(99))
	physPages[0][kernelHalfIndex] = kernelHalfEntry

	ms, err := NewMemorySet()
	if err != nil {
		t.Fatal(err)
	}

	if ms.pdt.Frame() != pdtFrame {
		t.Fatalf("expected MemorySet's pdt to wrap frame %v; got %v", pdtFrame, ms.pdt.Frame())
	}

	if unmapCallCount == 0 {
		t.Fatal("expected at least one temporary mapping to be released during bootstrap")
	}

	lastEntry := bootstrapPage[len(bootstrapPage)-1]
	if !lastEntry.HasFlags(FlagPresent | FlagRW) {
		t.Fatal("expected the recursive PDT entry to be present after Init")
	}
	if lastEntry.Frame() != pdtFrame {
		t.Fatalf("expected the recursive PDT entry to point at %v; got %v", pdtFrame, lastEntry.Frame())
	}
}

func TestFromELFRejectsInvalidData(t *testing.T) {
	defer func(orig FrameAllocatorFn) { frameAllocator = orig }(frameAllocator)
	defer func(orig func() uintptr) { activePDTFn = orig }(activePDTFn)

	pdtFrame := pmm.Frame(1)
	frameAllocator = func() (pmm.Frame, *kernel.Error) { return pdtFrame, nil }
	activePDTFn = func() uintptr { return pdtFrame.Address() } // Init shortcut

	if _, _, _, err := FromELF([]byte("not an elf")); err != errInvalidELF {
		t.Fatalf("expected errInvalidELF; got %v", err)
	}
}

func TestFromELFPropagatesAllocatorError(t *testing.T) {
	defer func(orig FrameAllocatorFn) { frameAllocator = orig }(frameAllocator)

	wantErr := &kernel.Error{Module: "vmm", Message: "out of frames"}
	frameAllocator = func() (pmm.Frame, *kernel.Error) { return 0, wantErr }

	if _, _, _, err := FromELF([]byte("irrelevant")); err != wantErr {
		t.Fatalf("expected %v; got %v", wantErr, err)
	}
}

// newTestMemorySet builds a MemorySet directly, bypassing NewMemorySet's
// frame allocation/bootstrap so area bookkeeping can be tested in isolation.
func newTestMemorySet(pdtFrame pmm.Frame) *MemorySet {
	return &MemorySet{
		pdt:    PageDirectoryTable{pdtFrame: pdtFrame},
		mapped: make(map[Page]bool),
	}
}

func TestRemoveAreaWithStartAddrUnmapsAndRemoves(t *testing.T) {
	defer func(orig func() uintptr) { activePDTFn = orig }(activePDTFn)
	defer func(orig func(Page) *kernel.Error) { unmapFn = orig }(unmapFn)

	pdtFrame := pmm.Frame(5)
	activePDTFn = func() uintptr { return pdtFrame.Address() } // pdt.Unmap shortcut

	var unmapped []Page
	unmapFn = func(p Page) *kernel.Error {
		unmapped = append(unmapped, p)
		return nil
	}

	ms := newTestMemorySet(pdtFrame)
	start := PageFromAddress(0x400000)
	area := MapArea{start: start, end: start + 3, flags: FlagPresent | FlagRW}
	ms.areas = []MapArea{area}
	for p := area.start; p < area.end; p++ {
		ms.mapped[p] = true
	}

	if err := ms.RemoveAreaWithStartAddr(start.Address()); err != nil {
		t.Fatal(err)
	}

	if len(ms.areas) != 0 {
		t.Fatalf("expected the area list to be empty; got %d entries", len(ms.areas))
	}
	if len(ms.mapped) != 0 {
		t.Fatalf("expected all pages to be unmarked; got %d still mapped", len(ms.mapped))
	}
	if len(unmapped) != 3 {
		t.Fatalf("expected 3 pages to be unmapped; got %d", len(unmapped))
	}
}

func TestRemoveAreaWithStartAddrUnknownStart(t *testing.T) {
	ms := newTestMemorySet(pmm.Frame(5))

	if err := ms.RemoveAreaWithStartAddr(0xdeadb000); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping; got %v", err)
	}
}

func TestRemoveAllAreasUnmapsInReverseOrder(t *testing.T) {
	defer func(orig func() uintptr) { activePDTFn = orig }(activePDTFn)
	defer func(orig func(Page) *kernel.Error) { unmapFn = orig }(unmapFn)

	pdtFrame := pmm.Frame(9)
	activePDTFn = func() uintptr { return pdtFrame.Address() }

	var order []Page
	unmapFn = func(p Page) *kernel.Error {
		order = append(order, p)
		return nil
	}

	ms := newTestMemorySet(pdtFrame)
	first := MapArea{start: PageFromAddress(0x1000), end: PageFromAddress(0x1000) + 1, flags: FlagPresent}
	second := MapArea{start: PageFromAddress(0x2000), end: PageFromAddress(0x2000) + 1, flags: FlagPresent}
	ms.areas = []MapArea{first, second}
	ms.mapped[first.start] = true
	ms.mapped[second.start] = true

	if err := ms.RemoveAllAreas(); err != nil {
		t.Fatal(err)
	}

	if len(ms.areas) != 0 {
		t.Fatalf("expected the area list to be empty; got %d entries", len(ms.areas))
	}
	if len(order) != 2 || order[0] != second.start || order[1] != first.start {
		t.Fatalf("expected areas to be unmapped in reverse insertion order; got %v", order)
	}
}

func TestRemoveAllAreasPropagatesUnmapError(t *testing.T) {
	defer func(orig func() uintptr) { activePDTFn = orig }(activePDTFn)
	defer func(orig func(Page) *kernel.Error) { unmapFn = orig }(unmapFn)

	pdtFrame := pmm.Frame(9)
	activePDTFn = func() uintptr { return pdtFrame.Address() }
	unmapFn = func(Page) *kernel.Error { return ErrInvalidMapping }

	ms := newTestMemorySet(pdtFrame)
	area := MapArea{start: PageFromAddress(0x1000), end: PageFromAddress(0x1000) + 1, flags: FlagPresent}
	ms.areas = []MapArea{area}
	ms.mapped[area.start] = true

	if err := ms.RemoveAllAreas(); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping; got %v", err)
	}
}

func TestTranslateReturnsFrameForPresentMapping(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(orig func() uintptr) { activePDTFn = orig }(activePDTFn)

	pdtFrame := pmm.Frame(1)
	activePDTFn = func() uintptr { return pdtFrame.Address() } // pdt.Walk shortcut

	physPages := installWalkHarness(t)
	levelIndices := []uint{510, 511, 511, 511}
	wantFrame := pmm.Frame(0xabc)
	for level, idx := range levelIndices {
		entry := pageTableEntry(0)
		entry.SetFlags(FlagPresent | FlagRW)
		if level == pageLevels-1 {
			entry.SetFrame(wantFrame)
		}
		physPages[level][idx] = entry
	}

	ms := newTestMemorySet(pdtFrame)
	addr, err := ms.translate(PageFromAddress(tempMappingAddr))
	if err != nil {
		t.Fatal(err)
	}
	if got := pmm.Frame(addr >> mem.PageShift); got != wantFrame {
		t.Fatalf("expected frame %v; got %v", wantFrame, got)
	}
}

func TestTranslateErrInvalidMappingWhenNotPresent(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(orig func() uintptr) { activePDTFn = orig }(activePDTFn)

	pdtFrame := pmm.Frame(1)
	activePDTFn = func() uintptr { return pdtFrame.Address() }

	installWalkHarness(t) // all entries left zeroed -> not present

	ms := newTestMemorySet(pdtFrame)
	if _, err := ms.translate(PageFromAddress(tempMappingAddr)); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping; got %v", err)
	}
}
