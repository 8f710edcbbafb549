package vmm

import (
	"bytes"
	"debug/elf"
	"unsafe"

	"github.com/achilleasa/nucleus/kernel"
	"github.com/achilleasa/nucleus/kernel/mem"
	"github.com/achilleasa/nucleus/kernel/mem/pmm"
)

// userStackSize is the size reserved for a freshly loaded program's user
// stack.
const userStackSize = mem.Size(1 * mem.Mb)

// kernelHalfIndex is the P4 index that backs the kernel's high-half
// mappings (the early-reserve region carved down from tempMappingAddr). It
// is copied into every new MemorySet's page directory so that kernel code
// and the temporary mapping window remain reachable regardless of which
// process's address space is active; the recursive self-mapping entry
// (index 511) is NOT copied since every table must point to itself there.
const kernelHalfIndex = (1 << 9) - 2

var (
	errInvalidELF = &kernel.Error{Module: "vmm", Message: "not a valid ELF64 executable"}
)

// MapArea describes a contiguous range of mapped pages sharing the same
// protection flags.
type MapArea struct {
	start Page
	end   Page // exclusive
	flags PageTableEntryFlag
}

// MemorySet groups together the page directory table and mapped areas that
// make up a single address space.
type MemorySet struct {
	pdt    PageDirectoryTable
	areas  []MapArea
	mapped map[Page]bool
}

// NewMemorySet allocates a fresh, independent page directory table,
// pre-populated with the kernel's high-half mappings, and returns an empty
// MemorySet built on top of it.
func NewMemorySet() (*MemorySet, *kernel.Error) {
	pdtFrame, err := frameAllocator()
	if err != nil {
		return nil, err
	}

	var pdt PageDirectoryTable
	if err := pdt.Init(pdtFrame, frameAllocator); err != nil {
		return nil, err
	}

	if err := copyKernelHalf(pdt); err != nil {
		return nil, err
	}

	return &MemorySet{pdt: pdt, mapped: make(map[Page]bool)}, nil
}

// copyKernelHalf duplicates the P4 entry that backs the kernel's high-half
// mappings from the currently active table into pdt. If pdt is the active
// table itself there is nothing to copy and no temporary mapping is made.
func copyKernelHalf(pdt PageDirectoryTable) *kernel.Error {
	if pdt.Frame().Address() == activePDTFn() {
		return nil
	}

	srcEntryAddr := pdtVirtualAddr + (uintptr(kernelHalfIndex) << mem.PointerShift)
	srcEntry := *(*pageTableEntry)(ptePtrFn(srcEntryAddr))

	dstPage, err := mapTemporaryFn(pdt.Frame(), frameAllocator)
	if err != nil {
		return err
	}

	dstEntryAddr := dstPage.Address() + (uintptr(kernelHalfIndex) << mem.PointerShift)
	*(*pageTableEntry)(ptePtrFn(dstEntryAddr)) = srcEntry

	return unmapFn(dstPage)
}

// PageTableFrame returns the physical frame backing this MemorySet's page
// directory table.
func (ms *MemorySet) PageTableFrame() pmm.Frame {
	return ms.pdt.Frame()
}

// Activate installs this MemorySet's page directory table as the active one.
func (ms *MemorySet) Activate() {
	ms.pdt.Activate()
}

// Insert creates a MapArea covering [start, end), maps each of its pages to
// a freshly allocated frame (skipping pages already mapped by a previous
// area) and, if data is non-nil, copies it page-by-page into the newly
// mapped range via a temporary mapping. Bytes beyond len(data) are left
// zeroed.
func (ms *MemorySet) Insert(start, end uintptr, flags PageTableEntryFlag, data []byte) *kernel.Error {
	area := MapArea{
		start: PageFromAddress(start),
		end:   PageFromAddress(end-1) + 1,
		flags: flags,
	}

	for page := area.start; page < area.end; page++ {
		if ms.mapped[page] {
			continue
		}

		frame, err := frameAllocator()
		if err != nil {
			return err
		}

		tmp, err := MapTemporary(frame, frameAllocator)
		if err != nil {
			return err
		}

		pageOffset := uint64(page-area.start) * uint64(mem.PageSize)
		mem.Memset(tmp.Address(), 0, mem.PageSize)
		if data != nil && pageOffset < uint64(len(data)) {
			end := pageOffset + uint64(mem.PageSize)
			if end > uint64(len(data)) {
				end = uint64(len(data))
			}
			chunk := data[pageOffset:end]
			mem.Memcopy(uintptr(unsafe.Pointer(&chunk[0])), tmp.Address(), mem.Size(len(chunk)))
		}

		if err := unmapFn(tmp); err != nil {
			return err
		}

		if err := ms.pdt.Map(page, frame, flags, frameAllocator); err != nil {
			return err
		}

		ms.mapped[page] = true
	}

	ms.areas = append(ms.areas, area)
	return nil
}

// RemoveAreaWithStartAddr unmaps and removes the area whose start page
// corresponds to start.
func (ms *MemorySet) RemoveAreaWithStartAddr(start uintptr) *kernel.Error {
	startPage := PageFromAddress(start)

	for i, area := range ms.areas {
		if area.start != startPage {
			continue
		}

		for page := area.start; page < area.end; page++ {
			if err := ms.pdt.Unmap(page); err != nil {
				return err
			}
			delete(ms.mapped, page)
		}

		ms.areas = append(ms.areas[:i], ms.areas[i+1:]...)
		return nil
	}

	return ErrInvalidMapping
}

// RemoveAllAreas unmaps every area in reverse insertion order and clears the
// area list.
func (ms *MemorySet) RemoveAllAreas() *kernel.Error {
	for i := len(ms.areas) - 1; i >= 0; i-- {
		area := ms.areas[i]
		for page := area.start; page < area.end; page++ {
			if err := ms.pdt.Unmap(page); err != nil {
				return err
			}
			delete(ms.mapped, page)
		}
	}

	ms.areas = ms.areas[:0]
	return nil
}

// FromELF parses a statically-linked ELF64 executable and builds a
// MemorySet for it. It returns the MemorySet, the top of the freshly
// reserved user stack and the ELF entry point.
func FromELF(elfData []byte) (*MemorySet, uintptr, uintptr, *kernel.Error) {
	ms, err := NewMemorySet()
	if err != nil {
		return nil, 0, 0, err
	}

	entry, stackTop, err := ms.readELF(elfData)
	if err != nil {
		return nil, 0, 0, err
	}

	return ms, stackTop, entry, nil
}

// LoadELF parses elfData and maps its PT_LOAD segments plus a fresh user
// stack into ms, reusing ms's existing (already-active) page table. exec
// calls this after RemoveAllAreas to replace a process's program image
// without rebuilding its address space. It returns the entry point and the
// top of the freshly reserved user stack.
func (ms *MemorySet) LoadELF(elfData []byte) (uintptr, uintptr, *kernel.Error) {
	return ms.readELF(elfData)
}

// readELF maps every PT_LOAD segment of elfData into ms and reserves a user
// stack past the highest mapped page, leaving one unmapped guard page
// between them. It returns the entry
// point and the top of the reserved stack.
func (ms *MemorySet) readELF(elfData []byte) (uintptr, uintptr, *kernel.Error) {
	f, parseErr := elf.NewFile(bytes.NewReader(elfData))
	if parseErr != nil || f.Class != elf.ELFCLASS64 {
		return 0, 0, errInvalidELF
	}

	var maxPage Page
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		flags := FlagPresent | FlagUserAccessible
		if prog.Flags&elf.PF_X == 0 {
			flags |= FlagNoExecute
		}
		if prog.Flags&elf.PF_W != 0 {
			flags |= FlagRW
		}

		segData := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(segData, 0); err != nil {
			return 0, 0, errInvalidELF
		}

		start := uintptr(prog.Vaddr)
		end := start + uintptr(prog.Memsz)
		if err := ms.Insert(start, end, flags, segData); err != nil {
			return 0, 0, err
		}

		if endPage := PageFromAddress(end - 1); endPage >= maxPage {
			maxPage = endPage + 1
		}
	}

	// Leave a one page guard below the stack.
	stackBottom := maxPage.Address() + uintptr(mem.PageSize)
	stackTop := stackBottom + uintptr(userStackSize)

	stackFlags := FlagPresent | FlagRW | FlagUserAccessible
	if err := ms.Insert(stackBottom, stackTop, stackFlags, nil); err != nil {
		return 0, 0, err
	}

	return uintptr(f.Entry), stackTop, nil
}

// CloneMemorySet builds an independent copy of other, duplicating its areas
// and byte-for-byte contents onto freshly allocated frames. It is used to
// implement fork's copy-on-create address space duplication.
func CloneMemorySet(other *MemorySet) (*MemorySet, *kernel.Error) {
	clone, err := NewMemorySet()
	if err != nil {
		return nil, err
	}

	for _, area := range other.areas {
		data, err := other.readArea(area)
		if err != nil {
			return nil, err
		}

		if err := clone.Insert(area.start.Address(), area.end.Address(), area.flags, data); err != nil {
			return nil, err
		}
	}

	return clone, nil
}

// readArea copies the live contents of area out of ms into a freshly
// allocated byte slice, using a temporary mapping to access each page's
// physical frame regardless of whether ms's table is currently active.
func (ms *MemorySet) readArea(area MapArea) ([]byte, *kernel.Error) {
	numPages := int(area.end - area.start)
	out := make([]byte, numPages*int(mem.PageSize))

	for i, page := 0, area.start; page < area.end; i, page = i+1, page+1 {
		frameAddr, err := ms.translate(page)
		if err != nil {
			return nil, err
		}

		tmp, err := MapTemporary(pmm.Frame(frameAddr>>mem.PageShift), frameAllocator)
		if err != nil {
			return nil, err
		}

		dst := out[i*int(mem.PageSize) : (i+1)*int(mem.PageSize)]
		mem.Memcopy(tmp.Address(), uintptr(unsafe.Pointer(&dst[0])), mem.PageSize)

		if err := unmapFn(tmp); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// translate returns the physical address backing page within ms's address
// space by walking ms's own page directory table.
func (ms *MemorySet) translate(page Page) (uintptr, *kernel.Error) {
	var (
		frame pmm.Frame
		err   *kernel.Error
	)

	found := false
	walkPdt := func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			if !pte.HasFlags(FlagPresent) {
				err = ErrInvalidMapping
				return false
			}
			frame = pte.Frame()
			found = true
			return true
		}
		return pte.HasFlags(FlagPresent)
	}

	ms.pdt.Walk(page.Address(), walkPdt)
	if !found && err == nil {
		err = ErrInvalidMapping
	}
	if err != nil {
		return 0, err
	}

	return frame.Address(), nil
}
