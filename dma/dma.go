// Package dma provides the flat memory arena that descriptor rings and
// frame buffers live in.
//
// Mem stands in for physical memory: a single page-aligned region in
// which a DMA address is a byte offset from the arena base. Both the
// driver and the device model resolve addresses through the same arena,
// so a descriptor's buffer address means the same thing on both sides.
//
// Page 0 is reserved and never handed out: address 0 marks an empty
// descriptor slot.
package dma

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// PageSize is the size of one allocatable buffer in bytes.
// One Ethernet frame occupies at most one page.
const PageSize = 4096

// DefaultPages is the arena size used when Config leaves it zero.
const DefaultPages = 256

var ErrNoMemory = errors.New("out of dma pages")

// Mem is a fixed arena of pages with a LIFO free list.
//
// AllocPage and FreePage are safe for concurrent use. Accessing the
// bytes of a page is only safe while the caller owns that page.
type Mem struct {
	buf []byte

	mu        sync.Mutex
	freePages []uint64
	allocated []bool // indexed by page number
}

// New creates an arena of the given number of pages.
// pages == 0 selects DefaultPages. The arena base is aligned to
// PageSize so that descriptor rings placed in it satisfy the
// alignment the hardware contract demands.
func New(pages int) (*Mem, error) {
	if pages == 0 {
		pages = DefaultPages
	}
	if pages < 2 {
		return nil, fmt.Errorf("dma: %d pages leaves nothing allocatable", pages)
	}

	// Over-allocate by one page and slide the base up to alignment.
	raw := make([]byte, (pages+1)*PageSize)
	base := 0
	if rem := uintptr(unsafe.Pointer(&raw[0])) % PageSize; rem != 0 {
		base = PageSize - int(rem)
	}

	m := &Mem{
		buf:       raw[base : base+pages*PageSize : base+pages*PageSize],
		freePages: make([]uint64, 0, pages-1),
		allocated: make([]bool, pages),
	}
	// Page 0 stays reserved.
	for i := 1; i < pages; i++ {
		m.freePages = append(m.freePages, uint64(i)*PageSize)
	}
	return m, nil
}

// Size returns the arena size in bytes.
func (m *Mem) Size() int { return len(m.buf) }

// FreePages returns the number of pages currently allocatable.
func (m *Mem) FreePages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.freePages)
}

// AllocPage pops a free page and returns its address.
// The page contents are NOT zeroed; callers that build frames in it
// must overwrite every byte they transmit.
func (m *Mem) AllocPage() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.freePages) == 0 {
		return 0, ErrNoMemory
	}
	addr := m.freePages[len(m.freePages)-1]
	m.freePages = m.freePages[:len(m.freePages)-1]
	m.allocated[addr/PageSize] = true
	return addr, nil
}

// FreePage returns a page to the pool.
// Freeing an address that was never allocated, is misaligned, or is out
// of range indicates a buffer-ownership bug and panics.
func (m *Mem) FreePage(addr uint64) {
	if addr%PageSize != 0 {
		panic(fmt.Sprintf("dma: free of misaligned address %#x", addr))
	}
	page := addr / PageSize
	if page == 0 || addr >= uint64(len(m.buf)) {
		panic(fmt.Sprintf("dma: free of out-of-range address %#x", addr))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.allocated[page] {
		panic(fmt.Sprintf("dma: double free of page %#x", addr))
	}
	m.allocated[page] = false
	m.freePages = append(m.freePages, addr)
}

// Bytes returns the n-byte window starting at addr.
// It panics when the window falls outside the arena; descriptor
// addresses coming from the other side of the ring must be checked
// with Contains first.
func (m *Mem) Bytes(addr uint64, n int) []byte {
	if !m.Contains(addr, n) {
		panic(fmt.Sprintf("dma: access [%#x, %#x+%d) outside arena", addr, addr, n))
	}
	return m.buf[addr : addr+uint64(n) : addr+uint64(n)]
}

// Contains reports whether the n-byte window at addr lies inside the
// arena. It is the non-panicking validity check for addresses read
// from shared descriptor memory.
func (m *Mem) Contains(addr uint64, n int) bool {
	if n < 0 {
		return false
	}
	end := addr + uint64(n)
	return end >= addr && end <= uint64(len(m.buf))
}
