// Package nic defines what driver and device share: a word-indexed
// 32-bit register file with a device-side write hook, and the 16-byte
// legacy descriptor format whose status word is the atomic hand-off
// point between the two sides.
//
// All cross-goroutine ordering runs through the atomics in this
// package. Plain descriptor fields written before a status or tail
// register store are visible to the side that observes that store.
package nic

import "sync/atomic"

// Register word indices (byte offset / 4) of the 82540 register block,
// as the driver addresses them.
const (
	RegCTL   = 0x00000 / 4 // device control
	RegICR   = 0x000C0 / 4 // interrupt cause read
	RegIMS   = 0x000D0 / 4 // interrupt mask set
	RegRCTL  = 0x00100 / 4 // receive control
	RegTCTL  = 0x00400 / 4 // transmit control
	RegTIPG  = 0x00410 / 4 // transmit inter-packet gap
	RegRDBAL = 0x02800 / 4 // RX descriptor base address low
	RegRDLEN = 0x02808 / 4 // RX ring byte length
	RegRDH   = 0x02810 / 4 // RX descriptor head
	RegRDT   = 0x02818 / 4 // RX descriptor tail
	RegRDTR  = 0x02820 / 4 // RX interrupt delay timer
	RegRADV  = 0x0282C / 4 // RX interrupt absolute delay timer
	RegTDBAL = 0x03800 / 4 // TX descriptor base address low
	RegTDLEN = 0x03808 / 4 // TX ring byte length
	RegTDH   = 0x03810 / 4 // TX descriptor head
	RegTDT   = 0x03818 / 4 // TX descriptor tail
	RegMTA   = 0x05200 / 4 // multicast table array
	RegRA    = 0x05400 / 4 // receive address, RAL/RAH pair

	// MTAWords is the number of words in the multicast table array.
	MTAWords = 128

	// NumRegWords is the size of the register file in 32-bit words.
	NumRegWords = 0x05600 / 4
)

// Control register bits.
const (
	CTLReset = 0x00400000 // full device reset, self-clearing
)

// Transmit control register bits.
const (
	TCTLEnable    = 0x00000002
	TCTLPadShort  = 0x00000008
	TCTLCTShift   = 4  // collision threshold
	TCTLCOLDShift = 12 // collision distance
)

// Receive control register bits.
const (
	RCTLEnable    = 0x00000002
	RCTLBroadcast = 0x00008000 // accept broadcast frames
	RCTLSize2048  = 0x00000000 // 2048-byte receive buffers
	RCTLStripCRC  = 0x04000000
)

// Interrupt cause bits, shared by ICR and IMS.
const (
	ICRRxDW = 1 << 7 // receive descriptor written back
)

// Regs models the memory-mapped register block of the adapter. Cells
// are 32-bit atomics so the driver and device sides may access them
// from different goroutines; a driver-side Write additionally fires
// the device hook, mirroring a trapped MMIO store.
//
// Two simplifications against real silicon, relied on by both sides:
// IMS holds a plain absolute mask (there is no IMC register), and ICR
// is write-1-to-clear with no read side effect.
type Regs struct {
	hook  func(reg int, val uint32)
	cells [NumRegWords]atomic.Uint32
}

// NewRegs returns a zeroed register file. hook, which may be nil,
// observes every driver-side Write after the cell has been updated.
func NewRegs(hook func(reg int, val uint32)) *Regs {
	return &Regs{hook: hook}
}

// Read returns the current value of a register.
func (r *Regs) Read(reg int) uint32 { return r.cells[reg].Load() }

// atomicAnd32 atomically performs old &= mask on cell and returns the
// old value. sync/atomic.Uint32 only gains an And method in Go 1.23;
// this is the equivalent compare-and-swap expansion.
func atomicAnd32(cell *atomic.Uint32, mask uint32) uint32 {
	for {
		old := cell.Load()
		if cell.CompareAndSwap(old, old&mask) {
			return old
		}
	}
}

// atomicOr32 atomically performs old |= mask on cell and returns the
// old value. sync/atomic.Uint32 only gains an Or method in Go 1.23;
// this is the equivalent compare-and-swap expansion.
func atomicOr32(cell *atomic.Uint32, mask uint32) uint32 {
	for {
		old := cell.Load()
		if cell.CompareAndSwap(old, old|mask) {
			return old
		}
	}
}

// Write performs a driver-side store and fires the device hook.
// Writing ICR clears the cause bits set in v instead of overwriting
// the cell.
func (r *Regs) Write(reg int, v uint32) {
	if reg == RegICR {
		atomicAnd32(&r.cells[reg], ^v)
	} else {
		r.cells[reg].Store(v)
	}
	if r.hook != nil {
		r.hook(reg, v)
	}
}

// Poke stores a value from the device side without firing the hook.
func (r *Regs) Poke(reg int, v uint32) { r.cells[reg].Store(v) }

// Or sets bits from the device side and returns the previous value.
func (r *Regs) Or(reg int, mask uint32) uint32 {
	return atomicOr32(&r.cells[reg], mask)
}

// And clears the bits absent from mask and returns the previous value.
func (r *Regs) And(reg int, mask uint32) uint32 {
	return atomicAnd32(&r.cells[reg], mask)
}
