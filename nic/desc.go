package nic

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

const (
	// DescSize is the size of one legacy descriptor.
	DescSize = 16

	// RingAlign is the hardware-mandated alignment of a descriptor
	// ring's byte length.
	RingAlign = 128
)

// Transmit descriptor command bits.
const (
	TxCmdEOP = 0x01 // end of packet
	TxCmdRS  = 0x08 // report status
)

// Descriptor status bits. StatDD is shared by both rings; the device
// additionally marks completed receive frames with StatEOP.
const (
	StatDD  = 0x01 // descriptor done
	StatEOP = 0x02 // end of packet
)

// Descriptor field offsets within the 16-byte record. The transmit
// layout is addr, length, cso, cmd, status, css, special; receive is
// addr, length, csum, status, errors, special. Both place the buffer
// address at 0, the length at 8 and the status byte at 12.
const (
	descAddr   = 0
	descLength = 8
	descCmd    = 11
	descStatus = 12
)

// statusWord returns the fourth 32-bit word of a descriptor as an
// atomic cell. Rings start on page boundaries, so the word is always
// naturally aligned.
func statusWord(d []byte) *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&d[descStatus]))
}

// TxDesc is a view over one transmit descriptor in DMA memory.
type TxDesc []byte

// TxDescAt returns the i-th descriptor of a ring window.
func TxDescAt(ring []byte, i int) TxDesc {
	return TxDesc(ring[i*DescSize : (i+1)*DescSize])
}

// Addr returns the buffer address.
func (d TxDesc) Addr() uint64 { return binary.LittleEndian.Uint64(d[descAddr:]) }

// SetAddr writes the buffer address.
func (d TxDesc) SetAddr(a uint64) { binary.LittleEndian.PutUint64(d[descAddr:], a) }

// Length returns the frame length.
func (d TxDesc) Length() uint16 { return binary.LittleEndian.Uint16(d[descLength:]) }

// SetLength writes the frame length.
func (d TxDesc) SetLength(n uint16) { binary.LittleEndian.PutUint16(d[descLength:], n) }

// Cmd returns the command byte.
func (d TxDesc) Cmd() byte { return d[descCmd] }

// SetCmd writes the command byte.
func (d TxDesc) SetCmd(c byte) { d[descCmd] = c }

// Status atomically loads the status byte.
func (d TxDesc) Status() byte { return byte(statusWord(d).Load()) }

// SetStatus atomically stores the status byte. The store covers the
// whole fourth word, zeroing the css and special fields, which neither
// side uses.
func (d TxDesc) SetStatus(s byte) { statusWord(d).Store(uint32(s)) }

// RxDesc is a view over one receive descriptor in DMA memory.
type RxDesc []byte

// RxDescAt returns the i-th descriptor of a ring window.
func RxDescAt(ring []byte, i int) RxDesc {
	return RxDesc(ring[i*DescSize : (i+1)*DescSize])
}

// Addr returns the buffer address.
func (d RxDesc) Addr() uint64 { return binary.LittleEndian.Uint64(d[descAddr:]) }

// SetAddr writes the buffer address.
func (d RxDesc) SetAddr(a uint64) { binary.LittleEndian.PutUint64(d[descAddr:], a) }

// Length returns the received frame length.
func (d RxDesc) Length() uint16 { return binary.LittleEndian.Uint16(d[descLength:]) }

// SetLength writes the received frame length.
func (d RxDesc) SetLength(n uint16) { binary.LittleEndian.PutUint16(d[descLength:], n) }

// Status atomically loads the status byte.
func (d RxDesc) Status() byte { return byte(statusWord(d).Load()) }

// SetStatus atomically stores the status byte. The store covers the
// whole fourth word, zeroing the errors and special fields, which
// neither side uses.
func (d RxDesc) SetStatus(s byte) { statusWord(d).Store(uint32(s)) }
