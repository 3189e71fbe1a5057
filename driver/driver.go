// Package driver implements the adapter driver: device initialization,
// descriptor ring management, frame transmission and the interrupt-time
// receive drain.
package driver

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/romshark/ringstack-go/dma"
	"github.com/romshark/ringstack-go/header"
	"github.com/romshark/ringstack-go/logging"
	"github.com/romshark/ringstack-go/nic"
)

var (
	// ErrNoTxDesc is returned by Transmit when the descriptor at the
	// ring tail has not been handed back by the adapter yet.
	ErrNoTxDesc = errors.New("no transmit descriptor available")

	// ErrFrameTooLarge is returned by Transmit for frame lengths that
	// cannot fit a single buffer page.
	ErrFrameTooLarge = errors.New("frame does not fit a buffer page")

	// ErrRingAlignment is returned by Attach when a ring's byte length
	// is not a multiple of the mandated descriptor alignment.
	ErrRingAlignment = errors.New("misaligned descriptor ring")
)

// DefaultRingSize is the per-ring descriptor count used when the
// config leaves it zero.
const DefaultRingSize = 16

// Config configures an adapter driver.
type Config struct {
	// MAC is programmed into the receive-address filter.
	MAC header.MAC

	// TxRingSize and RxRingSize are the descriptor counts of the two
	// rings. Each ring must fit one DMA page.
	TxRingSize int
	RxRingSize int
}

// ValidateAndSetDefaults validates the configuration and
// sets default values where applicable.
func (c *Config) ValidateAndSetDefaults() error {
	if c.MAC.IsZero() {
		return errors.New("MAC address required")
	}
	if c.TxRingSize == 0 {
		c.TxRingSize = DefaultRingSize
	}
	if c.RxRingSize == 0 {
		c.RxRingSize = DefaultRingSize
	}
	if c.TxRingSize < 2 || c.TxRingSize*nic.DescSize > dma.PageSize {
		return fmt.Errorf("tx ring size out of range: %d", c.TxRingSize)
	}
	if c.RxRingSize < 2 || c.RxRingSize*nic.DescSize > dma.PageSize {
		return fmt.Errorf("rx ring size out of range: %d", c.RxRingSize)
	}
	return nil
}

// Driver drives one adapter. It owns the descriptor rings in DMA
// memory and hands each received frame, one owned page at a time, to
// the rx callback given to Attach.
//
// Transmit is safe for concurrent use and may run concurrently with
// Interrupt. Interrupt must only be invoked from the device's
// interrupt goroutine.
type Driver struct {
	log  *zap.Logger
	mem  *dma.Mem
	regs *nic.Regs
	rx   func(page uint64, n int)

	txMu   sync.Mutex
	txRing []byte
	txCap  uint32

	rxRing []byte
	rxCap  uint32

	txFrames atomic.Uint64
	txBytes  atomic.Uint64
	txNoDesc atomic.Uint64
	rxFrames atomic.Uint64
	rxBytes  atomic.Uint64
	rxNoBuf  atomic.Uint64
}

// Attach resets and initializes the adapter behind regs and returns a
// running driver: rings programmed, one receive buffer armed per RX
// descriptor, transmitter and receiver enabled and the receive
// writeback interrupt unmasked. rx receives ownership of one DMA page
// per delivered frame.
func Attach(
	mem *dma.Mem, regs *nic.Regs, cfg Config, rx func(page uint64, n int),
) (*Driver, error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if rx == nil {
		return nil, errors.New("rx handler required")
	}

	d := &Driver{
		log:   logging.New("driver"),
		mem:   mem,
		regs:  regs,
		rx:    rx,
		txCap: uint32(cfg.TxRingSize),
		rxCap: uint32(cfg.RxRingSize),
	}

	regs.Write(nic.RegIMS, 0) // mask all interrupts
	regs.Write(nic.RegCTL, regs.Read(nic.RegCTL)|nic.CTLReset)
	regs.Write(nic.RegIMS, 0) // remask after the reset

	txBytes := cfg.TxRingSize * nic.DescSize
	if txBytes%nic.RingAlign != 0 {
		return nil, fmt.Errorf("tx ring of %d bytes: %w", txBytes, ErrRingAlignment)
	}
	txBase, err := mem.AllocPage()
	if err != nil {
		return nil, fmt.Errorf("allocating tx ring: %w", err)
	}
	d.txRing = mem.Bytes(txBase, txBytes)
	clear(d.txRing)
	// Pre-set done on every descriptor so the first pass over the ring
	// finds free slots.
	for i := 0; i < cfg.TxRingSize; i++ {
		nic.TxDescAt(d.txRing, i).SetStatus(nic.StatDD)
	}
	regs.Write(nic.RegTDBAL, uint32(txBase))
	regs.Write(nic.RegTDLEN, uint32(txBytes))
	regs.Write(nic.RegTDH, 0)
	regs.Write(nic.RegTDT, 0)

	rxBytes := cfg.RxRingSize * nic.DescSize
	if rxBytes%nic.RingAlign != 0 {
		return nil, fmt.Errorf("rx ring of %d bytes: %w", rxBytes, ErrRingAlignment)
	}
	rxBase, err := mem.AllocPage()
	if err != nil {
		return nil, fmt.Errorf("allocating rx ring: %w", err)
	}
	d.rxRing = mem.Bytes(rxBase, rxBytes)
	clear(d.rxRing)
	for i := 0; i < cfg.RxRingSize; i++ {
		page, err := mem.AllocPage()
		if err != nil {
			return nil, fmt.Errorf("allocating rx buffer %d: %w", i, err)
		}
		nic.RxDescAt(d.rxRing, i).SetAddr(page)
	}
	regs.Write(nic.RegRDBAL, uint32(rxBase))
	regs.Write(nic.RegRDH, 0)
	regs.Write(nic.RegRDT, uint32(cfg.RxRingSize-1))
	regs.Write(nic.RegRDLEN, uint32(rxBytes))

	// Receive-address filter for the local MAC, empty multicast table.
	regs.Write(nic.RegRA, uint32(cfg.MAC[0])|uint32(cfg.MAC[1])<<8|
		uint32(cfg.MAC[2])<<16|uint32(cfg.MAC[3])<<24)
	regs.Write(nic.RegRA+1, uint32(cfg.MAC[4])|uint32(cfg.MAC[5])<<8|1<<31)
	for i := 0; i < nic.MTAWords; i++ {
		regs.Write(nic.RegMTA+i, 0)
	}

	regs.Write(nic.RegTCTL, nic.TCTLEnable|nic.TCTLPadShort|
		0x10<<nic.TCTLCTShift|0x40<<nic.TCTLCOLDShift)
	regs.Write(nic.RegTIPG, 10|8<<10|6<<20)
	regs.Write(nic.RegRCTL, nic.RCTLEnable|nic.RCTLBroadcast|
		nic.RCTLSize2048|nic.RCTLStripCRC)
	regs.Write(nic.RegRDTR, 0) // interrupt after every received packet
	regs.Write(nic.RegRADV, 0)
	regs.Write(nic.RegIMS, nic.ICRRxDW)

	d.log.Info("adapter initialized",
		zap.String("mac", cfg.MAC.String()),
		zap.Int("tx_ring", cfg.TxRingSize),
		zap.Int("rx_ring", cfg.RxRingSize))
	return d, nil
}

// Transmit hands one frame to the adapter. page is a DMA page holding
// the frame's n bytes at offset 0. On success ownership of the page
// transfers to the ring; on error the caller keeps it. ErrNoTxDesc
// means the ring is full because the adapter has not finished the
// transmit that last used the tail slot.
func (d *Driver) Transmit(page uint64, n int) error {
	if n <= 0 || n > dma.PageSize {
		return ErrFrameTooLarge
	}

	d.txMu.Lock()
	defer d.txMu.Unlock()

	tail := d.regs.Read(nic.RegTDT)
	desc := nic.TxDescAt(d.txRing, int(tail))
	if desc.Status()&nic.StatDD == 0 {
		d.txNoDesc.Add(1)
		return ErrNoTxDesc
	}
	// The slot still references the page of the transmit that last
	// used it; reclaim it now that the adapter is done.
	if prev := desc.Addr(); prev != 0 {
		d.mem.FreePage(prev)
	}
	desc.SetAddr(page)
	desc.SetLength(uint16(n))
	desc.SetCmd(nic.TxCmdEOP | nic.TxCmdRS)
	desc.SetStatus(0)
	d.regs.Write(nic.RegTDT, (tail+1)%d.txCap)

	d.txFrames.Add(1)
	d.txBytes.Add(uint64(n))
	return nil
}

// Interrupt services the adapter after an interrupt: it acknowledges
// all pending causes and drains every completed receive descriptor in
// one pass.
func (d *Driver) Interrupt() {
	d.regs.Write(nic.RegICR, ^uint32(0))
	d.drainReceive()
}

func (d *Driver) drainReceive() {
	tail := d.regs.Read(nic.RegRDT)
	for {
		next := (tail + 1) % d.rxCap
		desc := nic.RxDescAt(d.rxRing, int(next))
		if desc.Status()&nic.StatDD == 0 {
			return
		}
		n := int(desc.Length())
		fresh, err := d.mem.AllocPage()
		if err != nil {
			// Out of pages: drop the frame and re-arm its buffer.
			d.rxNoBuf.Add(1)
		} else {
			page := desc.Addr()
			desc.SetAddr(fresh)
			d.rxFrames.Add(1)
			d.rxBytes.Add(uint64(n))
			d.rx(page, n)
		}
		desc.SetStatus(0)
		d.regs.Write(nic.RegRDT, next)
		tail = next
	}
}

// TxFrames returns the number of frames handed to the adapter.
func (d *Driver) TxFrames() uint64 { return d.txFrames.Load() }

// TxBytes returns the number of frame bytes handed to the adapter.
func (d *Driver) TxBytes() uint64 { return d.txBytes.Load() }

// TxNoDesc returns the number of transmits rejected on a full ring.
func (d *Driver) TxNoDesc() uint64 { return d.txNoDesc.Load() }

// RxFrames returns the number of frames delivered upward.
func (d *Driver) RxFrames() uint64 { return d.rxFrames.Load() }

// RxBytes returns the number of frame bytes delivered upward.
func (d *Driver) RxBytes() uint64 { return d.rxBytes.Load() }

// RxNoBuf returns the number of frames dropped in the drain loop
// because no replacement buffer page was available.
func (d *Driver) RxNoBuf() uint64 { return d.rxNoBuf.Load() }
